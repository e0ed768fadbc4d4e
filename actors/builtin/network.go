package builtin

import "fmt"

// The duration of a chain epoch.
// Used for deriving epoch-denominated periods that are more naturally expressed in clock time.
const EpochDurationSeconds = 30
const SecondsInHour = 3600
const SecondsInDay = 86400
const SecondsInYear = 31536000
const EpochsInHour = SecondsInHour / EpochDurationSeconds
const EpochsInDay = SecondsInDay / EpochDurationSeconds
const EpochsInYear = SecondsInYear / EpochDurationSeconds

func init() {
	//noinspection GoBoolExpressions
	if SecondsInHour%EpochDurationSeconds != 0 {
		// Code elsewhere may unwittingly assume this even division.
		panic(fmt.Sprintf("epoch duration %d does not evenly divide one hour (%d)", EpochDurationSeconds, SecondsInHour))
	}
}
