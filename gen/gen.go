package main

import (
	vesting "github.com/filecoin-project/vesting-actors/actors/builtin/vesting"

	gen "github.com/whyrusleeping/cbor-gen"
)

func main() {
	if err := gen.WriteTupleEncodersToFile("./actors/builtin/vesting/cbor_gen.go", "vesting",
		// actor state
		vesting.State{},
		vesting.VestingSchedule{},
		// method params and returns
		vesting.ConstructorParams{},
		vesting.CreateScheduleParams{},
		vesting.CreateScheduleReturn{},
		vesting.ReleaseParams{},
		vesting.ScheduleIDParams{},
		vesting.WithdrawParams{},
		vesting.ReleasableReturn{},
		vesting.StatsReturn{},
	); err != nil {
		panic(err)
	}
}
