package builtin

import (
	"fmt"
)

// Accumulates a sequence of messages (e.g. invariant violations).
type MessageAccumulator struct {
	// Accumulated messages. Non-nil implies the parent accumulator is also non-nil.
	msgs *[]string
	// Optional prefix to each new message.
	prefix string
}

// Returns a new accumulator backed by the same messages as this one, but
// with a prefix applied to each new message.
func (ma *MessageAccumulator) WithPrefix(format string, args ...interface{}) *MessageAccumulator {
	ma.initialize()
	return &MessageAccumulator{
		msgs:   ma.msgs,
		prefix: ma.prefix + fmt.Sprintf(format, args...),
	}
}

func (ma *MessageAccumulator) IsEmpty() bool {
	return ma.msgs == nil || len(*ma.msgs) == 0
}

func (ma *MessageAccumulator) Messages() []string {
	if ma.msgs == nil {
		return nil
	}
	return (*ma.msgs)[:]
}

// Adds a message to the accumulator.
func (ma *MessageAccumulator) Add(msg string) {
	ma.initialize()
	*ma.msgs = append(*ma.msgs, ma.prefix+msg)
}

// Adds a formatted message to the accumulator.
func (ma *MessageAccumulator) Addf(format string, args ...interface{}) {
	ma.Add(fmt.Sprintf(format, args...))
}

// Adds messages from another accumulator to this one.
func (ma *MessageAccumulator) AddAll(other *MessageAccumulator) {
	if other.msgs == nil {
		return
	}
	for _, msg := range *other.msgs {
		ma.Add(msg)
	}
}

// Adds a message if predicate is false.
func (ma *MessageAccumulator) Require(predicate bool, format string, args ...interface{}) {
	if !predicate {
		ma.Addf(format, args...)
	}
}

// Adds a message if err is non-nil.
func (ma *MessageAccumulator) RequireNoError(err error, format string, args ...interface{}) {
	if err != nil {
		ma.Addf(format+": %v", append(args, err)...)
	}
}

func (ma *MessageAccumulator) initialize() {
	if ma.msgs == nil {
		ma.msgs = &[]string{}
	}
}
