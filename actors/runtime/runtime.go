package runtime

import (
	"context"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	cid "github.com/ipfs/go-cid"
)

// Runtime is the interface to the host ledger available to actor code.
// It is everything an actor can observe or effect beyond its own parameters.
type Runtime interface {
	// Information about the message being executed.
	Message() Message

	// The current chain epoch number, which acts as a proxy for time within the VM.
	// The genesis block has epoch zero.
	CurrEpoch() abi.ChainEpoch

	// Validates the caller against some predicate.
	// Exported actor methods must invoke exactly one caller validation before returning.
	ValidateImmediateCallerAcceptAny()
	ValidateImmediateCallerIs(addrs ...addr.Address)
	ValidateImmediateCallerType(types ...cid.Cid)

	// The balance of the receiving actor, including any value received with the current message.
	CurrentBalance() abi.TokenAmount

	// Resolves an address of any protocol to an ID address (via the init actor's table).
	ResolveAddress(address addr.Address) (addr.Address, bool)

	// Looks up the code ID at an actor address.
	GetActorCodeCID(addr addr.Address) (ret cid.Cid, ok bool)

	// Provides a handle for the actor's state object.
	State() StateHandle

	// Provides the IPLD store backing actor state.
	Store() Store

	// Sends a message to another actor, returning the exit code and return value envelope.
	// If the invoked method does not return successfully, its state changes (and those of
	// any messages it sent in turn) will be rolled back.
	Send(toAddr addr.Address, methodNum abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (SendReturn, exitcode.ExitCode)

	// Halts execution upon an error from which the receiver cannot recover.
	// The caller will receive the exit code and an empty return value.
	// State changes made within the aborted call will be rolled back.
	// This method does not return.
	Abortf(errExitCode exitcode.ExitCode, msg string, args ...interface{})

	// Emits a message for debugging purposes. Messages are not persisted on chain.
	Log(level rtt.LogLevel, msg string, args ...interface{})

	// Provides a Go context for use by the IPLD store.
	// Actor code should not use this context directly.
	Context() context.Context
}

// Store defines the storage module exposed to actors.
type Store interface {
	// Retrieves and deserializes an object from the store into `o`. Returns whether successful.
	Get(c cid.Cid, o cbor.Unmarshaler) bool
	// Serializes and stores an object, returning its CID.
	Put(x cbor.Marshaler) cid.Cid
}

// Message contains information available to the actor about the executing message.
type Message interface {
	// The address of the immediate calling actor. Always an ID-address.
	Caller() addr.Address

	// The address of the actor receiving the message. Always an ID-address.
	Receiver() addr.Address

	// The value attached to the message being processed, implicitly added to
	// CurrentBalance() before method invocation.
	ValueReceived() abi.TokenAmount
}

// SendReturn abstracts over the return envelope of a message send, in particular whether
// it has been serialized to bytes or just passed through.
type SendReturn interface {
	Into(cbor.Unmarshaler) error
}

// StateHandle provides mutable, exclusive access to actor state.
type StateHandle interface {
	// Create initializes the state object.
	// This is only valid in a constructor function and when the state has not yet been initialized.
	Create(obj cbor.Marshaler)

	// Readonly loads a readonly copy of the state into the argument.
	// Any modification to the state is illegal and will result in an abort.
	Readonly(obj cbor.Unmarshaler)

	// Transaction loads a mutable version of the state into the `obj` argument and protects
	// the execution from side effects (including message sends). The state is committed
	// when the function returns; an abort inside the function discards all changes.
	Transaction(obj cbor.Er, f func() interface{}) interface{}
}

// VMActor is a concrete implementation of an actor, to be invoked by the host.
type VMActor interface {
	// Exports returns a method-number-indexed table of the actor's exported methods.
	Exports() []interface{}
	// Code returns the code ID for this actor.
	Code() cid.Cid
	// State returns a new zero-valued instance of this actor's state.
	State() cbor.Er
	// IsSingleton reports whether the actor has a fixed singleton address.
	IsSingleton() bool
}
