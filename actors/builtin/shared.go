package builtin

import (
	"fmt"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/vesting-actors/actors/runtime"
)

///// Code shared by multiple built-in actors. /////

// Propagates a failed send by aborting the current method with the same exit code.
func RequireSuccess(rt runtime.Runtime, e exitcode.ExitCode, msg string, args ...interface{}) {
	if !e.IsSuccess() {
		rt.Abortf(e, msg, args...)
	}
}

// Aborts with a formatted message and the provided code if err is non-nil.
func RequireNoErr(rt runtime.Runtime, err error, code exitcode.ExitCode, msg string, args ...interface{}) {
	if err != nil {
		rt.Abortf(code, "%s: %v", fmt.Sprintf(msg, args...), err)
	}
}

// Aborts with ErrIllegalArgument if the predicate is false.
func RequireParam(rt runtime.Runtime, predicate bool, msg string, args ...interface{}) {
	if !predicate {
		rt.Abortf(exitcode.ErrIllegalArgument, msg, args...)
	}
}

// ResolveToIDAddr resolves the given address to its ID address form.
// If an ID address for the given address doesn't exist yet, it is created by sending
// a zero-value message to the address, which forces an account actor into existence.
func ResolveToIDAddr(rt runtime.Runtime, address addr.Address) (addr.Address, error) {
	// If it's already an ID address, return it directly.
	if address.Protocol() == addr.ID {
		return address, nil
	}

	// If the runtime can resolve it, use the resolved address.
	idAddr, found := rt.ResolveAddress(address)
	if found {
		return idAddr, nil
	}

	// Send a zero-value message so an ID address is allocated, then retry.
	_, code := rt.Send(address, MethodSend, nil, abi.NewTokenAmount(0))
	if !code.IsSuccess() {
		return address, xerrors.Errorf("failed to send zero balance to address %v, got code %v", address, code)
	}

	idAddr, found = rt.ResolveAddress(address)
	if !found {
		return address, xerrors.Errorf("failed to resolve address %v to ID address even after sending zero balance", address)
	}

	return idAddr, nil
}
