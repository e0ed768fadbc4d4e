package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	cid "github.com/ipfs/go-cid"

	"github.com/filecoin-project/vesting-actors/actors/builtin"
	"github.com/filecoin-project/vesting-actors/actors/runtime"
	"github.com/filecoin-project/vesting-actors/actors/util/adt"
)

// The token vesting actor releases reserved tokens to beneficiaries according
// to time-based schedules: an optional cliff, a vesting duration, a discrete
// slice period, and optional early revocation by the operator.
//
// Tokens enter custody as value attached to the constructor or to plain sends,
// and leave it only through Release, Revoke settlement, or operator Withdraw
// of the unreserved remainder. All state mutation commits before any transfer
// is issued, so a re-entrant call during the transfer observes final state.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.CreateVestingSchedule,
		3:                         a.Release,
		4:                         a.Revoke,
		5:                         a.Withdraw,
		6:                         a.ComputeReleasableAmount,
		7:                         a.GetVestingSchedule,
		8:                         a.GetVestingStats,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.VestingActorCodeID
}

func (a Actor) State() cbor.Er {
	return new(State)
}

func (a Actor) IsSingleton() bool {
	return false
}

var _ runtime.VMActor = Actor{}

type ConstructorParams struct {
	Operator addr.Address
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.InitActorAddr)

	operator, err := builtin.ResolveToIDAddr(rt, params.Operator)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalArgument, "unable to resolve operator address %v", params.Operator)

	st, err := ConstructState(adt.AsStore(rt), operator)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")
	rt.State().Create(st)
	return nil
}

type CreateScheduleParams struct {
	Beneficiary   addr.Address
	Start         abi.ChainEpoch
	CliffDuration abi.ChainEpoch
	Duration      abi.ChainEpoch
	SlicePeriod   abi.ChainEpoch
	Revocable     bool
	Amount        abi.TokenAmount
}

type CreateScheduleReturn struct {
	ID ScheduleID
}

// CreateVestingSchedule commits `amount` of the actor's unreserved balance to a
// new schedule for the beneficiary. The schedule is addressed by an identifier
// derived from the beneficiary and its per-beneficiary sequence index.
func (a Actor) CreateVestingSchedule(rt runtime.Runtime, params *CreateScheduleParams) *CreateScheduleReturn {
	if params.Beneficiary == addr.Undef {
		rt.Abortf(exitcode.ErrIllegalArgument, "beneficiary address undefined")
	}
	builtin.RequireParam(rt, params.Amount.Sign() > 0, "amount to vest must be positive, was %v", params.Amount)
	builtin.RequireParam(rt, params.Duration > 0, "vesting duration must be positive, was %v", params.Duration)
	builtin.RequireParam(rt, params.SlicePeriod >= 1, "slice period must be at least one epoch, was %v", params.SlicePeriod)
	builtin.RequireParam(rt, params.Start >= 0, "start epoch must be non-negative, was %v", params.Start)
	builtin.RequireParam(rt, params.CliffDuration >= 0, "cliff duration must be non-negative, was %v", params.CliffDuration)

	beneficiary, err := builtin.ResolveToIDAddr(rt, params.Beneficiary)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalArgument, "unable to resolve beneficiary address %v", params.Beneficiary)

	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Operator)

	var id ScheduleID
	rt.State().Transaction(&st, func() interface{} {
		unreserved := st.WithdrawableBalance(rt.CurrentBalance())
		if params.Amount.GreaterThan(unreserved) {
			rt.Abortf(exitcode.ErrInsufficientFunds,
				"cannot vest %v: only %v unreserved (balance %v, locked %v)",
				params.Amount, unreserved, rt.CurrentBalance(), st.LockedTotal)
		}

		sched := &VestingSchedule{
			Beneficiary: beneficiary,
			Start:       params.Start,
			Cliff:       params.Start + params.CliffDuration,
			Duration:    params.Duration,
			SlicePeriod: params.SlicePeriod,
			Revocable:   params.Revocable,
			Revoked:     false,
			AmountTotal: params.Amount,
			Released:    big.Zero(),
		}

		id, err = st.AllocateSchedule(adt.AsStore(rt), sched)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to allocate schedule for %v", beneficiary)
		return nil
	})

	rt.Log(rtt.INFO, "created vesting schedule %v for %v: amount %v, cliff %d, duration %d",
		id, beneficiary, params.Amount, params.Start+params.CliffDuration, params.Duration)
	return &CreateScheduleReturn{ID: id}
}

type ReleaseParams struct {
	ID     ScheduleID
	Amount abi.TokenAmount
}

// Release transfers `amount` of a schedule's vested, unreleased tokens to its
// beneficiary. Callable by the beneficiary or the operator.
func (a Actor) Release(rt runtime.Runtime, params *ReleaseParams) *abi.EmptyValue {
	builtin.RequireParam(rt, params.Amount.Sign() > 0, "amount to release must be positive, was %v", params.Amount)

	var st State
	rt.State().Readonly(&st)
	sched, found, err := st.LoadSchedule(adt.AsStore(rt), params.ID)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load schedule %v", params.ID)
	if !found {
		rt.Abortf(exitcode.ErrNotFound, "no vesting schedule %v", params.ID)
	}
	rt.ValidateImmediateCallerIs(sched.Beneficiary, st.Operator)

	var beneficiary addr.Address
	rt.State().Transaction(&st, func() interface{} {
		store := adt.AsStore(rt)
		sched, _, err := st.LoadSchedule(store, params.ID)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load schedule %v", params.ID)

		releasable := sched.AmountReleasable(rt.CurrEpoch())
		if params.Amount.GreaterThan(releasable) {
			rt.Abortf(exitcode.ErrInsufficientFunds, "cannot release %v: only %v vested and unreleased", params.Amount, releasable)
		}

		sched.Released = big.Add(sched.Released, params.Amount)
		err = st.PutSchedule(store, params.ID, sched)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to update schedule %v", params.ID)

		err = st.unlockCustody(store, sched.Beneficiary, params.Amount)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to unlock custody for %v", params.ID)

		beneficiary = sched.Beneficiary
		return nil
	})

	// State is committed; transfer last so a re-entrant call cannot release twice.
	code := send(rt, beneficiary, params.Amount)
	builtin.RequireSuccess(rt, code, "failed to send %v to %v", params.Amount, beneficiary)
	return nil
}

type ScheduleIDParams struct {
	ID ScheduleID
}

// Revoke terminates a revocable schedule early: the currently releasable amount
// is settled to the beneficiary, and the unvested remainder returns to the
// operator's unreserved pool. The schedule record is retained as history.
func (a Actor) Revoke(rt runtime.Runtime, params *ScheduleIDParams) *abi.EmptyValue {
	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Operator)

	var beneficiary addr.Address
	var toRelease abi.TokenAmount
	rt.State().Transaction(&st, func() interface{} {
		store := adt.AsStore(rt)
		sched, found, err := st.LoadSchedule(store, params.ID)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load schedule %v", params.ID)
		if !found {
			rt.Abortf(exitcode.ErrNotFound, "no vesting schedule %v", params.ID)
		}
		if !sched.Revocable {
			rt.Abortf(exitcode.ErrForbidden, "schedule %v is not revocable", params.ID)
		}
		if sched.Revoked {
			rt.Abortf(exitcode.ErrIllegalState, "schedule %v already revoked", params.ID)
		}

		toRelease = sched.AmountReleasable(rt.CurrEpoch())
		// Everything not yet released leaves custody: the vested part moves to the
		// beneficiary, the rest becomes withdrawable by the operator.
		unlocked := sched.UnreleasedAmount()

		sched.Released = big.Add(sched.Released, toRelease)
		sched.Revoked = true
		err = st.PutSchedule(store, params.ID, sched)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to update schedule %v", params.ID)

		err = st.unlockCustody(store, sched.Beneficiary, unlocked)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to unlock custody for %v", params.ID)

		beneficiary = sched.Beneficiary
		return nil
	})

	rt.Log(rtt.INFO, "revoked vesting schedule %v: settling %v to %v", params.ID, toRelease, beneficiary)

	if toRelease.Sign() > 0 {
		code := send(rt, beneficiary, toRelease)
		builtin.RequireSuccess(rt, code, "failed to settle %v to %v", toRelease, beneficiary)
	}
	return nil
}

type WithdrawParams struct {
	Amount abi.TokenAmount
}

// Withdraw sends part of the actor's unreserved balance to the operator.
// Tokens reserved for schedules can never be withdrawn.
func (a Actor) Withdraw(rt runtime.Runtime, params *WithdrawParams) *abi.EmptyValue {
	builtin.RequireParam(rt, params.Amount.Sign() > 0, "amount to withdraw must be positive, was %v", params.Amount)

	var st State
	rt.State().Readonly(&st)
	rt.ValidateImmediateCallerIs(st.Operator)

	available := st.WithdrawableBalance(rt.CurrentBalance())
	if params.Amount.GreaterThan(available) {
		rt.Abortf(exitcode.ErrInsufficientFunds, "cannot withdraw %v: only %v of %v balance is unreserved",
			params.Amount, available, rt.CurrentBalance())
	}

	code := send(rt, st.Operator, params.Amount)
	builtin.RequireSuccess(rt, code, "failed to withdraw %v to %v", params.Amount, st.Operator)
	return nil
}

type ReleasableReturn struct {
	Amount abi.TokenAmount
}

// ComputeReleasableAmount returns the amount currently releasable from a
// schedule. Read-only; callable by anyone.
func (a Actor) ComputeReleasableAmount(rt runtime.Runtime, params *ScheduleIDParams) *ReleasableReturn {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)
	sched, found, err := st.LoadSchedule(adt.AsStore(rt), params.ID)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load schedule %v", params.ID)
	if !found {
		rt.Abortf(exitcode.ErrNotFound, "no vesting schedule %v", params.ID)
	}

	return &ReleasableReturn{Amount: sched.AmountReleasable(rt.CurrEpoch())}
}

// GetVestingSchedule returns the full schedule record for an identifier.
// Read-only; callable by anyone.
func (a Actor) GetVestingSchedule(rt runtime.Runtime, params *ScheduleIDParams) *VestingSchedule {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)
	sched, found, err := st.LoadSchedule(adt.AsStore(rt), params.ID)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load schedule %v", params.ID)
	if !found {
		rt.Abortf(exitcode.ErrNotFound, "no vesting schedule %v", params.ID)
	}
	return sched
}

type StatsReturn struct {
	ScheduleCount      uint64
	LockedTotal        abi.TokenAmount
	WithdrawableAmount abi.TokenAmount
}

// GetVestingStats returns summary accounting for the whole actor.
// Read-only; callable by anyone.
func (a Actor) GetVestingStats(rt runtime.Runtime, _ *abi.EmptyValue) *StatsReturn {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Readonly(&st)
	return &StatsReturn{
		ScheduleCount:      st.ScheduleCount,
		LockedTotal:        st.LockedTotal,
		WithdrawableAmount: st.WithdrawableBalance(rt.CurrentBalance()),
	}
}

func send(rt runtime.Runtime, to addr.Address, amount abi.TokenAmount) exitcode.ExitCode {
	_, code := rt.Send(to, builtin.MethodSend, nil, amount)
	return code
}
