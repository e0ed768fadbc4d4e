package vesting_test

import (
	"context"
	"strings"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/vesting-actors/actors/builtin"
	"github.com/filecoin-project/vesting-actors/actors/builtin/vesting"
	"github.com/filecoin-project/vesting-actors/actors/util/adt"
	"github.com/filecoin-project/vesting-actors/support/mock"
	tutil "github.com/filecoin-project/vesting-actors/support/testing"
)

func TestConstruction(t *testing.T) {
	actor := vesting.Actor{}

	receiver := tutil.NewIDAddr(t, 1000)
	operator := tutil.NewIDAddr(t, 100)

	builder := mock.NewBuilder(context.Background(), receiver).
		WithCaller(builtin.InitActorAddr, builtin.InitActorCodeID)

	t.Run("simple construction", func(t *testing.T) {
		rt := builder.Build(t)
		rt.ExpectValidateCallerAddr(builtin.InitActorAddr)
		ret := rt.Call(actor.Constructor, &vesting.ConstructorParams{Operator: operator})
		assert.Nil(t, ret)
		rt.Verify()

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, operator, st.Operator)
		assert.Equal(t, big.Zero(), st.LockedTotal)
		assert.Equal(t, uint64(0), st.ScheduleCount)

		schedules := adt.AsMap(adt.AsStore(rt), st.Schedules)
		keys, err := schedules.CollectKeys()
		require.NoError(t, err)
		assert.Empty(t, keys)

		order := adt.AsArray(adt.AsStore(rt), st.ScheduleOrder)
		length, err := order.Length()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), length)
	})

	t.Run("resolves operator to ID address", func(t *testing.T) {
		operatorKey := tutil.NewSECP256K1Addr(t, "operator")
		rt := builder.Build(t)
		rt.AddIDAddress(operatorKey, operator)

		rt.ExpectValidateCallerAddr(builtin.InitActorAddr)
		rt.Call(actor.Constructor, &vesting.ConstructorParams{Operator: operatorKey})
		rt.Verify()

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, operator, st.Operator)
	})

	t.Run("fails when caller is not the init actor", func(t *testing.T) {
		rt := builder.WithCaller(operator, builtin.AccountActorCodeID).Build(t)
		rt.ExpectValidateCallerAddr(builtin.InitActorAddr)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(actor.Constructor, &vesting.ConstructorParams{Operator: operator})
		})
		rt.Verify()
	})
}

func TestCreateVestingSchedule(t *testing.T) {
	anne := tutil.NewIDAddr(t, 101)

	t.Run("creates a schedule and reserves custody", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(2_000_000))

		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1_000_000)))
		assert.True(t, id.Equals(vesting.ComputeScheduleIDForAddressAndIndex(anne, 0)))

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, abi.NewTokenAmount(1_000_000), st.LockedTotal)
		assert.Equal(t, uint64(1), st.ScheduleCount)

		sched, found, err := st.LoadSchedule(adt.AsStore(rt), id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, anne, sched.Beneficiary)
		assert.Equal(t, abi.ChainEpoch(0), sched.Start)
		assert.Equal(t, abi.ChainEpoch(0), sched.Cliff)
		assert.Equal(t, abi.ChainEpoch(1000), sched.Duration)
		assert.Equal(t, abi.ChainEpoch(100), sched.SlicePeriod)
		assert.True(t, sched.Revocable)
		assert.False(t, sched.Revoked)
		assert.Equal(t, abi.NewTokenAmount(1_000_000), sched.AmountTotal)
		assert.Equal(t, big.Zero(), sched.Released)

		h.checkState(rt)
	})

	t.Run("cliff epoch is start plus cliff duration", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		params := h.scheduleParams(anne, abi.NewTokenAmount(1000))
		params.Start = abi.ChainEpoch(500)
		params.CliffDuration = abi.ChainEpoch(250)
		id := h.create(rt, params)

		var st vesting.State
		rt.GetState(&st)
		sched, _, err := st.LoadSchedule(adt.AsStore(rt), id)
		require.NoError(t, err)
		assert.Equal(t, abi.ChainEpoch(750), sched.Cliff)
	})

	t.Run("assigns sequential identifiers per beneficiary", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(3000))

		id0 := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))
		id1 := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))

		assert.True(t, id0.Equals(vesting.ComputeScheduleIDForAddressAndIndex(anne, 0)))
		assert.True(t, id1.Equals(vesting.ComputeScheduleIDForAddressAndIndex(anne, 1)))

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, uint64(2), st.ScheduleCount)
		assert.Equal(t, abi.NewTokenAmount(2000), st.LockedTotal)
		h.checkState(rt)
	})

	t.Run("rejects invalid parameters", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		rt.SetCaller(h.operator, builtin.AccountActorCodeID)

		zeroAmount := h.scheduleParams(anne, big.Zero())
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.CreateVestingSchedule, zeroAmount)
		})

		negAmount := h.scheduleParams(anne, abi.NewTokenAmount(-1))
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.CreateVestingSchedule, negAmount)
		})

		zeroDuration := h.scheduleParams(anne, abi.NewTokenAmount(100))
		zeroDuration.Duration = 0
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.CreateVestingSchedule, zeroDuration)
		})

		zeroSlice := h.scheduleParams(anne, abi.NewTokenAmount(100))
		zeroSlice.SlicePeriod = 0
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.CreateVestingSchedule, zeroSlice)
		})

		negStart := h.scheduleParams(anne, abi.NewTokenAmount(100))
		negStart.Start = -1
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.CreateVestingSchedule, negStart)
		})

		negCliff := h.scheduleParams(anne, abi.NewTokenAmount(100))
		negCliff.CliffDuration = -1
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.CreateVestingSchedule, negCliff)
		})

		noBeneficiary := h.scheduleParams(addr.Undef, abi.NewTokenAmount(100))
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.CreateVestingSchedule, noBeneficiary)
		})

		// nothing was created
		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, uint64(0), st.ScheduleCount)
		h.checkState(rt)
	})

	t.Run("rejects beneficiary that cannot be resolved to an ID address", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		// a key address with no registered ID mapping: the zero-value send is
		// issued to force an account into existence, but resolution still fails
		unregistered := tutil.NewSECP256K1Addr(t, "nobody")
		rt.SetCaller(h.operator, builtin.AccountActorCodeID)
		rt.ExpectSend(unregistered, builtin.MethodSend, nil, big.Zero(), nil, exitcode.Ok)
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.CreateVestingSchedule, h.scheduleParams(unregistered, abi.NewTokenAmount(100)))
		})
		rt.Verify()

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, uint64(0), st.ScheduleCount)
		h.checkState(rt)
	})

	t.Run("rejects caller other than operator", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		rt.SetCaller(anne, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.operator)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(h.CreateVestingSchedule, h.scheduleParams(anne, abi.NewTokenAmount(100)))
		})
		rt.Verify()
	})

	t.Run("rejects amount exceeding unreserved balance", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(800)))

		// only 200 of the balance remains unreserved
		rt.SetCaller(h.operator, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.operator)
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(h.CreateVestingSchedule, h.scheduleParams(anne, abi.NewTokenAmount(300)))
		})
		rt.Verify()

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, uint64(1), st.ScheduleCount)
		h.checkState(rt)
	})
}

func TestRelease(t *testing.T) {
	anne := tutil.NewIDAddr(t, 101)
	bob := tutil.NewIDAddr(t, 102)

	t.Run("nothing is releasable before the cliff", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1_000_000))
		params := h.scheduleParams(anne, abi.NewTokenAmount(1_000_000))
		params.CliffDuration = abi.ChainEpoch(500)
		id := h.create(rt, params)

		rt.SetEpoch(abi.ChainEpoch(499))
		assert.Equal(t, big.Zero(), h.releasable(rt, id))

		rt.SetCaller(anne, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(anne, h.operator)
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(h.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(1)})
		})
		rt.Verify()
		h.checkState(rt)
	})

	t.Run("beneficiary releases vested tokens", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1_000_000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1_000_000)))

		// at epoch 500, 6 of 10 slices are unlocked
		rt.SetEpoch(abi.ChainEpoch(500))
		assert.Equal(t, abi.NewTokenAmount(600_000), h.releasable(rt, id))

		h.release(rt, anne, anne, id, abi.NewTokenAmount(400_000))

		var st vesting.State
		rt.GetState(&st)
		sched, _, err := st.LoadSchedule(adt.AsStore(rt), id)
		require.NoError(t, err)
		assert.Equal(t, abi.NewTokenAmount(400_000), sched.Released)
		assert.Equal(t, abi.NewTokenAmount(600_000), st.LockedTotal)
		assert.Equal(t, abi.NewTokenAmount(600_000), rt.GetBalance())

		// the remaining vested amount is still releasable
		assert.Equal(t, abi.NewTokenAmount(200_000), h.releasable(rt, id))
		h.checkState(rt)
	})

	t.Run("operator may release on the beneficiary's behalf", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))

		rt.SetEpoch(abi.ChainEpoch(1100))
		h.release(rt, h.operator, anne, id, abi.NewTokenAmount(1000))

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, big.Zero(), st.LockedTotal)
		h.checkState(rt)
	})

	t.Run("stranger may not release", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))

		rt.SetEpoch(abi.ChainEpoch(1100))
		rt.SetCaller(bob, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(anne, h.operator)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(h.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(1)})
		})
		rt.Verify()
	})

	t.Run("fails on unknown schedule", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		rt.SetCaller(anne, builtin.AccountActorCodeID)
		rt.ExpectAbort(exitcode.ErrNotFound, func() {
			rt.Call(h.Release, &vesting.ReleaseParams{
				ID:     vesting.ComputeScheduleIDForAddressAndIndex(anne, 0),
				Amount: abi.NewTokenAmount(1),
			})
		})
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))

		rt.SetCaller(anne, builtin.AccountActorCodeID)
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.Release, &vesting.ReleaseParams{ID: id, Amount: big.Zero()})
		})
	})

	t.Run("rejects amount exceeding releasable", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1_000_000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1_000_000)))

		rt.SetEpoch(abi.ChainEpoch(500))
		rt.SetCaller(anne, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(anne, h.operator)
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(h.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(600_001)})
		})
		rt.Verify()

		// failure left no trace
		var st vesting.State
		rt.GetState(&st)
		sched, _, err := st.LoadSchedule(adt.AsStore(rt), id)
		require.NoError(t, err)
		assert.Equal(t, big.Zero(), sched.Released)
		assert.Equal(t, abi.NewTokenAmount(1_000_000), st.LockedTotal)
		h.checkState(rt)
	})

	t.Run("full release after vesting completes", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1_000_000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1_000_000)))

		rt.SetEpoch(abi.ChainEpoch(1000))
		assert.Equal(t, abi.NewTokenAmount(1_000_000), h.releasable(rt, id))
		h.release(rt, anne, anne, id, abi.NewTokenAmount(1_000_000))

		var st vesting.State
		rt.GetState(&st)
		sched, _, err := st.LoadSchedule(adt.AsStore(rt), id)
		require.NoError(t, err)
		assert.Equal(t, sched.AmountTotal, sched.Released)
		assert.Equal(t, big.Zero(), st.LockedTotal)
		// zeros produced by arithmetic are not canonical, compare by value
		releasable := h.releasable(rt, id)
		assert.True(t, releasable.IsZero())
		h.checkState(rt)
	})
}

func TestRevoke(t *testing.T) {
	anne := tutil.NewIDAddr(t, 101)

	t.Run("revoke mid-vesting settles vested remainder", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1_000_000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1_000_000)))

		// 600,000 vested, of which 400,000 already released
		rt.SetEpoch(abi.ChainEpoch(500))
		h.release(rt, anne, anne, id, abi.NewTokenAmount(400_000))

		// beneficiary receives the outstanding 200,000 at revocation
		h.revoke(rt, id, anne, abi.NewTokenAmount(200_000))

		var st vesting.State
		rt.GetState(&st)
		sched, _, err := st.LoadSchedule(adt.AsStore(rt), id)
		require.NoError(t, err)
		assert.True(t, sched.Revoked)
		assert.Equal(t, abi.NewTokenAmount(600_000), sched.Released)
		assert.Equal(t, big.Zero(), st.LockedTotal)

		// the unvested 400,000 is back in the operator's unreserved pool
		assert.Equal(t, abi.NewTokenAmount(400_000), st.WithdrawableBalance(rt.GetBalance()))
		h.withdraw(rt, abi.NewTokenAmount(400_000))

		// a revoked schedule never becomes releasable again
		assert.Equal(t, big.Zero(), h.releasable(rt, id))
		rt.SetEpoch(abi.ChainEpoch(100_000))
		assert.Equal(t, big.Zero(), h.releasable(rt, id))
		h.checkState(rt)
	})

	t.Run("revoke before cliff reclaims everything", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		params := h.scheduleParams(anne, abi.NewTokenAmount(1000))
		params.CliffDuration = abi.ChainEpoch(500)
		id := h.create(rt, params)

		// nothing vested, so nothing is settled and no transfer happens
		h.revoke(rt, id, anne, big.Zero())

		var st vesting.State
		rt.GetState(&st)
		assert.Equal(t, big.Zero(), st.LockedTotal)
		assert.Equal(t, abi.NewTokenAmount(1000), st.WithdrawableBalance(rt.GetBalance()))
		h.checkState(rt)
	})

	t.Run("revoke after full release just flips the flag", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))

		rt.SetEpoch(abi.ChainEpoch(1000))
		h.release(rt, anne, anne, id, abi.NewTokenAmount(1000))
		h.revoke(rt, id, anne, big.Zero())

		var st vesting.State
		rt.GetState(&st)
		sched, _, err := st.LoadSchedule(adt.AsStore(rt), id)
		require.NoError(t, err)
		assert.True(t, sched.Revoked)
		assert.Equal(t, sched.AmountTotal, sched.Released)
		h.checkState(rt)
	})

	t.Run("cannot revoke a non-revocable schedule", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		params := h.scheduleParams(anne, abi.NewTokenAmount(1000))
		params.Revocable = false
		id := h.create(rt, params)

		rt.SetCaller(h.operator, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.operator)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(h.Revoke, &vesting.ScheduleIDParams{ID: id})
		})
		rt.Verify()
		h.checkState(rt)
	})

	t.Run("cannot revoke twice", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))

		// the first slice unlocks at the cliff instant, so revocation settles it
		h.revoke(rt, id, anne, abi.NewTokenAmount(100))

		rt.SetCaller(h.operator, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.operator)
		rt.ExpectAbort(exitcode.ErrIllegalState, func() {
			rt.Call(h.Revoke, &vesting.ScheduleIDParams{ID: id})
		})
		rt.Verify()
		h.checkState(rt)
	})

	t.Run("fails on unknown schedule", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		rt.SetCaller(h.operator, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.operator)
		rt.ExpectAbort(exitcode.ErrNotFound, func() {
			rt.Call(h.Revoke, &vesting.ScheduleIDParams{ID: vesting.ComputeScheduleIDForAddressAndIndex(anne, 0)})
		})
		rt.Verify()
	})

	t.Run("only the operator may revoke", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))

		rt.SetCaller(anne, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.operator)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(h.Revoke, &vesting.ScheduleIDParams{ID: id})
		})
		rt.Verify()
	})
}

func TestWithdraw(t *testing.T) {
	anne := tutil.NewIDAddr(t, 101)

	t.Run("operator withdraws unreserved balance", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(800)))

		h.withdraw(rt, abi.NewTokenAmount(200))
		assert.Equal(t, abi.NewTokenAmount(800), rt.GetBalance())
		h.checkState(rt)
	})

	t.Run("cannot withdraw reserved tokens", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(800)))

		rt.SetCaller(h.operator, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.operator)
		rt.ExpectAbort(exitcode.ErrInsufficientFunds, func() {
			rt.Call(h.Withdraw, &vesting.WithdrawParams{Amount: abi.NewTokenAmount(201)})
		})
		rt.Verify()
		h.checkState(rt)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		rt.SetCaller(h.operator, builtin.AccountActorCodeID)
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(h.Withdraw, &vesting.WithdrawParams{Amount: big.Zero()})
		})
	})

	t.Run("only the operator may withdraw", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		rt.SetCaller(anne, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(h.operator)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(h.Withdraw, &vesting.WithdrawParams{Amount: abi.NewTokenAmount(1)})
		})
		rt.Verify()
	})
}

func TestQueries(t *testing.T) {
	anne := tutil.NewIDAddr(t, 101)
	bob := tutil.NewIDAddr(t, 102)

	t.Run("get schedule returns the stored record", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1000)))

		rt.SetCaller(bob, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		ret := rt.Call(h.GetVestingSchedule, &vesting.ScheduleIDParams{ID: id}).(*vesting.VestingSchedule)
		rt.Verify()

		assert.Equal(t, anne, ret.Beneficiary)
		assert.Equal(t, abi.NewTokenAmount(1000), ret.AmountTotal)
	})

	t.Run("get schedule fails on unknown id", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		rt.SetCaller(bob, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrNotFound, func() {
			rt.Call(h.GetVestingSchedule, &vesting.ScheduleIDParams{ID: vesting.ComputeScheduleIDForAddressAndIndex(anne, 0)})
		})
		rt.Verify()
	})

	t.Run("compute releasable fails on unknown id", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))

		rt.SetCaller(bob, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		rt.ExpectAbort(exitcode.ErrNotFound, func() {
			rt.Call(h.ComputeReleasableAmount, &vesting.ScheduleIDParams{ID: vesting.ComputeScheduleIDForAddressAndIndex(anne, 0)})
		})
		rt.Verify()
	})

	t.Run("compute releasable is idempotent", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1_000_000))
		id := h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(1_000_000)))
		rt.SetEpoch(abi.ChainEpoch(500))

		root := rt.StateRoot()
		first := h.releasable(rt, id)
		second := h.releasable(rt, id)
		assert.Equal(t, first, second)
		assert.Equal(t, root, rt.StateRoot())
	})

	t.Run("stats summarize custody", func(t *testing.T) {
		rt, h := setupFunded(t, abi.NewTokenAmount(1000))
		h.create(rt, h.scheduleParams(anne, abi.NewTokenAmount(600)))
		h.create(rt, h.scheduleParams(bob, abi.NewTokenAmount(150)))

		rt.SetCaller(bob, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAny()
		ret := rt.Call(h.GetVestingStats, nil).(*vesting.StatsReturn)
		rt.Verify()

		assert.Equal(t, uint64(2), ret.ScheduleCount)
		assert.Equal(t, abi.NewTokenAmount(750), ret.LockedTotal)
		assert.Equal(t, abi.NewTokenAmount(250), ret.WithdrawableAmount)
	})
}

///// Test harness /////

type actorHarness struct {
	vesting.Actor
	t        *testing.T
	operator addr.Address
}

// Constructs the actor with a funded balance and the harness operator.
func setupFunded(t *testing.T, balance abi.TokenAmount) (*mock.Runtime, *actorHarness) {
	h := &actorHarness{vesting.Actor{}, t, tutil.NewIDAddr(t, 100)}

	receiver := tutil.NewIDAddr(t, 1000)
	rt := mock.NewBuilder(context.Background(), receiver).
		WithCaller(builtin.InitActorAddr, builtin.InitActorCodeID).
		WithBalance(balance, big.Zero()).
		Build(t)
	h.constructAndVerify(rt)
	return rt, h
}

func (h *actorHarness) constructAndVerify(rt *mock.Runtime) {
	rt.ExpectValidateCallerAddr(builtin.InitActorAddr)
	ret := rt.Call(h.Constructor, &vesting.ConstructorParams{Operator: h.operator})
	assert.Nil(h.t, ret)
	rt.Verify()
}

// Default schedule: no cliff, 1000 epochs vesting in 10 slices of 100 epochs.
func (h *actorHarness) scheduleParams(beneficiary addr.Address, amount abi.TokenAmount) *vesting.CreateScheduleParams {
	return &vesting.CreateScheduleParams{
		Beneficiary:   beneficiary,
		Start:         abi.ChainEpoch(0),
		CliffDuration: abi.ChainEpoch(0),
		Duration:      abi.ChainEpoch(1000),
		SlicePeriod:   abi.ChainEpoch(100),
		Revocable:     true,
		Amount:        amount,
	}
}

func (h *actorHarness) create(rt *mock.Runtime, params *vesting.CreateScheduleParams) vesting.ScheduleID {
	rt.SetCaller(h.operator, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.operator)
	ret := rt.Call(h.CreateVestingSchedule, params).(*vesting.CreateScheduleReturn)
	rt.Verify()
	require.NotNil(h.t, ret)
	return ret.ID
}

func (h *actorHarness) release(rt *mock.Runtime, caller, beneficiary addr.Address, id vesting.ScheduleID, amount abi.TokenAmount) {
	rt.SetCaller(caller, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(beneficiary, h.operator)
	rt.ExpectSend(beneficiary, builtin.MethodSend, nil, amount, nil, exitcode.Ok)
	rt.Call(h.Release, &vesting.ReleaseParams{ID: id, Amount: amount})
	rt.Verify()
}

func (h *actorHarness) revoke(rt *mock.Runtime, id vesting.ScheduleID, beneficiary addr.Address, settle abi.TokenAmount) {
	rt.SetCaller(h.operator, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.operator)
	if settle.Sign() > 0 {
		rt.ExpectSend(beneficiary, builtin.MethodSend, nil, settle, nil, exitcode.Ok)
	}
	rt.Call(h.Revoke, &vesting.ScheduleIDParams{ID: id})
	rt.Verify()
}

func (h *actorHarness) withdraw(rt *mock.Runtime, amount abi.TokenAmount) {
	rt.SetCaller(h.operator, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.operator)
	rt.ExpectSend(h.operator, builtin.MethodSend, nil, amount, nil, exitcode.Ok)
	rt.Call(h.Withdraw, &vesting.WithdrawParams{Amount: amount})
	rt.Verify()
}

func (h *actorHarness) releasable(rt *mock.Runtime, id vesting.ScheduleID) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	ret := rt.Call(h.ComputeReleasableAmount, &vesting.ScheduleIDParams{ID: id}).(*vesting.ReleasableReturn)
	rt.Verify()
	return ret.Amount
}

func (h *actorHarness) checkState(rt *mock.Runtime) {
	var st vesting.State
	rt.GetState(&st)
	_, msgs, err := vesting.CheckStateInvariants(&st, adt.AsStore(rt), rt.GetBalance())
	require.NoError(h.t, err)
	assert.True(h.t, msgs.IsEmpty(), strings.Join(msgs.Messages(), "\n"))
}
