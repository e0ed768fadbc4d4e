package vesting

import (
	"encoding/binary"
	"fmt"
	"io"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
	"github.com/minio/blake2b-simd"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/vesting-actors/actors/util/adt"
)

// State holds all vesting schedules ever created, the custody total of tokens
// reserved for them, and the indices used to address schedules deterministically.
type State struct {
	// Operator authorized to create and revoke schedules and withdraw unreserved funds.
	// Always an ID-address.
	Operator addr.Address

	// Sum over all live schedules of tokens committed but not yet released.
	// The actor's balance must never fall below this amount.
	LockedTotal abi.TokenAmount

	// Schedules indexed by their derived identifier. HAMT[ScheduleID]VestingSchedule
	Schedules cid.Cid

	// Identifiers of all schedules, in creation order. AMT[]ScheduleID
	ScheduleOrder cid.Cid

	// Per-beneficiary sequence counters. HAMT[addr.Address]cbg.CborInt
	HolderCounts cid.Cid

	// Tokens locked per beneficiary. HAMT[addr.Address]TokenAmount
	HolderLocked cid.Cid

	// Total number of schedules ever created.
	ScheduleCount uint64
}

// VestingSchedule is one beneficiary's vesting commitment.
// Schedules are never deleted; revocation and full release leave the record
// in place as queryable history.
type VestingSchedule struct {
	// Beneficiary of vested tokens. Always an ID-address.
	Beneficiary addr.Address
	// Epoch at which the vesting clock begins.
	Start abi.ChainEpoch
	// Epoch before which no tokens may be released (start + cliff duration).
	Cliff abi.ChainEpoch
	// Number of epochs after the cliff over which vesting completes.
	Duration abi.ChainEpoch
	// Granularity of unlocking after the cliff, in epochs.
	SlicePeriod abi.ChainEpoch
	// Whether the operator may revoke the schedule early.
	Revocable bool
	// Whether the schedule has been revoked.
	Revoked bool
	// Total tokens committed to the schedule.
	AmountTotal abi.TokenAmount
	// Tokens already transferred to the beneficiary.
	Released abi.TokenAmount
}

// ScheduleID is the deterministic identifier of a vesting schedule, derived
// from the beneficiary address and a per-beneficiary sequence index.
// It is never stored inside the schedule record: anyone can recompute it.
type ScheduleID []byte

const ScheduleIDLength = 32

// ComputeScheduleIDForAddressAndIndex derives the identifier of the index'th
// schedule created for a beneficiary.
func ComputeScheduleIDForAddressAndIndex(beneficiary addr.Address, index uint64) ScheduleID {
	buf := make([]byte, 0, len(beneficiary.Bytes())+binary.MaxVarintLen64)
	buf = append(buf, beneficiary.Bytes()...)
	idx := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(idx, index)
	buf = append(buf, idx[:n]...)
	sum := blake2b.Sum256(buf)
	return sum[:]
}

// Key converts a ScheduleID to a HAMT key.
func (id ScheduleID) Key() string {
	return string(id)
}

func (id ScheduleID) Equals(other ScheduleID) bool {
	return string(id) == string(other)
}

func (id ScheduleID) String() string {
	return fmt.Sprintf("%x", []byte(id))
}

func (id ScheduleID) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajByteString, uint64(len(id))); err != nil {
		return err
	}
	_, err := w.Write(id)
	return err
}

func (id *ScheduleID) UnmarshalCBOR(r io.Reader) error {
	b, err := cbg.ReadByteArray(r, ScheduleIDLength)
	if err != nil {
		return err
	}
	*id = ScheduleID(b)
	return nil
}

func ConstructState(store adt.Store, operator addr.Address) (*State, error) {
	emptySchedules, err := adt.MakeEmptyMap(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty schedules map: %w", err)
	}
	emptyOrder, err := adt.MakeEmptyArray(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty schedule order: %w", err)
	}
	emptyCounts, err := adt.MakeEmptyMap(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty holder counts: %w", err)
	}
	emptyLocked, err := adt.MakeEmptyBalanceTable(store)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty holder balance table: %w", err)
	}

	return &State{
		Operator:      operator,
		LockedTotal:   big.Zero(),
		Schedules:     emptySchedules.Root(),
		ScheduleOrder: emptyOrder.Root(),
		HolderCounts:  emptyCounts.Root(),
		HolderLocked:  emptyLocked.Root(),
		ScheduleCount: 0,
	}, nil
}

// AmountVested returns the total amount unlocked at epoch `now`, whether or not
// yet released. Unlocking happens in discrete slices: the first slice becomes
// available exactly at the cliff epoch, and a new slice every slice period
// thereafter, until the whole amount is unlocked at cliff + duration.
func (vs *VestingSchedule) AmountVested(now abi.ChainEpoch) abi.TokenAmount {
	if now < vs.Cliff {
		return big.Zero()
	}
	if now >= vs.Cliff+vs.Duration {
		return vs.AmountTotal
	}
	vestedSlices := int64((now-vs.Cliff)/vs.SlicePeriod) + 1
	totalSlices := int64((vs.Duration + vs.SlicePeriod - 1) / vs.SlicePeriod)
	// Division must be done last to avoid precision loss with integer values.
	return big.Div(big.Mul(vs.AmountTotal, big.NewInt(vestedSlices)), big.NewInt(totalSlices))
}

// AmountReleasable returns the vested amount not yet released.
// Always zero for revoked schedules: the vested remainder was settled at
// revocation time.
func (vs *VestingSchedule) AmountReleasable(now abi.ChainEpoch) abi.TokenAmount {
	if vs.Revoked {
		return big.Zero()
	}
	return big.Sub(vs.AmountVested(now), vs.Released)
}

// UnreleasedAmount returns the schedule's contribution to the custody total
// while it has not been revoked.
func (vs *VestingSchedule) UnreleasedAmount() abi.TokenAmount {
	return big.Sub(vs.AmountTotal, vs.Released)
}

// LoadSchedule fetches a schedule record by identifier.
func (st *State) LoadSchedule(store adt.Store, id ScheduleID) (*VestingSchedule, bool, error) {
	schedules := adt.AsMap(store, st.Schedules)
	var sched VestingSchedule
	found, err := schedules.Get(id, &sched)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load schedule %v: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}
	return &sched, true, nil
}

// PutSchedule stores a schedule record under an existing identifier.
func (st *State) PutSchedule(store adt.Store, id ScheduleID, sched *VestingSchedule) error {
	schedules := adt.AsMap(store, st.Schedules)
	if err := schedules.Put(id, sched); err != nil {
		return xerrors.Errorf("failed to put schedule %v: %w", id, err)
	}
	st.Schedules = schedules.Root()
	return nil
}

// AllocateSchedule assigns the next sequence index for the schedule's
// beneficiary, records the schedule under its derived identifier, and reserves
// its total amount in the custody ledger.
func (st *State) AllocateSchedule(store adt.Store, sched *VestingSchedule) (ScheduleID, error) {
	counts := adt.AsMap(store, st.HolderCounts)
	var count cbg.CborInt
	found, err := counts.Get(abi.AddrKey(sched.Beneficiary), &count)
	if err != nil {
		return nil, xerrors.Errorf("failed to load holder count for %v: %w", sched.Beneficiary, err)
	}
	if !found {
		count = 0
	}

	id := ComputeScheduleIDForAddressAndIndex(sched.Beneficiary, uint64(count))
	if err := st.PutSchedule(store, id, sched); err != nil {
		return nil, err
	}

	order := adt.AsArray(store, st.ScheduleOrder)
	if err := order.Append(&id); err != nil {
		return nil, xerrors.Errorf("failed to append schedule %v to order index: %w", id, err)
	}
	st.ScheduleOrder = order.Root()

	count++
	if err := counts.Put(abi.AddrKey(sched.Beneficiary), &count); err != nil {
		return nil, xerrors.Errorf("failed to update holder count for %v: %w", sched.Beneficiary, err)
	}
	st.HolderCounts = counts.Root()

	locked := adt.AsBalanceTable(store, st.HolderLocked)
	if err := locked.Add(sched.Beneficiary, sched.AmountTotal); err != nil {
		return nil, xerrors.Errorf("failed to add locked balance for %v: %w", sched.Beneficiary, err)
	}
	st.HolderLocked = locked.Root()

	st.LockedTotal = big.Add(st.LockedTotal, sched.AmountTotal)
	st.ScheduleCount++
	return id, nil
}

// unlockCustody releases `amount` of a beneficiary's tokens from custody.
func (st *State) unlockCustody(store adt.Store, beneficiary addr.Address, amount abi.TokenAmount) error {
	locked := adt.AsBalanceTable(store, st.HolderLocked)
	if err := locked.Add(beneficiary, amount.Neg()); err != nil {
		return xerrors.Errorf("failed to unlock %v for %v: %w", amount, beneficiary, err)
	}
	st.HolderLocked = locked.Root()
	st.LockedTotal = big.Sub(st.LockedTotal, amount)
	if st.LockedTotal.Sign() < 0 {
		return xerrors.Errorf("locked total underflow: %v", st.LockedTotal)
	}
	return nil
}

// HolderScheduleCount returns the number of schedules created for a beneficiary.
func (st *State) HolderScheduleCount(store adt.Store, holder addr.Address) (uint64, error) {
	counts := adt.AsMap(store, st.HolderCounts)
	var count cbg.CborInt
	found, err := counts.Get(abi.AddrKey(holder), &count)
	if err != nil {
		return 0, xerrors.Errorf("failed to load holder count for %v: %w", holder, err)
	}
	if !found {
		return 0, nil
	}
	return uint64(count), nil
}

// ScheduleIDAtIndex returns the identifier of the index'th schedule created,
// counting across all beneficiaries.
func (st *State) ScheduleIDAtIndex(store adt.Store, index uint64) (ScheduleID, bool, error) {
	order := adt.AsArray(store, st.ScheduleOrder)
	var id ScheduleID
	found, err := order.Get(index, &id)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load schedule id at index %d: %w", index, err)
	}
	return id, found, nil
}

// LastScheduleForHolder returns the most recently created schedule for a
// beneficiary, if any.
func (st *State) LastScheduleForHolder(store adt.Store, holder addr.Address) (*VestingSchedule, bool, error) {
	count, err := st.HolderScheduleCount(store, holder)
	if err != nil {
		return nil, false, err
	}
	if count == 0 {
		return nil, false, nil
	}
	id := ComputeScheduleIDForAddressAndIndex(holder, count-1)
	return st.LoadSchedule(store, id)
}

// LockedFor returns the custody total attributable to one beneficiary.
func (st *State) LockedFor(store adt.Store, holder addr.Address) (abi.TokenAmount, error) {
	locked := adt.AsBalanceTable(store, st.HolderLocked)
	return locked.Get(holder)
}

// WithdrawableBalance returns the portion of the actor's balance not reserved
// for any schedule.
func (st *State) WithdrawableBalance(actorBalance abi.TokenAmount) abi.TokenAmount {
	return big.Max(big.Zero(), big.Sub(actorBalance, st.LockedTotal))
}
