package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/filecoin-project/vesting-actors/actors/builtin"
	"github.com/filecoin-project/vesting-actors/actors/util/adt"
)

type StateSummary struct {
	ScheduleCount uint64
	LockedTotal   abi.TokenAmount
	HolderCount   int
}

// Checks internal invariants of vesting actor state.
func CheckStateInvariants(st *State, store adt.Store, balance abi.TokenAmount) (*StateSummary, *builtin.MessageAccumulator, error) {
	acc := &builtin.MessageAccumulator{}

	acc.Require(st.LockedTotal.GreaterThanEqual(big.Zero()), "locked total is negative: %v", st.LockedTotal)
	acc.Require(balance.GreaterThanEqual(st.LockedTotal),
		"balance %v is insufficient to cover locked total %v", balance, st.LockedTotal)

	// sum custody over all live schedules and group it by beneficiary
	schedules := adt.AsMap(store, st.Schedules)
	unreleasedByHolder := map[addr.Address]abi.TokenAmount{}
	numSchedules := uint64(0)
	var sched VestingSchedule
	err := schedules.ForEach(&sched, func(idStr string) error {
		id := ScheduleID(idStr)
		acc.Require(len(id) == ScheduleIDLength, "schedule key %v has wrong length %d", id, len(id))
		acc.Require(sched.AmountTotal.GreaterThan(big.Zero()), "schedule %v has non-positive amount %v", id, sched.AmountTotal)
		acc.Require(sched.Released.GreaterThanEqual(big.Zero()), "schedule %v released is negative: %v", id, sched.Released)
		acc.Require(sched.Released.LessThanEqual(sched.AmountTotal),
			"schedule %v released %v exceeds total %v", id, sched.Released, sched.AmountTotal)
		acc.Require(sched.Cliff >= sched.Start, "schedule %v cliff %d precedes start %d", id, sched.Cliff, sched.Start)
		acc.Require(sched.SlicePeriod >= 1, "schedule %v has invalid slice period %d", id, sched.SlicePeriod)
		acc.Require(!sched.Revoked || sched.Revocable, "schedule %v revoked but not revocable", id)

		if !sched.Revoked {
			prev, ok := unreleasedByHolder[sched.Beneficiary]
			if !ok {
				prev = big.Zero()
			}
			unreleasedByHolder[sched.Beneficiary] = big.Add(prev, sched.UnreleasedAmount())
		}
		numSchedules++
		return nil
	})
	if err != nil {
		return nil, acc, err
	}

	acc.Require(numSchedules == st.ScheduleCount,
		"schedule map holds %d entries, count is %d", numSchedules, st.ScheduleCount)

	unreleasedTotal := big.Zero()
	for _, amt := range unreleasedByHolder { // nolint:nomaprange
		unreleasedTotal = big.Add(unreleasedTotal, amt)
	}
	acc.Require(unreleasedTotal.Equals(st.LockedTotal),
		"sum of unreleased amounts %v does not equal locked total %v", unreleasedTotal, st.LockedTotal)

	// the per-holder custody table must agree with the schedules
	holderLocked := adt.AsBalanceTable(store, st.HolderLocked)
	lockedTableTotal, err := holderLocked.Total()
	if err != nil {
		return nil, acc, err
	}
	acc.Require(lockedTableTotal.Equals(st.LockedTotal),
		"holder locked table total %v does not equal locked total %v", lockedTableTotal, st.LockedTotal)

	for holder, expected := range unreleasedByHolder { // nolint:nomaprange
		actual, err := holderLocked.Get(holder)
		if err != nil {
			return nil, acc, err
		}
		acc.Require(actual.Equals(expected), "holder %v locked %v, schedules say %v", holder, actual, expected)
	}

	// every counted holder index must resolve to a stored schedule
	counts := adt.AsMap(store, st.HolderCounts)
	numHolders := 0
	var count cbg.CborInt
	err = counts.ForEach(&count, func(key string) error {
		holder, err := addr.NewFromBytes([]byte(key))
		if err != nil {
			return err
		}
		acc.Require(count > 0, "holder %v has zero schedule count", holder)
		for i := uint64(0); i < uint64(count); i++ {
			id := ComputeScheduleIDForAddressAndIndex(holder, i)
			_, found, err := st.LoadSchedule(store, id)
			if err != nil {
				return err
			}
			acc.Require(found, "holder %v index %d has no schedule %v", holder, i, id)
		}
		numHolders++
		return nil
	})
	if err != nil {
		return nil, acc, err
	}

	// the creation-order index covers every schedule exactly once
	order := adt.AsArray(store, st.ScheduleOrder)
	orderLength, err := order.Length()
	if err != nil {
		return nil, acc, err
	}
	acc.Require(orderLength == st.ScheduleCount,
		"schedule order index holds %d entries, count is %d", orderLength, st.ScheduleCount)

	seen := map[string]bool{}
	var id ScheduleID
	err = order.ForEach(&id, func(i int64) error {
		acc.Require(!seen[id.Key()], "schedule %v appears twice in order index", id)
		seen[id.Key()] = true
		_, found, err := st.LoadSchedule(store, id)
		if err != nil {
			return err
		}
		acc.Require(found, "order index entry %d references missing schedule %v", i, id)
		return nil
	})
	if err != nil {
		return nil, acc, err
	}

	return &StateSummary{
		ScheduleCount: st.ScheduleCount,
		LockedTotal:   st.LockedTotal,
		HolderCount:   numHolders,
	}, acc, nil
}
