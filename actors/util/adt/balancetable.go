package adt

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
	errors "github.com/pkg/errors"
)

// A specialization of a map of addresses to token amounts.
// Absent keys are implicitly zero; zero balances are removed from the underlying map.
type BalanceTable Map

// Interprets a store as a balance table with root `r`.
func AsBalanceTable(s Store, r cid.Cid) *BalanceTable {
	return &BalanceTable{
		root:  r,
		store: s,
	}
}

// Creates a new balance table backed by an empty map and flushes it to the store.
func MakeEmptyBalanceTable(s Store) (*BalanceTable, error) {
	m, err := MakeEmptyMap(s)
	return (*BalanceTable)(m), err
}

// Root returns the root cid of the underlying map.
func (t *BalanceTable) Root() cid.Cid {
	return t.root
}

// Get returns the balance for a key, or zero if the key is absent.
func (t *BalanceTable) Get(key addr.Address) (abi.TokenAmount, error) {
	var value abi.TokenAmount
	found, err := (*Map)(t).Get(abi.AddrKey(key), &value)
	if err != nil {
		return big.Zero(), err // The errors from Map carry good information, no need to wrap here.
	}
	if !found {
		return big.Zero(), nil
	}
	return value, nil
}

// Add adds an amount (which may be negative) to a balance.
// Fails if the result would be negative; a zero result removes the entry.
func (t *BalanceTable) Add(key addr.Address, value abi.TokenAmount) error {
	prev, err := t.Get(key)
	if err != nil {
		return err
	}
	sum := big.Add(prev, value)
	switch sum.Sign() {
	case -1:
		return errors.Errorf("adding %v to balance %v of %v would give a negative result", value, prev, key)
	case 0:
		if prev.Sign() != 0 {
			return (*Map)(t).Delete(abi.AddrKey(key))
		}
		return nil
	default:
		return (*Map)(t).Put(abi.AddrKey(key), &sum)
	}
}

// Total returns the sum of all balances in the table.
func (t *BalanceTable) Total() (abi.TokenAmount, error) {
	total := big.Zero()
	var balance abi.TokenAmount
	err := (*Map)(t).ForEach(&balance, func(key string) error {
		total = big.Add(total, balance)
		return nil
	})
	return total, err
}
