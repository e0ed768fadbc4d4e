package adt

import (
	"context"

	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	cid "github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"

	vmr "github.com/filecoin-project/vesting-actors/actors/runtime"
)

// Store defines an interface required to back the ADTs in this package.
type Store interface {
	Context() context.Context
	ipldcbor.IpldStore
}

// AsStore allows Runtime to satisfy the adt.Store interface.
func AsStore(rt vmr.Runtime) Store {
	return rtStore{rt}
}

var _ Store = &rtStore{}

type rtStore struct {
	vmr.Runtime
}

func (r rtStore) Get(_ context.Context, c cid.Cid, out interface{}) error {
	// The runtime handles serialization failures internally; a missing object is fatal.
	if !r.Runtime.Store().Get(c, out.(cbor.Unmarshaler)) {
		r.Abortf(exitcode.ErrIllegalState, "object %v not found in store", c)
	}
	return nil
}

func (r rtStore) Put(_ context.Context, v interface{}) (cid.Cid, error) {
	return r.Runtime.Store().Put(v.(cbor.Marshaler)), nil
}

// WrapStore adapts a plain IPLD store to an adt.Store. Used by code executing
// outside an actor invocation, e.g. tests and tooling.
func WrapStore(ctx context.Context, store ipldcbor.IpldStore) Store {
	return &wstore{ctx: ctx, IpldStore: store}
}

type wstore struct {
	ctx context.Context
	ipldcbor.IpldStore
}

var _ Store = &wstore{}

func (s *wstore) Context() context.Context {
	return s.ctx
}
