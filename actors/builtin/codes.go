package builtin

import (
	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// The built-in actor code IDs
var (
	SystemActorCodeID   cid.Cid
	InitActorCodeID     cid.Cid
	CronActorCodeID     cid.Cid
	AccountActorCodeID  cid.Cid
	MultisigActorCodeID cid.Cid
	VestingActorCodeID  cid.Cid
	CallerTypesSignable []cid.Cid
)

func init() {
	builder := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}
	makeBuiltin := func(s string) cid.Cid {
		c, err := builder.Sum([]byte(s))
		if err != nil {
			panic(err)
		}
		return c
	}

	SystemActorCodeID = makeBuiltin("vest/1/system")
	InitActorCodeID = makeBuiltin("vest/1/init")
	CronActorCodeID = makeBuiltin("vest/1/cron")
	AccountActorCodeID = makeBuiltin("vest/1/account")
	MultisigActorCodeID = makeBuiltin("vest/1/multisig")
	VestingActorCodeID = makeBuiltin("vest/1/vesting")

	// Set of actor code types that can represent external signing parties.
	CallerTypesSignable = []cid.Cid{AccountActorCodeID, MultisigActorCodeID}
}
