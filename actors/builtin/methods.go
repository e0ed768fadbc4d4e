package builtin

import (
	"github.com/filecoin-project/go-state-types/abi"
)

const (
	MethodSend        = abi.MethodNum(0)
	MethodConstructor = abi.MethodNum(1)
)

type vestingMethods struct {
	Constructor             abi.MethodNum
	CreateVestingSchedule   abi.MethodNum
	Release                 abi.MethodNum
	Revoke                  abi.MethodNum
	Withdraw                abi.MethodNum
	ComputeReleasableAmount abi.MethodNum
	GetVestingSchedule      abi.MethodNum
	GetVestingStats         abi.MethodNum
}

var MethodsVesting = vestingMethods{MethodConstructor, 2, 3, 4, 5, 6, 7, 8}
