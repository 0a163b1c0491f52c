package common

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	NOT_ENTERED = 1
	ENTERED     = 2
)

// ReentrancyGuard blocks nested entry into a guarded operation. State is
// in memory only: each contract instance lives for a single call, so the
// guard trips exactly when a sub-call re-enters the same instance.
type ReentrancyGuard struct {
	status uint
}

func NewReentrancyGuard() *ReentrancyGuard {
	return &ReentrancyGuard{status: NOT_ENTERED}
}

// Enter marks the operation in progress. Pair with a deferred Exit so
// failure paths release the guard too.
func (rg *ReentrancyGuard) Enter() error {
	if rg.status == ENTERED {
		return ReentrancyGuardReentrantCall()
	}

	rg.status = ENTERED
	return nil
}

func (rg *ReentrancyGuard) Exit() {
	rg.status = NOT_ENTERED
}

func (rg *ReentrancyGuard) IsEntered() bool {
	return rg.status == ENTERED
}

func ReentrancyGuardReentrantCall() error {
	return NewRevertError("ReentrancyGuardReentrantCall", abi.Arguments{}, nil)
}
