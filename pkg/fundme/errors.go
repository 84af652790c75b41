package fundme

import (
	"errors"
	"fmt"

	"github.com/84hero/fundme/pkg/contracts"
	"github.com/84hero/fundme/pkg/decoder"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	// ErrNotOwner is returned when a non-owner calls withdraw or cheaperWithdraw.
	ErrNotOwner = errors.New(contracts.ErrNameNotOwner)
	// ErrNotEnoughETH is returned when fund is called below the USD minimum.
	ErrNotEnoughETH = errors.New(contracts.ErrNameNotEnoughETH)
	// ErrReverted covers reverts that do not map to a known custom error.
	ErrReverted = errors.New("execution reverted")
	// ErrTxFailed is returned by WaitMined for receipts with status 0.
	ErrTxFailed = errors.New("transaction failed")
)

var customErrors = map[string]error{
	contracts.ErrNameNotOwner:     ErrNotOwner,
	contracts.ErrNameNotEnoughETH: ErrNotEnoughETH,
}

// RevertError carries the decoded revert of a call or gas estimation.
type RevertError struct {
	Name string
	Data []byte
	err  error
}

func (e *RevertError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("execution reverted: %v", e.err)
	}
	return "execution reverted: " + e.Name
}

func (e *RevertError) Is(target error) bool {
	if target == ErrReverted {
		return true
	}
	known, ok := customErrors[e.Name]
	return ok && known == target
}

func (e *RevertError) Unwrap() error { return e.err }

// wrapRevert converts backend errors carrying revert data into *RevertError.
func wrapRevert(parsed abi.ABI, err error) error {
	if err == nil {
		return nil
	}
	data, ok := decoder.RevertData(err)
	if !ok {
		return err
	}
	name, _ := decoder.New(parsed).DecodeRevert(data)
	return &RevertError{Name: name, Data: data, err: err}
}
