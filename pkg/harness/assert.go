package harness

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrAssertion marks a failed expectation, as opposed to an error talking
// to the chain.
var ErrAssertion = errors.New("assertion failed")

func expectBig(what string, got, want *big.Int) error {
	if got.Cmp(want) != 0 {
		return fmt.Errorf("%w: %s: expected %s, got %s", ErrAssertion, what, want, got)
	}
	return nil
}

func expectAddress(what string, got, want common.Address) error {
	if got != want {
		return fmt.Errorf("%w: %s: expected %s, got %s", ErrAssertion, what, want.Hex(), got.Hex())
	}
	return nil
}

func expectTrue(what string, ok bool) error {
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssertion, what)
	}
	return nil
}

// expectRevert checks that err is the custom error want.
func expectRevert(what string, err, want error) error {
	if err == nil {
		return fmt.Errorf("%w: %s: expected revert with %v, call succeeded", ErrAssertion, what, want)
	}
	if !errors.Is(err, want) {
		return fmt.Errorf("%w: %s: expected revert with %v, got %v", ErrAssertion, what, want, err)
	}
	return nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
