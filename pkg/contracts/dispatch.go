package contracts

import (
	"fmt"

	"github.com/84hero/fundme/pkg/devchain"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

type handler func(f *devchain.Frame, args []interface{}) ([]interface{}, error)

// dispatcher routes calldata to handlers by 4-byte selector, the way the
// Solidity compiler lays out a contract's entry point.
type dispatcher struct {
	abi      abi.ABI
	methods  map[string]handler
	receive  func(f *devchain.Frame) error
	fallback func(f *devchain.Frame) error
}

func (d *dispatcher) run(f *devchain.Frame, input []byte) ([]byte, error) {
	if len(input) == 0 && d.receive != nil {
		return nil, d.receive(f)
	}
	if len(input) < 4 {
		return nil, d.runFallback(f)
	}
	method, err := d.abi.MethodById(input[:4])
	if err != nil {
		return nil, d.runFallback(f)
	}
	h, ok := d.methods[method.Name]
	if !ok {
		return nil, d.runFallback(f)
	}
	if !method.IsPayable() && f.Value().Sign() > 0 {
		return nil, devchain.Revert(nil, "non-payable method "+method.Name)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, devchain.Revert(nil, fmt.Sprintf("bad calldata for %s", method.Name))
	}
	out, err := h(f, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (d *dispatcher) runFallback(f *devchain.Frame) error {
	if d.fallback == nil {
		return devchain.Revert(nil, "")
	}
	return d.fallback(f)
}

// customError builds the revert for a custom error declared in a.
func customError(a abi.ABI, name string) error {
	e, ok := a.Errors[name]
	if !ok {
		panic("undeclared error " + name)
	}
	return devchain.Revert(e.ID[:4], e.Sig)
}
