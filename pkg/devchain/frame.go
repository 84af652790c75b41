package devchain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

// Contract is a natively implemented contract hosted by the chain.
// Implementations keep all mutable data in storage slots so that the
// chain can journal and snapshot it.
type Contract interface {
	Run(f *Frame, input []byte) ([]byte, error)
}

// Artifact describes a deployable native contract.
type Artifact struct {
	Name   string
	Deploy func(f *Frame, args []byte) (Contract, error)
}

const binPrefix = "native:"

// Bin returns the creation code of the artifact. Packed constructor
// arguments are appended to it by the deployer.
func (a Artifact) Bin() []byte {
	return append([]byte(binPrefix+a.Name), 0)
}

// splitBin separates the artifact name from the constructor arguments.
func splitBin(data []byte) (string, []byte, bool) {
	if !bytes.HasPrefix(data, []byte(binPrefix)) {
		return "", nil, false
	}
	rest := data[len(binPrefix):]
	i := bytes.IndexByte(rest, 0)
	if i <= 0 {
		return "", nil, false
	}
	return string(rest[:i]), rest[i+1:], true
}

// RevertError is returned when a contract reverts. It satisfies the
// rpc.DataError interface so the revert data survives JSON-RPC.
type RevertError struct {
	Data   []byte
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return vm.ErrExecutionReverted.Error()
	}
	return fmt.Sprintf("%s: %s", vm.ErrExecutionReverted.Error(), e.Reason)
}

// ErrorCode matches the code geth uses for reverts.
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData returns the hex encoded revert data.
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

func (e *RevertError) Unwrap() error { return vm.ErrExecutionReverted }

// Revert builds a revert error with ABI encoded data and a readable reason.
func Revert(data []byte, reason string) error {
	return &RevertError{Data: common.CopyBytes(data), Reason: reason}
}

type gasMeter struct {
	limit uint64
	used  uint64
}

func (g *gasMeter) use(n uint64) error {
	if g.used+n > g.limit || g.used+n < g.used {
		g.used = g.limit
		return vm.ErrOutOfGas
	}
	g.used += n
	return nil
}

// Frame is the execution context of a single contract call.
type Frame struct {
	st       *state
	gas      *gasMeter
	logs     *[]*types.Log
	block    *types.Header
	caller   common.Address
	self     common.Address
	value    *big.Int
	readOnly bool
	depth    int
}

// Caller returns msg.sender.
func (f *Frame) Caller() common.Address { return f.caller }

// Address returns the executing contract address.
func (f *Frame) Address() common.Address { return f.self }

// Value returns msg.value.
func (f *Frame) Value() *big.Int { return new(big.Int).Set(f.value) }

// BlockNumber returns the number of the block being built.
func (f *Frame) BlockNumber() uint64 { return f.block.Number.Uint64() }

// BlockTime returns the timestamp of the block being built.
func (f *Frame) BlockTime() uint64 { return f.block.Time }

// UseGas charges n gas to the running transaction.
func (f *Frame) UseGas(n uint64) error { return f.gas.use(n) }

// Keccak hashes data and charges the SHA3 opcode cost.
func (f *Frame) Keccak(data ...[]byte) (common.Hash, error) {
	size := 0
	for _, d := range data {
		size += len(d)
	}
	words := uint64(size+31) / 32
	if err := f.UseGas(params.Keccak256Gas + words*params.Keccak256WordGas); err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data...), nil
}

// Load reads a storage slot of the executing contract (SLOAD).
func (f *Frame) Load(slot common.Hash) (common.Hash, error) {
	k := slotKey{f.self, slot}
	cost := params.WarmStorageReadCostEIP2929
	if !f.st.warmSlot(k) {
		cost = params.ColdSloadCostEIP2929
	}
	if err := f.UseGas(cost); err != nil {
		return common.Hash{}, err
	}
	return f.st.storageAt(f.self, slot), nil
}

// Store writes a storage slot of the executing contract (SSTORE).
// Gas and refunds follow EIP-2200 with the EIP-2929/3529 adjustments.
func (f *Frame) Store(slot, val common.Hash) error {
	if f.readOnly {
		return vm.ErrWriteProtection
	}
	k := slotKey{f.self, slot}
	var cost uint64
	if !f.st.warmSlot(k) {
		cost = params.ColdSloadCostEIP2929
	}
	current := f.st.storageAt(f.self, slot)
	original := f.st.original(k)
	var zero common.Hash

	switch {
	case current == val:
		cost += params.WarmStorageReadCostEIP2929
	case original == current:
		if original == zero {
			cost += params.SstoreSetGasEIP2200
		} else {
			cost += params.SstoreResetGasEIP2200 - params.ColdSloadCostEIP2929
			if val == zero {
				f.st.addRefund(params.SstoreClearsScheduleRefundEIP3529)
			}
		}
	default:
		cost += params.WarmStorageReadCostEIP2929
		if original != zero {
			if current == zero {
				f.st.subRefund(params.SstoreClearsScheduleRefundEIP3529)
			} else if val == zero {
				f.st.addRefund(params.SstoreClearsScheduleRefundEIP3529)
			}
		}
		if original == val {
			if original == zero {
				f.st.addRefund(params.SstoreSetGasEIP2200 - params.WarmStorageReadCostEIP2929)
			} else {
				f.st.addRefund(params.SstoreResetGasEIP2200 - params.ColdSloadCostEIP2929 - params.WarmStorageReadCostEIP2929)
			}
		}
	}
	if err := f.UseGas(cost); err != nil {
		return err
	}
	f.st.setStorage(f.self, slot, val)
	return nil
}

func (f *Frame) accessAccount(addr common.Address) error {
	cost := params.WarmStorageReadCostEIP2929
	if !f.st.warmAccount(addr) {
		cost = params.ColdAccountAccessCostEIP2929
	}
	return f.UseGas(cost)
}

// Balance returns the balance of addr (BALANCE / SELFBALANCE).
func (f *Frame) Balance(addr common.Address) (*big.Int, error) {
	if addr == f.self {
		if err := f.UseGas(vm.GasFastStep); err != nil {
			return nil, err
		}
	} else if err := f.accessAccount(addr); err != nil {
		return nil, err
	}
	return f.st.balance(addr), nil
}

// Transfer sends value from the executing contract to addr (CALL with value
// and empty calldata). Contracts at addr run their receive logic.
func (f *Frame) Transfer(to common.Address, amount *big.Int) error {
	if f.readOnly && amount.Sign() > 0 {
		return vm.ErrWriteProtection
	}
	if err := f.accessAccount(to); err != nil {
		return err
	}
	if amount.Sign() > 0 {
		if err := f.UseGas(params.CallValueTransferGas - params.CallStipend); err != nil {
			return err
		}
	}
	_, err := f.call(to, nil, amount, false)
	return err
}

// StaticCall invokes a read-only call on another contract.
func (f *Frame) StaticCall(to common.Address, input []byte) ([]byte, error) {
	if err := f.accessAccount(to); err != nil {
		return nil, err
	}
	return f.call(to, input, new(big.Int), true)
}

// Call invokes another contract, optionally sending value.
func (f *Frame) Call(to common.Address, input []byte, value *big.Int) ([]byte, error) {
	if err := f.accessAccount(to); err != nil {
		return nil, err
	}
	if value.Sign() > 0 {
		if err := f.UseGas(params.CallValueTransferGas - params.CallStipend); err != nil {
			return nil, err
		}
	}
	return f.call(to, input, value, f.readOnly)
}

func (f *Frame) call(to common.Address, input []byte, value *big.Int, readOnly bool) ([]byte, error) {
	if f.depth+1 > int(params.CallCreateDepth) {
		return nil, vm.ErrDepth
	}
	if f.st.balance(f.self).Cmp(value) < 0 {
		return nil, vm.ErrInsufficientBalance
	}
	snap := f.st.snapshot()
	logMark := len(*f.logs)
	if value.Sign() > 0 {
		f.st.subBalance(f.self, value)
		f.st.addBalance(to, value)
	}
	c := f.st.contract(to)
	if c == nil {
		return nil, nil
	}
	child := &Frame{
		st:       f.st,
		gas:      f.gas,
		logs:     f.logs,
		block:    f.block,
		caller:   f.self,
		self:     to,
		value:    value,
		readOnly: readOnly,
		depth:    f.depth + 1,
	}
	out, err := c.Run(child, input)
	if err != nil {
		f.st.revertTo(snap)
		*f.logs = (*f.logs)[:logMark]
		return nil, err
	}
	return out, nil
}

// Emit appends a log entry (LOGn) for the executing contract.
func (f *Frame) Emit(topics []common.Hash, data []byte) error {
	if f.readOnly {
		return vm.ErrWriteProtection
	}
	if len(topics) > 4 {
		return errors.New("too many log topics")
	}
	cost := params.LogGas + uint64(len(topics))*params.LogTopicGas + uint64(len(data))*params.LogDataGas
	if err := f.UseGas(cost); err != nil {
		return err
	}
	*f.logs = append(*f.logs, &types.Log{
		Address: f.self,
		Topics:  append([]common.Hash(nil), topics...),
		Data:    common.CopyBytes(data),
	})
	return nil
}
