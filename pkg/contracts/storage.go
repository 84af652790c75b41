package contracts

import (
	"math/big"

	"github.com/84hero/fundme/pkg/devchain"
	"github.com/ethereum/go-ethereum/common"
)

// slot returns the storage key of a fixed state variable.
func slot(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n))
}

// mappingSlot returns keccak(key . slot), the Solidity mapping layout.
func mappingSlot(f *devchain.Frame, key common.Hash, n uint64) (common.Hash, error) {
	return f.Keccak(key.Bytes(), slot(n).Bytes())
}

// arraySlot returns keccak(slot) + index, the Solidity dynamic array layout.
func arraySlot(f *devchain.Frame, n uint64, index uint64) (common.Hash, error) {
	base, err := f.Keccak(slot(n).Bytes())
	if err != nil {
		return common.Hash{}, err
	}
	sum := new(big.Int).Add(base.Big(), new(big.Int).SetUint64(index))
	return common.BigToHash(u256(sum)), nil
}

func addressWord(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

func wordAddress(h common.Hash) common.Address { return common.BytesToAddress(h.Bytes()) }

func uintWord(v *big.Int) common.Hash { return common.BigToHash(v) }

func wordUint(h common.Hash) *big.Int { return h.Big() }

func intWord(v *big.Int) common.Hash { return common.BigToHash(u256(v)) }

func wordInt(h common.Hash) *big.Int { return s256(h.Big()) }

var (
	tt256   = new(big.Int).Lsh(big.NewInt(1), 256)
	tt256m1 = new(big.Int).Sub(tt256, big.NewInt(1))
)

// u256 wraps v into [0, 2^256) using two's complement for negatives.
func u256(v *big.Int) *big.Int { return new(big.Int).And(v, tt256m1) }

// s256 reads a 256-bit word as a signed integer.
func s256(v *big.Int) *big.Int {
	if v.Bit(255) == 0 {
		return new(big.Int).Set(v)
	}
	return new(big.Int).Sub(v, tt256)
}
