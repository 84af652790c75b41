package devchain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is a funded development account with a known private key.
type Account struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// TransactOpts returns signing options for the account.
func (a Account) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(a.Key, chainID)
}

// DevAccounts derives n deterministic accounts. The same keys are used by
// the in-process chain and by the dev node, so clients of either can sign.
func DevAccounts(n int) []Account {
	out := make([]Account, n)
	for i := range out {
		key := deriveKey(i)
		out[i] = Account{Address: crypto.PubkeyToAddress(key.PublicKey), Key: key}
	}
	return out
}

func deriveKey(i int) *ecdsa.PrivateKey {
	seed := crypto.Keccak256([]byte(fmt.Sprintf("fundme devchain account %d", i)))
	for {
		key, err := crypto.ToECDSA(seed)
		if err == nil {
			return key
		}
		seed = crypto.Keccak256(seed)
	}
}
