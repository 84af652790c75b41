package contracts

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestIntWord_SignedRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 229700000000, -229700000000} {
		n := big.NewInt(v)
		assert.Equal(t, 0, wordInt(intWord(n)).Cmp(n), "value %d", v)
	}
	assert.Equal(t, common.HexToHash("0x"+strings.Repeat("ff", 32)), intWord(big.NewInt(-1)))
	assert.Equal(t, 0, wordUint(intWord(big.NewInt(-1))).Cmp(tt256m1))
}

func TestU256_Wraps(t *testing.T) {
	over := new(big.Int).Add(tt256, big.NewInt(5))
	assert.Equal(t, int64(5), u256(over).Int64())
}
