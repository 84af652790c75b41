package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/84hero/fundme/pkg/contracts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Funded(t *testing.T) {
	d := New(contracts.ParsedFundMe)

	funder := common.HexToAddress("0x1111111111111111111111111111111111111111")
	amount := big.NewInt(1e18)

	ev := contracts.ParsedFundMe.Events["Funded"]
	data, err := ev.Inputs.NonIndexed().Pack(amount)
	require.NoError(t, err)

	log := types.Log{
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Funded(address,uint256)")),
			common.BytesToHash(funder.Bytes()),
		},
		Data: data,
	}

	decoded, err := d.Decode(log)
	require.NoError(t, err)
	assert.Equal(t, "Funded", decoded.Name)
	assert.Equal(t, funder, decoded.Inputs["funder"])
	assert.Equal(t, amount, decoded.Inputs["amount"])
}

func TestNewFromJSON_Fail(t *testing.T) {
	_, err := NewFromJSON("invalid json")
	assert.Error(t, err)
}

func TestDecode_ErrorCases(t *testing.T) {
	const abiJSON = `[{"anonymous":false,"inputs":[],"name":"Empty","type":"event"}]`
	d, err := NewFromJSON(abiJSON)
	require.NoError(t, err)

	_, err = d.Decode(types.Log{Topics: []common.Hash{}})
	assert.ErrorContains(t, err, "no topics")

	unknownSig := crypto.Keccak256Hash([]byte("Unknown()"))
	_, err = d.Decode(types.Log{Topics: []common.Hash{unknownSig}})
	assert.ErrorContains(t, err, "signature not found")

	const abiWithIndexed = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"a","type":"address"}],"name":"Event","type":"event"}]`
	d2, err := NewFromJSON(abiWithIndexed)
	require.NoError(t, err)
	event, err := d2.parsedABI.EventByID(crypto.Keccak256Hash([]byte("Event(address)")))
	require.NoError(t, err)
	_, err = d2.Decode(types.Log{Topics: []common.Hash{event.ID}})
	assert.ErrorContains(t, err, "topic count mismatch")
}

func TestDecodeRevert(t *testing.T) {
	d := New(contracts.ParsedFundMe)

	notOwner := crypto.Keccak256([]byte("FundMe__NotOwner()"))[:4]
	name, ok := d.DecodeRevert(notOwner)
	assert.True(t, ok)
	assert.Equal(t, "FundMe__NotOwner", name)

	notEnough := crypto.Keccak256([]byte("FundMe_NotEnoghETH()"))[:4]
	name, ok = d.DecodeRevert(notEnough)
	assert.True(t, ok)
	assert.Equal(t, "FundMe_NotEnoghETH", name)

	// Error(string)
	strType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: strType}}.Pack("boom")
	require.NoError(t, err)
	reason := append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
	name, ok = d.DecodeRevert(reason)
	assert.True(t, ok)
	assert.Equal(t, "boom", name)

	_, ok = d.DecodeRevert([]byte{0x01})
	assert.False(t, ok)
}

type dataErr struct{ data interface{} }

func (e dataErr) Error() string          { return "execution reverted" }
func (e dataErr) ErrorData() interface{} { return e.data }

func TestRevertData(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	b, ok := RevertData(fmt.Errorf("wrapped: %w", dataErr{hexutil.Encode(payload)}))
	assert.True(t, ok)
	assert.Equal(t, payload, b)

	b, ok = RevertData(dataErr{payload})
	assert.True(t, ok)
	assert.Equal(t, payload, b)

	_, ok = RevertData(dataErr{"not-hex"})
	assert.False(t, ok)

	_, ok = RevertData(errors.New("plain"))
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(New(contracts.ParsedFundMe), New(contracts.ParsedMockV3Aggregator))
	assert.Equal(t, 4, r.Len())
	topics := r.Topics()
	require.Len(t, topics, 4)
	assert.Contains(t, topics, contracts.ParsedFundMe.Events["Funded"].ID)
	assert.Equal(t, topics, r.Topics(), "order is stable")

	ev := contracts.ParsedMockV3Aggregator.Events["AnswerUpdated"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(1700000000))
	require.NoError(t, err)
	log := types.Log{
		Topics: []common.Hash{ev.ID, common.BigToHash(big.NewInt(229700000000)), common.BigToHash(big.NewInt(1))},
		Data:   data,
	}
	decoded, err := r.Decode(log)
	require.NoError(t, err)
	assert.Equal(t, "AnswerUpdated", decoded.Name)
	assert.Equal(t, big.NewInt(229700000000), decoded.Inputs["current"])
	assert.Equal(t, big.NewInt(1), decoded.Inputs["roundId"])

	_, err = r.Decode(types.Log{Topics: []common.Hash{crypto.Keccak256Hash([]byte("Nope()"))}})
	assert.Error(t, err)
	_, err = r.Decode(types.Log{})
	assert.Error(t, err)

	assert.True(t, strings.HasPrefix(ev.Sig, "AnswerUpdated("))
}
