package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/84hero/fundme/pkg/contracts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// ABIWrapper wraps the decoding logic using go-ethereum's ABI parser.
type ABIWrapper struct {
	parsedABI abi.ABI
}

// NewFromJSON creates a decoder from a JSON ABI string
func NewFromJSON(jsonStr string) (*ABIWrapper, error) {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		return nil, err
	}
	return &ABIWrapper{parsedABI: parsed}, nil
}

// New wraps an already parsed ABI.
func New(parsed abi.ABI) *ABIWrapper {
	return &ABIWrapper{parsedABI: parsed}
}

// DecodedLog contains parsed human-readable data from a transaction log.
type DecodedLog struct {
	Name   string                 `json:"name"`   // Event name (e.g., Funded)
	Inputs map[string]interface{} `json:"inputs"` // Parameter key-value pairs (e.g., funder: 0x..., amount: 100)
}

// Decode parses a single Log
func (w *ABIWrapper) Decode(log types.Log) (*DecodedLog, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	// Topic[0] is the event signature
	event, err := w.parsedABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("event signature not found in ABI")
	}

	result := &DecodedLog{
		Name:   event.Name,
		Inputs: make(map[string]interface{}),
	}

	// Non-indexed parameters
	if len(log.Data) > 0 {
		if err := w.parsedABI.UnpackIntoMap(result.Inputs, event.Name, log.Data); err != nil {
			return nil, err
		}
	}

	var indexedArgs abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexedArgs = append(indexedArgs, arg)
		}
	}

	if len(log.Topics)-1 != len(indexedArgs) {
		return nil, fmt.Errorf("topic count mismatch: expected %d, got %d", len(indexedArgs), len(log.Topics)-1)
	}

	if err := abi.ParseTopicsIntoMap(result.Inputs, indexedArgs, log.Topics[1:]); err != nil {
		return nil, err
	}

	return result, nil
}

// Topics returns the signature hashes of every event in the ABI.
func (w *ABIWrapper) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(w.parsedABI.Events))
	for _, ev := range w.parsedABI.Events {
		out = append(out, ev.ID)
	}
	return out
}

// DecodeRevert resolves revert data to a custom error name or an
// Error(string) reason.
func (w *ABIWrapper) DecodeRevert(data []byte) (string, bool) {
	return contracts.RevertName(w.parsedABI, data)
}

// RevertData extracts the raw revert payload carried by an RPC or
// simulated backend error.
func RevertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	switch d := de.ErrorData().(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return d, true
	default:
		return nil, false
	}
}

// Registry decodes logs from several contracts by event signature.
type Registry struct {
	byTopic map[common.Hash]*ABIWrapper
}

// NewRegistry indexes the events of every given wrapper.
func NewRegistry(wrappers ...*ABIWrapper) *Registry {
	r := &Registry{byTopic: make(map[common.Hash]*ABIWrapper)}
	for _, w := range wrappers {
		for _, t := range w.Topics() {
			r.byTopic[t] = w
		}
	}
	return r
}

// Decode finds the ABI owning the log's signature and decodes it.
func (r *Registry) Decode(log types.Log) (*DecodedLog, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}
	w, ok := r.byTopic[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("event signature not found in ABI")
	}
	return w.Decode(log)
}

// Topics returns every known event signature.
func (r *Registry) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(r.byTopic))
	for t := range r.byTopic {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Len returns the number of known event signatures.
func (r *Registry) Len() int { return len(r.byTopic) }
