package devnode

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// toMap re-encodes a JSON marshaler as a field map so extra fields can be added.
func toMap(v json.Marshaler) (map[string]interface{}, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalTx(tx *types.Transaction, blockHash common.Hash, number uint64) (map[string]interface{}, error) {
	out, err := toMap(tx)
	if err != nil {
		return nil, err
	}
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, err
	}
	out["from"] = from
	out["blockHash"] = blockHash
	out["blockNumber"] = hexutil.Uint64(number)
	out["transactionIndex"] = hexutil.Uint64(0)
	return out, nil
}

func marshalBlock(b *types.Block, fullTx bool) (map[string]interface{}, error) {
	out, err := toMap(b.Header())
	if err != nil {
		return nil, err
	}
	out["hash"] = b.Hash()
	out["size"] = hexutil.Uint64(b.Size())
	out["uncles"] = []common.Hash{}

	txs := make([]interface{}, 0, len(b.Transactions()))
	for _, tx := range b.Transactions() {
		if !fullTx {
			txs = append(txs, tx.Hash())
			continue
		}
		m, err := marshalTx(tx, b.Hash(), b.NumberU64())
		if err != nil {
			return nil, err
		}
		txs = append(txs, m)
	}
	out["transactions"] = txs
	return out, nil
}
