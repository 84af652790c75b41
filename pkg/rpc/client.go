package rpc

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Error definitions
var (
	ErrNoAvailableNodes  = errors.New("no available rpc nodes")
	ErrNoNodeMeetsHeight = errors.New("no node meets the required block height")
)

const (
	syncInterval = 5 * time.Second
	maxAttempts  = 3
)

// MultiClient manages multiple RPC nodes, providing load balancing and failover
type MultiClient struct {
	nodes        []*Node
	globalHeight uint64

	mu sync.RWMutex
}

var _ Client = (*MultiClient)(nil)

// NewClient dials every configured node and keeps the reachable ones.
func NewClient(ctx context.Context, configs []NodeConfig) (*MultiClient, error) {
	if len(configs) == 0 {
		return nil, errors.New("no rpc configs provided")
	}

	nodes := make([]*Node, 0, len(configs))
	for _, cfg := range configs {
		n, err := NewNode(ctx, cfg)
		if err != nil {
			log.Warn("Skipping unreachable rpc node", "url", cfg.URL, "err", err)
			continue
		}
		nodes = append(nodes, n)
	}
	return NewClientWithNodes(ctx, nodes)
}

// NewClientWithNodes initializes MultiClient with existing nodes (for testing or advanced usage)
func NewClientWithNodes(ctx context.Context, nodes []*Node) (*MultiClient, error) {
	if len(nodes) == 0 {
		return nil, errors.New("failed to connect to any rpc node")
	}
	mc := &MultiClient{nodes: nodes}
	go mc.startBackgroundSync(ctx)
	return mc, nil
}

// Nodes returns the managed nodes.
func (mc *MultiClient) Nodes() []*Node {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]*Node, len(mc.nodes))
	copy(out, mc.nodes)
	return out
}

// startBackgroundSync periodically polls all nodes to update their heights and scores
func (mc *MultiClient) startBackgroundSync(ctx context.Context) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	mc.syncNodes(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.syncNodes(ctx)
		}
	}
}

func (mc *MultiClient) syncNodes(ctx context.Context) {
	var maxH uint64
	var wg sync.WaitGroup

	for _, n := range mc.Nodes() {
		wg.Add(1)
		go func(node *Node) {
			defer wg.Done()
			// Maintenance traffic bypasses the rate limiter
			h, err := node.BlockNumber(ctx)
			if err != nil {
				return
			}
			for {
				cur := atomic.LoadUint64(&maxH)
				if h <= cur || atomic.CompareAndSwapUint64(&maxH, cur, h) {
					return
				}
			}
		}(n)
	}
	wg.Wait()

	if maxH > 0 {
		atomic.StoreUint64(&mc.globalHeight, maxH)
	}
}

// isCallError reports errors that are valid answers from a healthy node:
// missing objects and reverted executions. They are neither retried nor
// counted against the node.
func isCallError(err error) bool {
	if errors.Is(err, ethereum.NotFound) || errors.Is(err, vm.ErrExecutionReverted) {
		return true
	}
	var de gethrpc.DataError
	return errors.As(err, &de)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !isCallError(err)
}

// execute performs an RPC request with retry logic and auto node switching.
// Nodes have a height requirement of minHeight when it is non-zero.
func (mc *MultiClient) execute(ctx context.Context, minHeight uint64, op func(*Node) error) error {
	attempts := min(len(mc.nodes), maxAttempts)

	var lastErr error
	for i := 0; i < attempts; i++ {
		node, err := mc.pickAvailableNodeWithHeight(ctx, minHeight)
		if err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err = op(node)
		node.Release()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		log.Debug("RPC call failed, switching node", "url", node.URL(), "attempt", i+1, "err", err)
	}
	return lastErr
}

// call runs fn against the best node and returns its result.
func call[T any](ctx context.Context, mc *MultiClient, minHeight uint64, fn func(*Node) (T, error)) (T, error) {
	var res T
	err := mc.execute(ctx, minHeight, func(n *Node) error {
		var e error
		res, e = fn(n)
		return e
	})
	return res, err
}

// heightOf converts a block selector to a height requirement.
func heightOf(number *big.Int) uint64 {
	if number == nil || number.Sign() <= 0 || !number.IsUint64() {
		return 0
	}
	return number.Uint64()
}

func (mc *MultiClient) ChainID(ctx context.Context) (*big.Int, error) {
	return call(ctx, mc, 0, func(n *Node) (*big.Int, error) { return n.ChainID(ctx) })
}

// BlockNumber retrieves the latest block height across all nodes (cached if possible)
func (mc *MultiClient) BlockNumber(ctx context.Context) (uint64, error) {
	if h := atomic.LoadUint64(&mc.globalHeight); h > 0 {
		return h, nil
	}
	return call(ctx, mc, 0, func(n *Node) (uint64, error) { return n.BlockNumber(ctx) })
}

func (mc *MultiClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return call(ctx, mc, heightOf(number), func(n *Node) (*types.Header, error) { return n.HeaderByNumber(ctx, number) })
}

func (mc *MultiClient) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return call(ctx, mc, heightOf(number), func(n *Node) (*types.Block, error) { return n.BlockByNumber(ctx, number) })
}

func (mc *MultiClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return call(ctx, mc, heightOf(blockNumber), func(n *Node) (*big.Int, error) { return n.BalanceAt(ctx, account, blockNumber) })
}

func (mc *MultiClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, mc, heightOf(blockNumber), func(n *Node) ([]byte, error) { return n.CodeAt(ctx, account, blockNumber) })
}

func (mc *MultiClient) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return call(ctx, mc, 0, func(n *Node) ([]byte, error) { return n.PendingCodeAt(ctx, account) })
}

func (mc *MultiClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return call(ctx, mc, 0, func(n *Node) (uint64, error) { return n.PendingNonceAt(ctx, account) })
}

func (mc *MultiClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return call(ctx, mc, 0, func(n *Node) (*big.Int, error) { return n.SuggestGasPrice(ctx) })
}

func (mc *MultiClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return call(ctx, mc, 0, func(n *Node) (*big.Int, error) { return n.SuggestGasTipCap(ctx) })
}

func (mc *MultiClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, mc, heightOf(blockNumber), func(n *Node) ([]byte, error) { return n.CallContract(ctx, msg, blockNumber) })
}

func (mc *MultiClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return call(ctx, mc, 0, func(n *Node) (uint64, error) { return n.EstimateGas(ctx, msg) })
}

// SendTransaction broadcasts through a single node. A failed broadcast is
// not retried elsewhere since the first node may already have accepted it.
func (mc *MultiClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	node, err := mc.pickAvailableNode(ctx)
	if err != nil {
		return err
	}
	defer node.Release()
	return node.SendTransaction(ctx, tx)
}

func (mc *MultiClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return call(ctx, mc, 0, func(n *Node) (*types.Receipt, error) { return n.TransactionReceipt(ctx, txHash) })
}

func (mc *MultiClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return call(ctx, mc, heightOf(q.ToBlock), func(n *Node) ([]types.Log, error) { return n.FilterLogs(ctx, q) })
}

// SubscribeFilterLogs subscribes on the best node. HTTP endpoints do not
// support subscriptions; callers fall back to polling FilterLogs.
func (mc *MultiClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	node, err := mc.pickAvailableNode(ctx)
	if err != nil {
		return nil, err
	}
	defer node.Release()
	return node.SubscribeFilterLogs(ctx, q, ch)
}

// Close closes all underlying RPC connections
func (mc *MultiClient) Close() {
	for _, n := range mc.Nodes() {
		n.Close()
	}
}

func (mc *MultiClient) pickAvailableNode(ctx context.Context) (*Node, error) {
	return mc.pickAvailableNodeWithHeight(ctx, 0)
}

// pickAvailableNodeWithHeight selects a node that meets the height requirement
func (mc *MultiClient) pickAvailableNodeWithHeight(ctx context.Context, requiredHeight uint64) (*Node, error) {
	globalH := atomic.LoadUint64(&mc.globalHeight)
	candidates := mc.Nodes()
	if len(candidates) == 0 {
		return nil, ErrNoAvailableNodes
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score(globalH) > candidates[j].Score(globalH)
	})

	// Heights are only known once a node has been synced.
	checkHeight := func(n *Node) bool {
		return requiredHeight == 0 || n.GetLatestBlock() == 0 || n.MeetsHeightRequirement(requiredHeight)
	}

	for _, node := range candidates {
		if !checkHeight(node) {
			continue
		}
		if err := node.TryAcquire(ctx); err == nil {
			return node, nil
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	// All nodes are unavailable, block and wait for the best healthy one
	lagging := false
	for _, node := range candidates {
		if node.IsCircuitBroken() {
			continue
		}
		if !checkHeight(node) {
			lagging = true
			continue
		}
		if err := node.Acquire(ctx); err != nil {
			return nil, err
		}
		return node, nil
	}
	if lagging {
		return nil, ErrNoNodeMeetsHeight
	}
	return nil, ErrNoAvailableNodes
}
