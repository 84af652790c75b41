package rpc

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

var (
	ErrNodeBusy          = errors.New("rpc node is at its concurrency limit")
	ErrRateLimitExceeded = errors.New("rpc node rate limit exceeded")
	ErrCircuitBroken     = errors.New("rpc node circuit is open")
)

// circuitThreshold is the number of consecutive errors that opens the circuit.
const circuitThreshold = 5

// NodeConfig represents configuration for a single RPC node
type NodeConfig struct {
	URL           string  `mapstructure:"url"`
	Priority      int     `mapstructure:"priority"`       // Initial weight (1-100), higher is more preferred
	RateLimit     float64 `mapstructure:"rate_limit"`     // Requests per second, 0 disables limiting
	MaxConcurrent int     `mapstructure:"max_concurrent"` // In-flight requests, 0 means unbounded
}

// Node wraps the underlying ethclient and provides health monitoring
type Node struct {
	config NodeConfig
	client EthClient

	limiter   *rate.Limiter
	semaphore chan struct{}

	// Dynamic metrics (atomic operations)
	errorCount  uint64 // Consecutive error count
	totalErrors uint64
	latency     int64  // Average latency (ms)
	latestBlock uint64 // Latest block height observed by this node
}

// NewNode dials cfg.URL.
func NewNode(ctx context.Context, cfg NodeConfig) (*Node, error) {
	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return NewNodeWithClient(cfg, client), nil
}

// NewNodeWithClient initializes Node with a pre-created client (Testing/DI)
func NewNodeWithClient(cfg NodeConfig, client EthClient) *Node {
	n := &Node{config: cfg, client: client}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.MaxConcurrent > 0 {
		n.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return n
}

func (n *Node) URL() string { return n.config.URL }

func (n *Node) Priority() int { return n.config.Priority }

// Score calculates the real-time score of the node. Higher is better.
// Formula: (Priority * 100) - (Latency / 10) - (ConsecutiveErrors * 500)
// Nodes lagging more than 5 blocks behind the best known height lose 50
// points per block.
func (n *Node) Score(globalMaxHeight uint64) int64 {
	score := int64(n.config.Priority) * 100
	score -= atomic.LoadInt64(&n.latency) / 10
	score -= int64(atomic.LoadUint64(&n.errorCount)) * 500

	myHeight := atomic.LoadUint64(&n.latestBlock)
	if globalMaxHeight > 0 && myHeight < globalMaxHeight {
		lag := globalMaxHeight - myHeight
		if lag > 5 {
			score -= int64(lag) * 50
		}
	}
	return score
}

// RecordMetric records result of a call, updating latency and error count
func (n *Node) RecordMetric(start time.Time, err error) {
	duration := time.Since(start).Milliseconds()

	oldLatency := atomic.LoadInt64(&n.latency)
	if oldLatency == 0 {
		atomic.StoreInt64(&n.latency, duration)
	} else {
		// New latency weight 20%
		atomic.StoreInt64(&n.latency, (oldLatency*8+duration*2)/10)
	}

	if err != nil && !isCallError(err) {
		atomic.AddUint64(&n.errorCount, 1)
		atomic.AddUint64(&n.totalErrors, 1)
		return
	}
	// Decrease error count slowly on success to avoid jitter
	for {
		current := atomic.LoadUint64(&n.errorCount)
		if current == 0 || atomic.CompareAndSwapUint64(&n.errorCount, current, current-1) {
			return
		}
	}
}

// IsCircuitBroken reports whether the node has failed too often in a row.
func (n *Node) IsCircuitBroken() bool {
	return atomic.LoadUint64(&n.errorCount) >= circuitThreshold
}

// TryAcquire reserves a request slot without blocking.
// Every successful call must be paired with Release.
func (n *Node) TryAcquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.IsCircuitBroken() {
		return ErrCircuitBroken
	}
	if n.limiter != nil && !n.limiter.Allow() {
		return ErrRateLimitExceeded
	}
	if n.semaphore != nil {
		select {
		case n.semaphore <- struct{}{}:
		default:
			return ErrNodeBusy
		}
	}
	return nil
}

// Acquire blocks until the rate limiter and the concurrency limit admit a request.
func (n *Node) Acquire(ctx context.Context) error {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if n.semaphore != nil {
		select {
		case n.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Release frees the slot taken by TryAcquire or Acquire.
func (n *Node) Release() {
	if n.semaphore == nil {
		return
	}
	select {
	case <-n.semaphore:
	default:
	}
}

// MeetsHeightRequirement reports whether the node has seen block h.
func (n *Node) MeetsHeightRequirement(h uint64) bool {
	return atomic.LoadUint64(&n.latestBlock) >= h
}

// UpdateHeight updates the latest block height for the node
func (n *Node) UpdateHeight(h uint64) {
	for {
		current := atomic.LoadUint64(&n.latestBlock)
		if h <= current || atomic.CompareAndSwapUint64(&n.latestBlock, current, h) {
			return
		}
	}
}

func (n *Node) GetErrorCount() uint64 { return atomic.LoadUint64(&n.errorCount) }

func (n *Node) GetTotalErrors() uint64 { return atomic.LoadUint64(&n.totalErrors) }

func (n *Node) GetLatency() int64 { return atomic.LoadInt64(&n.latency) }

func (n *Node) GetLatestBlock() uint64 { return atomic.LoadUint64(&n.latestBlock) }

// Proxy methods

func (n *Node) BlockNumber(ctx context.Context) (uint64, error) {
	start := time.Now()
	h, err := n.client.BlockNumber(ctx)
	n.RecordMetric(start, err)
	if err == nil {
		n.UpdateHeight(h)
	}
	return h, err
}

func (n *Node) ChainID(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	id, err := n.client.ChainID(ctx)
	n.RecordMetric(start, err)
	return id, err
}

func (n *Node) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	start := time.Now()
	h, err := n.client.HeaderByNumber(ctx, number)
	n.RecordMetric(start, err)
	if err == nil && h.Number != nil {
		n.UpdateHeight(h.Number.Uint64())
	}
	return h, err
}

func (n *Node) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	start := time.Now()
	b, err := n.client.BlockByNumber(ctx, number)
	n.RecordMetric(start, err)
	if err == nil {
		n.UpdateHeight(b.NumberU64())
	}
	return b, err
}

func (n *Node) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	start := time.Now()
	bal, err := n.client.BalanceAt(ctx, account, blockNumber)
	n.RecordMetric(start, err)
	return bal, err
}

func (n *Node) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	start := time.Now()
	code, err := n.client.CodeAt(ctx, account, blockNumber)
	n.RecordMetric(start, err)
	return code, err
}

func (n *Node) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	start := time.Now()
	code, err := n.client.PendingCodeAt(ctx, account)
	n.RecordMetric(start, err)
	return code, err
}

func (n *Node) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	start := time.Now()
	nonce, err := n.client.PendingNonceAt(ctx, account)
	n.RecordMetric(start, err)
	return nonce, err
}

func (n *Node) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	p, err := n.client.SuggestGasPrice(ctx)
	n.RecordMetric(start, err)
	return p, err
}

func (n *Node) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	p, err := n.client.SuggestGasTipCap(ctx)
	n.RecordMetric(start, err)
	return p, err
}

func (n *Node) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	start := time.Now()
	out, err := n.client.CallContract(ctx, call, blockNumber)
	n.RecordMetric(start, err)
	return out, err
}

func (n *Node) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	start := time.Now()
	gas, err := n.client.EstimateGas(ctx, call)
	n.RecordMetric(start, err)
	return gas, err
}

func (n *Node) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	start := time.Now()
	err := n.client.SendTransaction(ctx, tx)
	n.RecordMetric(start, err)
	return err
}

func (n *Node) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	r, err := n.client.TransactionReceipt(ctx, txHash)
	n.RecordMetric(start, err)
	return r, err
}

func (n *Node) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	start := time.Now()
	logs, err := n.client.FilterLogs(ctx, q)
	n.RecordMetric(start, err)
	return logs, err
}

func (n *Node) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return n.client.SubscribeFilterLogs(ctx, q, ch)
}

func (n *Node) Close() {
	n.client.Close()
}
