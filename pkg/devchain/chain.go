package devchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
)

var (
	ErrNonceTooLow       = errors.New("nonce too low")
	ErrNonceTooHigh      = errors.New("nonce too high")
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")
	ErrIntrinsicGas      = errors.New("intrinsic gas too low")
	ErrFeeCapTooLow      = errors.New("max fee per gas less than block base fee")
	ErrGasLimit          = errors.New("exceeds block gas limit")
	ErrUnknownBytecode   = errors.New("creation code is not a registered native artifact")
	ErrWrongChain        = errors.New("transaction signed for another chain")
	ErrUnknownSnapshot   = errors.New("unknown snapshot id")
	ErrHistoricalState   = errors.New("historical state is not available")
)

// Config holds the dev chain parameters.
type Config struct {
	ChainID     uint64
	Accounts    int
	Balance     *big.Int // per account, in wei
	BaseFee     *big.Int
	GasTip      *big.Int
	GasLimit    uint64
	BlockTime   time.Duration
	GenesisTime time.Time
}

// DefaultConfig mirrors the hardhat network defaults.
func DefaultConfig() Config {
	balance := new(big.Int).Mul(big.NewInt(10000), big.NewInt(params.Ether))
	return Config{
		ChainID:     31337,
		Accounts:    10,
		Balance:     balance,
		BaseFee:     big.NewInt(params.GWei),
		GasTip:      big.NewInt(params.GWei),
		GasLimit:    30_000_000,
		BlockTime:   time.Second,
		GenesisTime: time.Now(),
	}
}

type block struct {
	header  *types.Header
	tx      *types.Transaction
	receipt *types.Receipt
}

type chainSnapshot struct {
	state  *state
	height int
}

// Chain is an in-process automining chain hosting native contracts.
type Chain struct {
	cfg       Config
	chainID   *big.Int
	signer    types.Signer
	coinbase  common.Address
	accounts  []Account
	artifacts map[string]Artifact

	mu        sync.Mutex
	st        *state
	blocks    []*block
	txIndex   map[common.Hash]int
	snapshots map[uint64]chainSnapshot
	nextSnap  uint64

	logsFeed event.Feed
}

// New creates a chain with funded dev accounts and the given artifacts.
func New(cfg Config, artifacts ...Artifact) *Chain {
	def := DefaultConfig()
	if cfg.ChainID == 0 {
		cfg.ChainID = def.ChainID
	}
	if cfg.Accounts <= 0 {
		cfg.Accounts = def.Accounts
	}
	if cfg.Balance == nil {
		cfg.Balance = def.Balance
	}
	if cfg.BaseFee == nil {
		cfg.BaseFee = def.BaseFee
	}
	if cfg.GasTip == nil {
		cfg.GasTip = def.GasTip
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = def.GasLimit
	}
	if cfg.BlockTime == 0 {
		cfg.BlockTime = def.BlockTime
	}
	if cfg.GenesisTime.IsZero() {
		cfg.GenesisTime = def.GenesisTime
	}

	c := &Chain{
		cfg:       cfg,
		chainID:   new(big.Int).SetUint64(cfg.ChainID),
		coinbase:  common.HexToAddress("0xC014BA5EC014ba5ec014Ba5EC014ba5Ec014bA5E"),
		accounts:  DevAccounts(cfg.Accounts),
		artifacts: make(map[string]Artifact),
		st:        newState(),
		txIndex:   make(map[common.Hash]int),
		snapshots: make(map[uint64]chainSnapshot),
		nextSnap:  1,
	}
	c.signer = types.LatestSignerForChainID(c.chainID)
	for _, a := range artifacts {
		c.artifacts[a.Name] = a
	}
	for _, a := range c.accounts {
		c.st.setBalance(a.Address, cfg.Balance)
	}
	c.st.resetTx()

	genesis := &types.Header{
		ParentHash:  common.Hash{},
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    c.coinbase,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int),
		GasLimit:    cfg.GasLimit,
		Time:        uint64(cfg.GenesisTime.Unix()),
		BaseFee:     new(big.Int).Set(cfg.BaseFee),
	}
	c.blocks = []*block{{header: genesis}}
	log.Debug("Dev chain created", "chain_id", cfg.ChainID, "accounts", cfg.Accounts)
	return c
}

// Accounts returns the funded dev accounts; the first one is the deployer.
func (c *Chain) Accounts() []Account {
	out := make([]Account, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// Config returns the effective chain configuration.
func (c *Chain) Config() Config { return c.cfg }

// Close is a no-op kept for parity with network clients.
func (c *Chain) Close() {}

// Snapshot records the whole chain (state and blocks) and returns its id.
func (c *Chain) Snapshot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSnap
	c.nextSnap++
	c.snapshots[id] = chainSnapshot{state: c.st.copy(), height: len(c.blocks)}
	return id
}

// Revert restores a snapshot. The snapshot and every later one are consumed.
func (c *Chain) Revert(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	for k := range c.snapshots {
		if k >= id {
			delete(c.snapshots, k)
		}
	}
	c.st = snap.state.copy()
	c.blocks = c.blocks[:snap.height]
	c.txIndex = make(map[common.Hash]int, len(c.blocks))
	for i, b := range c.blocks {
		if b.tx != nil {
			c.txIndex[b.tx.Hash()] = i
		}
	}
	return nil
}

func (c *Chain) head() *types.Header { return c.blocks[len(c.blocks)-1].header }

// pending returns the header of the block that the next tx would be mined in.
func (c *Chain) pending() *types.Header {
	parent := c.head()
	return &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Coinbase:   c.coinbase,
		Difficulty: new(big.Int),
		Number:     new(big.Int).Add(parent.Number, common.Big1),
		GasLimit:   c.cfg.GasLimit,
		Time:       parent.Time + uint64(c.cfg.BlockTime/time.Second),
		BaseFee:    new(big.Int).Set(c.cfg.BaseFee),
	}
}

func (c *Chain) checkLatest(number *big.Int) error {
	if number == nil || number.Sign() < 0 {
		return nil
	}
	if number.Cmp(c.head().Number) != 0 {
		return fmt.Errorf("%w: block %s", ErrHistoricalState, number)
	}
	return nil
}

type message struct {
	from     common.Address
	to       *common.Address
	value    *big.Int
	data     []byte
	gasLimit uint64
	gasPrice *big.Int // effective price paid per gas
	tip      *big.Int
}

type execResult struct {
	gasUsed      uint64 // after refund
	gasRequired  uint64 // before refund
	ret          []byte
	err          error
	logs         []*types.Log
	contractAddr common.Address
}

func intrinsicGas(data []byte, creation bool) uint64 {
	gas := params.TxGas
	if creation {
		gas = params.TxGasContractCreation
	}
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

// apply executes msg against the current state. State changes of a failed
// execution are rolled back while the gas fee is still charged.
func (c *Chain) apply(msg message, header *types.Header) (*execResult, error) {
	st := c.st
	st.resetTx()

	igas := intrinsicGas(msg.data, msg.to == nil)
	if igas > msg.gasLimit {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, msg.gasLimit, igas)
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(msg.gasLimit), msg.gasPrice)
	need := new(big.Int).Add(fee, msg.value)
	if st.balance(msg.from).Cmp(need) < 0 {
		return nil, fmt.Errorf("%w: address %s", ErrInsufficientFunds, msg.from.Hex())
	}

	st.subBalance(msg.from, fee)
	nonce := st.nonce(msg.from)
	st.setNonce(msg.from, nonce+1)
	st.warmAccount(msg.from)
	st.warmAccount(c.coinbase)

	meter := &gasMeter{limit: msg.gasLimit, used: igas}
	var logs []*types.Log
	root := &Frame{
		st:     st,
		gas:    meter,
		logs:   &logs,
		block:  header,
		caller: msg.from,
		value:  msg.value,
	}
	res := &execResult{}
	snap := st.snapshot()

	if msg.to == nil {
		res.contractAddr = crypto.CreateAddress(msg.from, nonce)
		res.err = c.create(root, res.contractAddr, msg.data)
	} else {
		root.self = *msg.to
		st.warmAccount(*msg.to)
		st.subBalance(msg.from, msg.value)
		st.addBalance(*msg.to, msg.value)
		if contract := st.contract(*msg.to); contract != nil {
			res.ret, res.err = contract.Run(root, msg.data)
		}
	}

	res.gasRequired = meter.used
	if res.err != nil {
		st.revertTo(snap)
		logs = nil
		if !errors.As(res.err, new(*RevertError)) {
			meter.used = meter.limit
		}
	} else {
		refund := st.refund
		if limit := meter.used / params.RefundQuotientEIP3529; refund > limit {
			refund = limit
		}
		meter.used -= refund
	}
	res.gasUsed = meter.used
	res.logs = logs

	leftover := new(big.Int).Mul(new(big.Int).SetUint64(meter.limit-meter.used), msg.gasPrice)
	st.addBalance(msg.from, leftover)
	if msg.tip.Sign() > 0 {
		st.addBalance(c.coinbase, new(big.Int).Mul(new(big.Int).SetUint64(meter.used), msg.tip))
	}
	return res, nil
}

func (c *Chain) create(f *Frame, addr common.Address, data []byte) error {
	name, args, ok := splitBin(data)
	if !ok {
		return ErrUnknownBytecode
	}
	artifact, ok := c.artifacts[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBytecode, name)
	}
	f.self = addr
	f.st.warmAccount(addr)
	if len(f.st.code(addr)) > 0 || f.st.nonce(addr) > 0 {
		return vm.ErrContractAddressCollision
	}
	f.st.setNonce(addr, 1)
	f.st.subBalance(f.caller, f.value)
	f.st.addBalance(addr, f.value)

	contract, err := artifact.Deploy(f, args)
	if err != nil {
		return err
	}
	code := artifact.Bin()
	if err := f.UseGas(uint64(len(code)) * params.CreateDataGas); err != nil {
		return err
	}
	f.st.setCode(addr, code, contract)
	return nil
}

// call runs msg without committing anything.
func (c *Chain) call(msg message) (*execResult, error) {
	committed := c.st
	c.st = committed.copy()
	defer func() { c.st = committed }()
	return c.apply(msg, c.pending())
}

func (c *Chain) callMsg(call ethereum.CallMsg) message {
	gas := call.Gas
	if gas == 0 || gas > c.cfg.GasLimit {
		gas = c.cfg.GasLimit
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	return message{
		from:     call.From,
		to:       call.To,
		value:    value,
		data:     call.Data,
		gasLimit: gas,
		gasPrice: new(big.Int),
		tip:      new(big.Int),
	}
}

// ChainID returns the chain id.
func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

// BlockNumber returns the latest block number.
func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head().Number.Uint64(), nil
}

// HeaderByNumber returns a header; nil selects the latest block.
func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if number == nil || number.Sign() < 0 {
		return types.CopyHeader(c.head()), nil
	}
	if !number.IsUint64() || number.Uint64() >= uint64(len(c.blocks)) {
		return nil, ethereum.NotFound
	}
	return types.CopyHeader(c.blocks[number.Uint64()].header), nil
}

// BlockByNumber returns a block with its single transaction.
func (c *Chain) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.blocks) - 1
	if number != nil && number.Sign() >= 0 {
		if !number.IsUint64() || number.Uint64() >= uint64(len(c.blocks)) {
			return nil, ethereum.NotFound
		}
		idx = int(number.Uint64())
	}
	b := c.blocks[idx]
	var txs []*types.Transaction
	if b.tx != nil {
		txs = append(txs, b.tx)
	}
	return types.NewBlockWithHeader(b.header).WithBody(types.Body{Transactions: txs}), nil
}

// HeaderByHash returns the header of a block by hash.
func (c *Chain) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	b, err := c.BlockByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return b.Header(), nil
}

// BlockByHash returns a block by hash.
func (c *Chain) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	c.mu.Lock()
	idx := -1
	for i, b := range c.blocks {
		if b.header.Hash() == hash {
			idx = i
			break
		}
	}
	c.mu.Unlock()
	if idx < 0 {
		return nil, ethereum.NotFound
	}
	return c.BlockByNumber(ctx, big.NewInt(int64(idx)))
}

// Mine appends an empty block (evm_mine).
func (c *Chain) Mine() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	header := c.pending()
	header.TxHash = types.EmptyTxsHash
	header.ReceiptHash = types.EmptyReceiptsHash
	c.blocks = append(c.blocks, &block{header: header})
	log.Debug("Mined empty block", "number", header.Number)
	return header.Number.Uint64()
}

// BalanceAt returns the balance at the latest block.
func (c *Chain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLatest(blockNumber); err != nil {
		return nil, err
	}
	return c.st.balance(account), nil
}

// NonceAt returns the account nonce at the latest block.
func (c *Chain) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLatest(blockNumber); err != nil {
		return 0, err
	}
	return c.st.nonce(account), nil
}

// PendingNonceAt equals NonceAt because every tx is mined immediately.
func (c *Chain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.NonceAt(ctx, account, nil)
}

// CodeAt returns the code at the latest block.
func (c *Chain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLatest(blockNumber); err != nil {
		return nil, err
	}
	return common.CopyBytes(c.st.code(account)), nil
}

// StorageAt returns the value of a storage slot at the latest block.
func (c *Chain) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLatest(blockNumber); err != nil {
		return nil, err
	}
	return c.st.storageAt(account, key).Bytes(), nil
}

// PendingCodeAt equals CodeAt.
func (c *Chain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.CodeAt(ctx, account, nil)
}

// SuggestGasPrice returns base fee plus tip.
func (c *Chain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Add(c.cfg.BaseFee, c.cfg.GasTip), nil
}

// SuggestGasTipCap returns the configured tip.
func (c *Chain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.cfg.GasTip), nil
}

// CallContract executes a call without creating a transaction.
func (c *Chain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLatest(blockNumber); err != nil {
		return nil, err
	}
	res, err := c.call(c.callMsg(call))
	if err != nil {
		return nil, err
	}
	return res.ret, res.err
}

// EstimateGas returns the gas a call needs before refunds are applied.
func (c *Chain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.call(c.callMsg(call))
	if err != nil {
		return 0, err
	}
	if res.err != nil {
		return 0, res.err
	}
	return res.gasRequired, nil
}

// SendTransaction validates a signed transaction and mines it into a new block.
func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	logs, err := c.mine(tx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if len(logs) > 0 {
		c.logsFeed.Send(logs)
	}
	return nil
}

func (c *Chain) mine(tx *types.Transaction) ([]*types.Log, error) {
	if tx.ChainId().Cmp(c.chainID) != 0 {
		return nil, fmt.Errorf("%w: %s", ErrWrongChain, tx.ChainId())
	}
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return nil, err
	}
	if n := c.st.nonce(from); tx.Nonce() < n {
		return nil, fmt.Errorf("%w: address %s, tx %d state %d", ErrNonceTooLow, from.Hex(), tx.Nonce(), n)
	} else if tx.Nonce() > n {
		return nil, fmt.Errorf("%w: address %s, tx %d state %d", ErrNonceTooHigh, from.Hex(), tx.Nonce(), n)
	}
	if tx.Gas() > c.cfg.GasLimit {
		return nil, fmt.Errorf("%w: %d", ErrGasLimit, tx.Gas())
	}
	header := c.pending()
	if tx.GasFeeCap().Cmp(header.BaseFee) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrFeeCapTooLow, tx.GasFeeCap(), header.BaseFee)
	}
	tip := new(big.Int).Sub(tx.GasFeeCap(), header.BaseFee)
	if tx.GasTipCap().Cmp(tip) < 0 {
		tip.Set(tx.GasTipCap())
	}
	price := new(big.Int).Add(header.BaseFee, tip)

	res, err := c.apply(message{
		from:     from,
		to:       tx.To(),
		value:    tx.Value(),
		data:     tx.Data(),
		gasLimit: tx.Gas(),
		gasPrice: price,
		tip:      tip,
	}, header)
	if err != nil {
		return nil, err
	}

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: res.gasUsed,
		Logs:              res.logs,
		TxHash:            tx.Hash(),
		GasUsed:           res.gasUsed,
		EffectiveGasPrice: price,
		BlockNumber:       new(big.Int).Set(header.Number),
		TransactionIndex:  0,
	}
	if res.err != nil {
		receipt.Status = types.ReceiptStatusFailed
		log.Debug("Transaction reverted", "tx", tx.Hash().Hex(), "err", res.err)
	}
	if tx.To() == nil && res.err == nil {
		receipt.ContractAddress = res.contractAddr
	}
	if receipt.Logs == nil {
		receipt.Logs = []*types.Log{}
	}
	for _, l := range receipt.Logs {
		receipt.Bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			receipt.Bloom.Add(topic.Bytes())
		}
	}

	header.GasUsed = res.gasUsed
	header.Bloom = receipt.Bloom
	header.TxHash = types.DeriveSha(types.Transactions{tx}, trie.NewStackTrie(nil))
	header.ReceiptHash = types.DeriveSha(types.Receipts{receipt}, trie.NewStackTrie(nil))
	blockHash := header.Hash()
	receipt.BlockHash = blockHash
	for i, l := range receipt.Logs {
		l.BlockNumber = header.Number.Uint64()
		l.BlockHash = blockHash
		l.TxHash = tx.Hash()
		l.TxIndex = 0
		l.Index = uint(i)
	}

	c.blocks = append(c.blocks, &block{header: header, tx: tx, receipt: receipt})
	c.txIndex[tx.Hash()] = len(c.blocks) - 1
	log.Debug("Mined block", "number", header.Number, "tx", tx.Hash().Hex(), "gas", res.gasUsed, "status", receipt.Status)
	return receipt.Logs, nil
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Chain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.txIndex[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return c.blocks[idx].receipt, nil
}

// TransactionByHash returns a mined transaction.
func (c *Chain) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.txIndex[txHash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return c.blocks[idx].tx, false, nil
}
