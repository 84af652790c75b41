// Package scanner polls a chain for logs matching a Filter and hands them
// to a Handler, persisting its progress as a cursor.
package scanner

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Client is the chain access a Scanner needs.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Store persists the next block to scan per cursor key.
type Store interface {
	LoadCursor(key string) (uint64, error)
	SaveCursor(key string, height uint64) error
}

type Config struct {
	// Key names the cursor, see CursorKey.
	Key string

	// Startup strategy
	StartBlock   uint64
	ForceStart   bool
	Rewind       uint64 // Blocks before head when there is no cursor
	CursorRewind uint64 // Safety rewind from saved cursor

	BatchSize     uint64
	Interval      time.Duration
	Confirmations uint64
	UseBloom      bool
}

// Handler receives every non-empty batch of matching logs. A returned
// error makes the scanner retry the same range.
type Handler func(ctx context.Context, logs []types.Log) error

type Scanner struct {
	client  Client
	store   Store
	config  Config
	filter  *Filter
	handler Handler
}

// CursorKey identifies the cursor of a watcher over contracts on network.
func CursorKey(network string, contracts ...common.Address) string {
	parts := []string{network}
	for _, c := range contracts {
		parts = append(parts, strings.ToLower(c.Hex()))
	}
	return strings.Join(parts, ":")
}

func New(client Client, store Store, cfg Config, filter *Filter) *Scanner {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval == 0 {
		cfg.Interval = 3 * time.Second
	}
	if filter == nil {
		filter = NewFilter()
	}
	return &Scanner{
		client: client,
		store:  store,
		config: cfg,
		filter: filter,
	}
}

// SetHandler sets the callback function to be called when logs are received
func (s *Scanner) SetHandler(h Handler) {
	s.handler = h
}

// Start scans until ctx is cancelled. It returns ctx.Err() on shutdown.
func (s *Scanner) Start(ctx context.Context) error {
	next, err := s.determineStartBlock(ctx)
	if err != nil {
		return err
	}
	log.Info("Scanner started", "start_block", next, "key", s.config.Key, "confirmations", s.config.Confirmations)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		next, err = s.Sync(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Scan failed", "next", next, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sync scans from block next up to the confirmed head in batches and
// returns the next block to scan. Progress is saved after every batch, so
// on error the returned value is where the failed batch started.
func (s *Scanner) Sync(ctx context.Context, next uint64) (uint64, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return next, fmt.Errorf("block number: %w", err)
	}
	if head < s.config.Confirmations {
		return next, nil
	}
	safeHead := head - s.config.Confirmations

	for next <= safeHead {
		if err := ctx.Err(); err != nil {
			return next, err
		}
		end := min(next+s.config.BatchSize-1, safeHead)
		if err := s.scanRange(ctx, next, end); err != nil {
			return next, fmt.Errorf("scan %d-%d: %w", next, end, err)
		}
		next = end + 1
		if err := s.store.SaveCursor(s.config.Key, next); err != nil {
			log.Error("Failed to save cursor", "key", s.config.Key, "err", err)
		}
	}
	return next, nil
}

func (s *Scanner) determineStartBlock(ctx context.Context) (uint64, error) {
	if s.config.ForceStart {
		log.Info("Start strategy: Force Start", "block", s.config.StartBlock)
		return s.config.StartBlock, nil
	}

	saved, err := s.store.LoadCursor(s.config.Key)
	if err != nil {
		return 0, err
	}
	if saved > 0 {
		start := saved - min(saved, s.config.CursorRewind)
		log.Info("Start strategy: Resume from persistence", "saved", saved, "rewind", s.config.CursorRewind, "start", start)
		return start, nil
	}

	if s.config.StartBlock > 0 {
		log.Info("Start strategy: Config StartBlock", "block", s.config.StartBlock)
		return s.config.StartBlock, nil
	}

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	start := head - min(head, s.config.Rewind)
	log.Info("Start strategy: Rewind from Head", "head", head, "rewind", s.config.Rewind, "start", start)
	return start, nil
}

func (s *Scanner) scanRange(ctx context.Context, from, to uint64) error {
	// Bloom checks only pay off for single blocks and light filters.
	if s.config.UseBloom && from == to && !s.filter.IsHeavy() {
		header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(from))
		if err != nil {
			return err
		}
		if !s.filter.MatchesBloom(header.Bloom) {
			return nil
		}
	}

	logs, err := s.client.FilterLogs(ctx, s.filter.ToQuery(from, to))
	if err != nil {
		return err
	}
	if len(logs) > 0 && s.handler != nil {
		log.Debug("Scanned logs", "from", from, "to", to, "logs", len(logs))
		return s.handler(ctx, logs)
	}
	return nil
}
