// Package chain holds per-network polling presets used by the watcher
// when the config leaves scanner settings unset.
package chain

import (
	"math"
	"sync"
	"time"
)

// Preset is the default watcher behavior on a network.
type Preset struct {
	BlockTime     time.Duration // average block time, used as the poll interval
	Confirmations uint64        // blocks behind head considered final
	BatchSize     uint64        // blocks per eth_getLogs call
	Rewind        uint64        // blocks before head to start from without a cursor
}

// Fallback applies to networks without a preset.
var Fallback = Preset{
	BlockTime:     12 * time.Second,
	Confirmations: 12,
	BatchSize:     100,
	Rewind:        1000,
}

var (
	registry = make(map[string]Preset)
	mu       sync.RWMutex
)

// Register adds or replaces the preset of a network.
func Register(network string, p Preset) {
	mu.Lock()
	defer mu.Unlock()
	registry[network] = p
}

// Get retrieves the preset of a network by name.
func Get(network string) (Preset, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[network]
	return p, ok
}

// Lookup is Get falling back to Fallback.
func Lookup(network string) Preset {
	if p, ok := Get(network); ok {
		return p
	}
	return Fallback
}

// Built-in presets
func init() {
	// Dev chains mine one block per transaction and never reorg.
	dev := Preset{
		BlockTime: time.Second,
		BatchSize: 1000,
		Rewind:    math.MaxUint64, // from genesis
	}
	Register("hardhat", dev)
	Register("localhost", dev)

	Register("sepolia", Preset{
		BlockTime:     12 * time.Second,
		Confirmations: 6,
		BatchSize:     500,
		Rewind:        5000,
	})

	Register("goerli", Preset{
		BlockTime:     12 * time.Second,
		Confirmations: 6,
		BatchSize:     500,
		Rewind:        5000,
	})
}
