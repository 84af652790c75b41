package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrDeploymentNotFound is returned when no record exists for a contract.
var ErrDeploymentNotFound = errors.New("deployment not found")

// Deployment records where a contract was deployed on a network.
type Deployment struct {
	Network     string         `json:"network"`
	Name        string         `json:"name"` // e.g. "FundMe", "MockV3Aggregator"
	Address     common.Address `json:"address"`
	TxHash      common.Hash    `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	DeployedAt  time.Time      `json:"deployed_at"`
}

// Persistence defines the interface for saving watcher progress and
// deployment records.
type Persistence interface {
	// LoadCursor reads the last scanned block height
	// key: task identifier (e.g., "fundme-watch-sepolia")
	LoadCursor(key string) (uint64, error)

	// SaveCursor saves the current block height
	SaveCursor(key string, height uint64) error

	// SaveDeployment inserts or replaces the record for (network, name).
	SaveDeployment(d Deployment) error

	// LoadDeployment returns ErrDeploymentNotFound when nothing is recorded.
	LoadDeployment(network, name string) (Deployment, error)

	// ListDeployments returns the records of a network sorted by name.
	ListDeployments(network string) ([]Deployment, error)

	// Close releases resources
	Close() error
}

// MemoryStore is a simple in-memory implementation (Note: data lost on restart, for testing/temp tasks only)
type MemoryStore struct {
	data        map[string]uint64
	deployments map[string]map[string]Deployment
	prefix      string
	mu          sync.RWMutex
}

// NewMemoryStore initializes a new in-memory storage.
func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		data:        make(map[string]uint64),
		deployments: make(map[string]map[string]Deployment),
		prefix:      prefix,
	}
}

// LoadCursor retrieves the last scanned block height from memory.
func (m *MemoryStore) LoadCursor(key string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[m.prefix+key], nil
}

// SaveCursor updates the last scanned block height in memory.
func (m *MemoryStore) SaveCursor(key string, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.prefix+key] = height
	return nil
}

func (m *MemoryStore) SaveDeployment(d Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName, ok := m.deployments[d.Network]
	if !ok {
		byName = make(map[string]Deployment)
		m.deployments[d.Network] = byName
	}
	byName[d.Name] = d
	return nil
}

func (m *MemoryStore) LoadDeployment(network, name string) (Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deployments[network][name]
	if !ok {
		return Deployment{}, ErrDeploymentNotFound
	}
	return d, nil
}

func (m *MemoryStore) ListDeployments(network string) ([]Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Deployment, 0, len(m.deployments[network]))
	for _, d := range m.deployments[network] {
		out = append(out, d)
	}
	sortDeployments(out)
	return out, nil
}

// Close implements the Persistence interface.
func (m *MemoryStore) Close() error {
	return nil
}

func sortDeployments(ds []Deployment) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
}
