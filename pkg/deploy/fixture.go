package deploy

import (
	"context"
	"fmt"
	"sync"

	"github.com/84hero/fundme/pkg/devchain"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// Snapshotter takes and restores whole-chain snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) (uint64, error)
	Revert(ctx context.Context, id uint64) error
}

type chainSnapshots struct{ c *devchain.Chain }

// ChainSnapshots adapts the in-process chain.
func ChainSnapshots(c *devchain.Chain) Snapshotter { return chainSnapshots{c} }

func (s chainSnapshots) Snapshot(context.Context) (uint64, error) { return s.c.Snapshot(), nil }

func (s chainSnapshots) Revert(_ context.Context, id uint64) error { return s.c.Revert(id) }

type rpcSnapshots struct{ c *rpc.Client }

// RPCSnapshots uses the evm_snapshot and evm_revert methods of a dev node.
func RPCSnapshots(c *rpc.Client) Snapshotter { return rpcSnapshots{c} }

func (s rpcSnapshots) Snapshot(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := s.c.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s rpcSnapshots) Revert(ctx context.Context, id uint64) error {
	var ok bool
	if err := s.c.CallContext(ctx, &ok, "evm_revert", hexutil.Uint64(id)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evm_revert: snapshot %d not found", id)
	}
	return nil
}

// Fixture deploys once and hands out the same fresh state on every Load.
type Fixture struct {
	snaps    Snapshotter
	deployer *Deployer
	tags     []string

	mu     sync.Mutex
	snap   uint64
	result *Result
}

// NewFixture creates a fixture running the scripts selected by tags.
func NewFixture(snaps Snapshotter, deployer *Deployer, tags ...string) *Fixture {
	return &Fixture{snaps: snaps, deployer: deployer, tags: tags}
}

// Load returns the deployments with the chain rewound to the state right
// after they were made. The first call runs the scripts.
func (f *Fixture) Load(ctx context.Context) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.result != nil {
		// a revert consumes the snapshot, so take a new one right away
		if err := f.snaps.Revert(ctx, f.snap); err != nil {
			return Result{}, fmt.Errorf("revert fixture: %w", err)
		}
		snap, err := f.snaps.Snapshot(ctx)
		if err != nil {
			return Result{}, err
		}
		f.snap = snap
		log.Debug("Fixture restored", "snapshot", snap)
		return *f.result, nil
	}

	res, err := f.deployer.Run(ctx, f.tags...)
	if err != nil {
		return Result{}, err
	}
	snap, err := f.snaps.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	f.snap, f.result = snap, &res
	log.Debug("Fixture deployed", "snapshot", snap, "tags", f.tags)
	return res, nil
}
