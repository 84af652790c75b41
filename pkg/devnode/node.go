// Package devnode serves a dev chain over JSON-RPC, the "localhost"
// network of the toolkit.
package devnode

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/84hero/fundme/pkg/devchain"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// Node exposes a devchain.Chain through a go-ethereum rpc.Server.
type Node struct {
	chain *devchain.Chain
	srv   *rpc.Server
}

// New registers the eth, net, web3 and evm namespaces for chain.
func New(chain *devchain.Chain) (*Node, error) {
	srv := rpc.NewServer()
	apis := []struct {
		namespace string
		service   interface{}
	}{
		{"eth", &ethAPI{chain: chain}},
		{"net", &netAPI{chain: chain}},
		{"web3", &web3API{}},
		{"evm", &evmAPI{chain: chain}},
	}
	for _, api := range apis {
		if err := srv.RegisterName(api.namespace, api.service); err != nil {
			srv.Stop()
			return nil, err
		}
	}
	return &Node{chain: chain, srv: srv}, nil
}

// Chain returns the served chain.
func (n *Node) Chain() *devchain.Chain { return n.chain }

// Handler returns the HTTP handler of the JSON-RPC endpoint.
func (n *Node) Handler() http.Handler { return n.srv }

// Serve accepts connections on l until ctx is cancelled.
func (n *Node) Serve(ctx context.Context, l net.Listener) error {
	hs := &http.Server{
		Handler:           n.srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(l) }()
	log.Info("Dev node listening", "addr", l.Addr().String(), "chain_id", n.chain.Config().ChainID)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := hs.Shutdown(shutdownCtx)
		n.srv.Stop()
		return err
	case err := <-errCh:
		n.srv.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ListenAndServe listens on addr (e.g. "127.0.0.1:8545") and serves.
func (n *Node) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return n.Serve(ctx, l)
}
