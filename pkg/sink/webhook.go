package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/84hero/fundme/internal/webhook"
	"github.com/ethereum/go-ethereum/log"
)

var ErrOutputClosed = errors.New("output is closed")

type WebhookConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	webhook.Config `mapstructure:",squash"`
	Async          bool `mapstructure:"async"`
	BufferSize     int  `mapstructure:"buffer_size"`
	Workers        int  `mapstructure:"workers"`
}

// WebhookOutput posts events to an HTTP endpoint, optionally through a
// buffered queue drained by background workers.
type WebhookOutput struct {
	client *webhook.Client
	async  bool
	queue  chan []Event
	wg     sync.WaitGroup

	closedMu sync.RWMutex
	closed   bool
}

func NewWebhookOutput(cfg WebhookConfig) *WebhookOutput {
	wo := &WebhookOutput{
		client: webhook.NewClient(cfg.Config),
		async:  cfg.Async,
	}
	if cfg.Async {
		if cfg.BufferSize <= 0 {
			cfg.BufferSize = 1000
		}
		if cfg.Workers <= 0 {
			cfg.Workers = 1
		}
		wo.queue = make(chan []Event, cfg.BufferSize)
		for i := 0; i < cfg.Workers; i++ {
			wo.wg.Add(1)
			go wo.worker()
		}
	}
	return wo
}

func (w *WebhookOutput) Name() string { return "webhook" }

func (w *WebhookOutput) worker() {
	defer w.wg.Done()
	for events := range w.queue {
		if err := w.client.Send(context.Background(), network(events), events); err != nil {
			log.Error("Async webhook delivery failed", "events", len(events), "err", err)
		}
	}
}

func network(events []Event) string {
	if len(events) == 0 {
		return ""
	}
	return events[0].Network
}

func (w *WebhookOutput) Send(ctx context.Context, events []Event) error {
	if !w.async {
		return w.client.Send(ctx, network(events), events)
	}
	w.closedMu.RLock()
	defer w.closedMu.RUnlock()
	if w.closed {
		return ErrOutputClosed
	}
	select {
	case w.queue <- events:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued deliveries.
func (w *WebhookOutput) Close() error {
	if !w.async {
		return nil
	}
	w.closedMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closedMu.Unlock()
	w.wg.Wait()
	return nil
}
