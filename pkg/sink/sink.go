// Package sink fans decoded watcher events out to external systems.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/84hero/fundme/pkg/decoder"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Event is a raw log with its decoded form.
type Event struct {
	Network   string              `json:"network"`
	Log       types.Log           `json:"log"`
	EventName string              `json:"event_name,omitempty"`
	Decoded   *decoder.DecodedLog `json:"decoded,omitempty"`
}

// Output defines the interface for event output pipeline
type Output interface {
	Name() string
	Send(ctx context.Context, events []Event) error
	Close() error
}

// Config selects and configures the outputs.
type Config struct {
	Console  ConsoleConfig  `mapstructure:"console"`
	File     FileConfig     `mapstructure:"file"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

// Open builds every enabled output. On failure the outputs opened so far
// are closed.
func Open(cfg Config) ([]Output, error) {
	var outputs []Output
	add := func(o Output, err error) error {
		if err != nil {
			return err
		}
		outputs = append(outputs, o)
		return nil
	}

	var err error
	if cfg.Console.Enabled {
		err = add(NewConsoleOutput(), nil)
	}
	if err == nil && cfg.File.Enabled {
		err = add(NewFileOutput(cfg.File.Path))
	}
	if err == nil && cfg.Webhook.Enabled {
		err = add(NewWebhookOutput(cfg.Webhook), nil)
	}
	if err == nil && cfg.Postgres.Enabled {
		err = add(NewPostgresOutput(cfg.Postgres.URL, cfg.Postgres.Table))
	}
	if err == nil && cfg.Redis.Enabled {
		err = add(NewRedisOutput(cfg.Redis))
	}
	if err == nil && cfg.Kafka.Enabled {
		err = add(NewKafkaOutput(cfg.Kafka))
	}
	if err == nil && cfg.RabbitMQ.Enabled {
		err = add(NewRabbitMQOutput(cfg.RabbitMQ))
	}
	if err != nil {
		for _, o := range outputs {
			_ = o.Close()
		}
		return nil, err
	}
	return outputs, nil
}

// Dispatcher decodes scanned logs and delivers them to every output.
type Dispatcher struct {
	network  string
	registry *decoder.Registry
	outputs  []Output
}

// NewDispatcher creates a dispatcher for network. Logs whose signature is
// unknown to registry are still delivered, without a decoded form.
func NewDispatcher(network string, registry *decoder.Registry, outputs ...Output) *Dispatcher {
	return &Dispatcher{network: network, registry: registry, outputs: outputs}
}

// Decode converts raw logs to events.
func (d *Dispatcher) Decode(logs []types.Log) []Event {
	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		ev := Event{Network: d.network, Log: l}
		if d.registry != nil {
			if res, err := d.registry.Decode(l); err == nil {
				ev.Decoded = res
				ev.EventName = res.Name
			} else {
				log.Debug("Undecodable log", "tx", l.TxHash.Hex(), "index", l.Index, "err", err)
			}
		}
		events = append(events, ev)
	}
	return events
}

// Handle sends logs to all outputs concurrently. It fails if any output
// fails so the scanner retries the range; outputs must tolerate replays.
func (d *Dispatcher) Handle(ctx context.Context, logs []types.Log) error {
	if len(logs) == 0 {
		return nil
	}
	events := d.Decode(logs)

	errs := make([]error, len(d.outputs))
	var wg sync.WaitGroup
	for i, out := range d.outputs {
		wg.Add(1)
		go func(i int, o Output) {
			defer wg.Done()
			if err := o.Send(ctx, events); err != nil {
				log.Error("Output failed", "output", o.Name(), "events", len(events), "err", err)
				errs[i] = fmt.Errorf("%s: %w", o.Name(), err)
			}
		}(i, out)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close closes every output.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, o := range d.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
		}
	}
	return errors.Join(errs...)
}
