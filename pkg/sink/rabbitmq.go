package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
	QueueName  string `mapstructure:"queue_name"`
	Durable    bool   `mapstructure:"durable"`
}

// publisher is the subset of *amqp.Channel the output uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQOutput publishes persistent JSON messages to an exchange.
type RabbitMQOutput struct {
	conn       io.Closer
	ch         publisher
	exchange   string
	routingKey string
}

func NewRabbitMQOutput(cfg RabbitMQConfig) (*RabbitMQOutput, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	fail := func(err error) (*RabbitMQOutput, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", cfg.Durable, false, false, false, nil); err != nil {
			return fail(err)
		}
	}
	if cfg.QueueName != "" {
		q, err := ch.QueueDeclare(cfg.QueueName, cfg.Durable, false, false, false, nil)
		if err != nil {
			return fail(err)
		}
		if cfg.Exchange != "" {
			if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
				return fail(err)
			}
		}
	}
	return &RabbitMQOutput{conn: conn, ch: ch, exchange: cfg.Exchange, routingKey: cfg.RoutingKey}, nil
}

func (r *RabbitMQOutput) Name() string { return "rabbitmq" }

func (r *RabbitMQOutput) Send(ctx context.Context, events []Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		err = r.ch.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         ev.EventName,
			Body:         data,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *RabbitMQOutput) Close() error {
	var errs []error
	if r.ch != nil {
		errs = append(errs, r.ch.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}
