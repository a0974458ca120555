package rabbitpublisher

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"github.com/wb-go/wbf/retry"

	"github.com/newsdesk/notifyd/internal/config"
	"github.com/newsdesk/notifyd/pkg/circuitbreaker"
)

type Publisher struct {
	conn          *amqp091.Connection
	channel       *amqp091.Channel
	exchange      string
	contentType   string
	retryStrategy retry.Strategy
	breaker       *gobreaker.CircuitBreaker
}

func NewRabbitPublisher(ctx context.Context, rabbitCfg config.RabbitMQConfig, rabbitmqRetryStrategy retry.Strategy) (*Publisher, error) {
	var conn *amqp091.Connection
	var err error

	err = retry.DoContext(ctx, rabbitmqRetryStrategy, func() error {
		conn, err = amqp091.Dial(fmt.Sprintf(
			"amqp://%s:%s@%s:%d/%s",
			rabbitCfg.User,
			rabbitCfg.Password,
			rabbitCfg.Host,
			rabbitCfg.Port,
			rabbitCfg.VHost,
		))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("error creating channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		rabbitCfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("error declaring exchange: %w", err)
	}

	// one queue per routing key: delivery jobs and author outcome notes
	queues := map[string]string{
		rabbitCfg.EmailQueue:  "email",
		rabbitCfg.AuthorQueue: "author",
	}
	for queue, routingKey := range queues {
		if _, err := ch.QueueDeclare(
			queue,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,
		); err != nil {
			return nil, fmt.Errorf("error declaring queue '%s': %w", queue, err)
		}
		if err := ch.QueueBind(queue, routingKey, rabbitCfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("error binding queue '%s' to exchange: %w", queue, err)
		}
	}

	return &Publisher{
		conn:          conn,
		channel:       ch,
		exchange:      rabbitCfg.Exchange,
		contentType:   "application/json",
		retryStrategy: rabbitmqRetryStrategy,
		breaker:       circuitbreaker.New("rabbitmq-publisher"),
	}, nil
}

// PublishWithRetry publishes through the circuit breaker; once the broker
// keeps refusing, further publishes fail fast instead of burning retries.
func (p *Publisher) PublishWithRetry(ctx context.Context, body []byte, routingKey string) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, retry.DoContext(ctx, p.retryStrategy, func() error {
			return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
				ContentType:  p.contentType,
				DeliveryMode: amqp091.Persistent,
				Body:         body,
			})
		})
	})
	return err
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
