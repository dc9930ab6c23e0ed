// Package queue carries acquisition jobs between the web process and the worker over RabbitMQ.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	amqp "github.com/rabbitmq/amqp091-go"
)

const contentType = "application/json"

// Executor runs a decoded job (see tasks.Executor).
type Executor interface {
	Execute(ctx context.Context, job models.Job) error
}

// Publisher is a tasks.Transport publishing jobs to a durable queue.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *log.Logger
	mu      sync.Mutex
}

// Dial opens a connection and channel to url and declares the queue.
func Dial(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to connect to RabbitMQ: %v", shared.ErrServiceUnavailable, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return conn, channel, nil
}

// NewPublisher connects to cfg.URL and declares cfg.Queue.
func NewPublisher(cfg shared.RabbitMQConfig, logger *log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	conn, channel, err := Dial(cfg.URL, cfg.Queue)
	if err != nil {
		return nil, err
	}

	logger.Info("RabbitMQ publisher ready", "queue", cfg.Queue)
	return &Publisher{conn: conn, channel: channel, queue: cfg.Queue, logger: logger}, nil
}

// Enqueue publishes job as a persistent JSON message.
func (p *Publisher) Enqueue(ctx context.Context, job models.Job) error {
	msg, err := Publishing(job)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.TaskID, err)
	}

	p.logger.Debug("job published", "task_id", job.TaskID, "queue", p.queue, "size", len(msg.Body))
	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Consumer feeds queued jobs to an [Executor].
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	prefetch int
	exec     Executor
	logger   *log.Logger
}

// NewConsumer connects to cfg.URL. prefetch bounds the unacknowledged deliveries, and so the jobs running at once.
func NewConsumer(cfg shared.RabbitMQConfig, prefetch int, exec Executor, logger *log.Logger) (*Consumer, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	conn, channel, err := Dial(cfg.URL, cfg.Queue)
	if err != nil {
		return nil, err
	}
	if err := channel.Qos(prefetch, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	return &Consumer{
		conn:     conn,
		channel:  channel,
		queue:    cfg.Queue,
		prefetch: prefetch,
		exec:     exec,
		logger:   logger,
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
//
// Up to prefetch deliveries are handled concurrently. Run waits for in-flight jobs before returning.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx,
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", c.queue, err)
	}

	c.logger.Info("consuming jobs", "queue", c.queue, "prefetch", c.prefetch)

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.prefetch)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: delivery channel closed", shared.ErrServiceUnavailable)
			}

			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer func() { <-sem; wg.Done() }()
				c.handle(ctx, d)
			}()
		}
	}
}

// handle executes one delivery. Undecodable messages are dropped, store failures are requeued.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	job, err := DecodeDelivery(d)
	if err != nil {
		c.logger.Error("dropping undecodable message", "delivery_tag", d.DeliveryTag, "error", err)
		if err := d.Nack(false, false); err != nil {
			c.logger.Error("failed to nack message", "error", err)
		}
		return
	}

	start := time.Now()
	if err := c.exec.Execute(ctx, job); err != nil {
		c.logger.Error("job not recorded, requeueing", "task_id", job.TaskID, "error", err)
		if err := d.Nack(false, !d.Redelivered); err != nil {
			c.logger.Error("failed to nack message", "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "task_id", job.TaskID, "error", err)
		return
	}
	c.logger.Debug("job acknowledged", "task_id", job.TaskID, "elapsed", time.Since(start))
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
