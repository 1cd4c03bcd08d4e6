package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultDialTimeout   = 3 * time.Second
	defaultRetryInterval = 5 * time.Second
)

// ErrDisconnected is returned by Publish and Ping while no broker connection
// is up. Events published in that window are dropped.
var ErrDisconnected = errors.New("event broker disconnected")

// AMQPPublisher publishes events as persistent JSON messages to one durable
// queue per event kind, routed through the default exchange. Dialing only
// happens in Connect and the background loop started by Start, never on the
// publish path.
type AMQPPublisher struct {
	url           string
	logger        *slog.Logger
	dialTimeout   time.Duration
	retryInterval time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:           url,
		logger:        logger.With("component", "event_publisher"),
		dialTimeout:   defaultDialTimeout,
		retryInterval: defaultRetryInterval,
	}
}

// Connect dials the broker once and declares the queues. It gives up after
// the dial timeout or when ctx is done, whichever comes first.
func (p *AMQPPublisher) Connect(ctx context.Context) error {
	if p.connected() {
		return nil
	}

	type dialResult struct {
		conn *amqp.Connection
		ch   *amqp.Channel
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, ch, err := p.dial()
		done <- dialResult{conn, ch, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		p.mu.Lock()
		p.closeLocked()
		p.conn, p.ch = r.conn, r.ch
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.conn.Close()
			}
		}()
		return ctx.Err()
	}
}

func (p *AMQPPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:      amqp.DefaultDial(p.dialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	for _, kind := range AllKinds {
		if _, err := ch.QueueDeclare(string(kind), true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare queue %s: %w", kind, err)
		}
	}
	return conn, ch, nil
}

// Start runs the reconnect loop until Close.
func (p *AMQPPublisher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reconnectLoop(ctx)
	}()
}

func (p *AMQPPublisher) reconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(p.retryInterval)
	defer ticker.Stop()

	for {
		if !p.connected() {
			if err := p.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Warn("event broker unavailable", "error", err)
			} else {
				p.logger.Info("event broker connected")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *AMQPPublisher) connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch != nil && !p.ch.IsClosed()
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		p.logger.Debug("dropping event while broker is down", "kind", e.Kind, "call_id", e.CallID)
		return ErrDisconnected
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", string(e.Kind), false, false, msg); err != nil {
		p.closeLocked()
		p.logger.Error("publish event failed", "error", err, "kind", e.Kind, "call_id", e.CallID)
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.Debug("published event", "kind", e.Kind, "call_id", e.CallID)
	return nil
}

// Ping reports whether the broker connection is usable. It does not dial.
func (p *AMQPPublisher) Ping(_ context.Context) error {
	if !p.connected() {
		return ErrDisconnected
	}
	return nil
}

// Close stops the reconnect loop and drops the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
