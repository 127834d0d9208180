// Package events publishes bridge events to Redis pub/sub.
//
// Events are encoded as JSON or msgpack and sent from a background loop so
// callers on timing-sensitive paths never wait for the network. Failed
// publishes are retried with exponential backoff.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// ErrNoURL is returned when the publisher is configured without a Redis URL.
var ErrNoURL = errors.New("events: redis URL required")

const (
	DefaultChannel = "cdcbridge:events"
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 2

	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"

	bufferSize = 64
)

// Event types.
const (
	TypeButton  = "button"
	TypeState   = "state"
	TypeTrack   = "track"
	TypeDisplay = "display"
)

// Event is one bridge occurrence.
type Event struct {
	Type   string            `json:"type" msgpack:"type"`
	Time   time.Time         `json:"time" msgpack:"time"`
	Fields map[string]string `json:"fields,omitempty" msgpack:"fields,omitempty"`
}

// Config configures the publisher.
type Config struct {
	// URL is the Redis connection URL: redis://[:password@]host:port[/db]
	URL      string `yaml:"redis_url" json:"redisUrl"`
	Channel  string `yaml:"channel" json:"channel"`
	Encoding string `yaml:"encoding" json:"encoding"`
	// Timeout is the per-publish timeout.
	Timeout time.Duration `yaml:"-" json:"-"`
	// Retries after the first attempt.
	Retries int `yaml:"-" json:"-"`
}

// Publisher sends events to a Redis channel.
type Publisher struct {
	cfg    Config
	client *goredis.Client
	queue  chan Event
	log    *log.Logger

	dropped atomic.Int64
}

// New creates a publisher. It does not contact Redis.
func New(cfg Config, logger *log.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("events: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	switch cfg.Encoding {
	case "":
		cfg.Encoding = EncodingJSON
	case EncodingJSON, EncodingMsgpack:
	default:
		return nil, fmt.Errorf("events: unknown encoding %q", cfg.Encoding)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("events: retries must be >= 0, got %d", cfg.Retries)
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Publisher{
		cfg:    cfg,
		client: goredis.NewClient(opts),
		queue:  make(chan Event, bufferSize),
		log:    logger,
	}, nil
}

// Publish queues ev for sending. It never blocks; when the buffer is full
// the event is dropped.
func (p *Publisher) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
		p.log.Debugf("event buffer full, drop %s", ev.Type)
	}
}

// Run sends queued events until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			if err := p.Send(ctx, ev); err != nil {
				p.log.Warnf("publish %s: %v", ev.Type, err)
			}
		}
	}
}

// Encode serializes ev with the configured encoding.
func (p *Publisher) Encode(ev Event) ([]byte, error) {
	if p.cfg.Encoding == EncodingMsgpack {
		return msgpack.Marshal(ev)
	}
	return json.Marshal(ev)
}

// Send publishes ev synchronously, retrying with exponential backoff.
func (p *Publisher) Send(ctx context.Context, ev Event) error {
	body, err := p.Encode(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}

	var lastErr error
	attempts := 1 + p.cfg.Retries
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("events: context canceled: %w", err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("events: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		pubCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		lastErr = p.client.Publish(pubCtx, p.cfg.Channel, body).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("events: failed after %d attempts: %w", attempts, lastErr)
}

// Dropped returns the number of events lost to a full buffer.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Channel returns the configured channel name.
func (p *Publisher) Channel() string { return p.cfg.Channel }

func (p *Publisher) Close() error {
	return p.client.Close()
}
