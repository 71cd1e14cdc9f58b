package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"gamebridge/internal/channel"
)

const (
	redisQueueSize  = 1024
	redisSessionTTL = 24 * time.Hour
	redisOpTimeout  = 3 * time.Second
)

// NewRedisClient connects and pings; the sink is useless against a dead server.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

type inbound struct {
	sessionID string
	msg       channel.Message
	at        time.Time
}

// RedisSink publishes inbound frames on <prefix>:inbound and keeps the latest
// frame of each session in the hash <prefix>:session:<id>.
//
// HandleMessage only queues; a single worker talks to Redis so a slow server
// never stalls the reader loop. When the queue is full, or the sink is
// closed, the frame is dropped and counted.
type RedisSink struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	// mu orders queue sends against Close: once Close holds it, no send is
	// in flight and none can start, so the worker's drain sees every frame.
	mu      sync.RWMutex
	queue   chan inbound
	stop    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
	stored  atomic.Int64
	dropped atomic.Int64
}

func NewRedisSink(client *redis.Client, prefix string, logger *slog.Logger) *RedisSink {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "gamebridge"
	}
	return &RedisSink{
		client: client,
		prefix: prefix,
		logger: logger,
		queue:  make(chan inbound, redisQueueSize),
		stop:   make(chan struct{}),
	}
}

// Channel is the pub/sub channel inbound frames are published on.
func (r *RedisSink) Channel() string { return r.prefix + ":inbound" }

// SessionKey is the hash holding the latest frame of a session.
func (r *RedisSink) SessionKey(sessionID string) string {
	return r.prefix + ":session:" + sessionID
}

// Dropped counts frames lost to a full queue or handed over after Close.
func (r *RedisSink) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Stored counts frames the worker wrote without error.
func (r *RedisSink) Stored() int64 {
	if r == nil {
		return 0
	}
	return r.stored.Load()
}

func (r *RedisSink) HandleMessage(sessionID string, msg channel.Message) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- inbound{sessionID: sessionID, msg: msg, at: time.Now()}:
	default:
		r.dropped.Add(1)
		r.logger.Warn("redis_queue_full",
			"session_id", sessionID,
			"command", msg.Command(),
		)
	}
}

// Start launches the worker. Calling it more than once, or after Close, is
// harmless.
func (r *RedisSink) Start() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() || !r.started.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go r.worker()
}

func (r *RedisSink) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			// drain what is already queued
			for {
				select {
				case in := <-r.queue:
					r.store(in)
				default:
					return
				}
			}
		case in := <-r.queue:
			r.store(in)
		}
	}
}

func (r *RedisSink) store(in inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.Store(ctx, in.sessionID, in.msg, in.at); err != nil {
		r.logger.Error("redis_store_failed",
			"session_id", in.sessionID,
			"command", in.msg.Command(),
			"error", err,
		)
		return
	}
	r.stored.Add(1)
}

// Store writes one frame synchronously. Without a client it is a no-op.
func (r *RedisSink) Store(ctx context.Context, sessionID string, msg channel.Message, at time.Time) error {
	if r == nil || r.client == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	fields := map[string]any{
		"command":    msg.Command(),
		"payload":    string(payload),
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	}
	if ts, ok := msg.Timestamp(); ok {
		fields["timestamp"] = strconv.FormatFloat(ts, 'f', -1, 64)
	}

	key := r.SessionKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.Publish(ctx, r.Channel(), payload)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, redisSessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Latest returns the stored hash for a session, or nil when there is none.
func (r *RedisSink) Latest(ctx context.Context, sessionID string) (map[string]string, error) {
	if r == nil || r.client == nil {
		return nil, nil
	}
	fields, err := r.client.HGetAll(ctx, r.SessionKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// Close stops the worker after it drains the queue. Frames queued on a sink
// that was never started count as dropped. The client is owned by the caller.
func (r *RedisSink) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if !r.closed.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stop)
	r.wg.Wait()
	if !r.started.Load() {
		r.dropped.Add(int64(len(r.queue)))
	}
	return nil
}
