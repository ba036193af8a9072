// Package progress publishes render progress to Redis so any API instance
// can answer progress queries for renders running elsewhere.
package progress

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"subrender/internal/pkg/logger"
)

const (
	keyPrefix     = "subrender:progress:"
	channelPrefix = "subrender:progress-events:"
	defaultTTL    = 24 * time.Hour
	writeTimeout  = 2 * time.Second
)

type update struct {
	renderID string
	fraction float64
}

// RedisSink stores the latest fraction per render (SET with TTL) and
// publishes every update. Report never blocks; updates are dropped when the
// buffer is full.
type RedisSink struct {
	rdb redis.UniversalClient
	ttl time.Duration
	log *logger.Logger

	mu      sync.RWMutex
	closed  bool
	updates chan update
	done    chan struct{}
}

func NewRedisSink(rdb redis.UniversalClient, ttl time.Duration, log *logger.Logger) *RedisSink {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &RedisSink{
		rdb:     rdb,
		ttl:     ttl,
		log:     log.WithComponent("progress"),
		updates: make(chan update, 256),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func Key(renderID string) string     { return keyPrefix + renderID }
func Channel(renderID string) string { return channelPrefix + renderID }

func (s *RedisSink) Report(renderID string, fraction float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- update{renderID: renderID, fraction: fraction}:
	default:
	}
}

func (s *RedisSink) loop() {
	defer close(s.done)
	for u := range s.updates {
		s.write(u)
	}
}

func (s *RedisSink) write(u update) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	val := strconv.FormatFloat(u.fraction, 'f', 4, 64)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, Key(u.renderID), val, s.ttl)
		p.Publish(ctx, Channel(u.renderID), val)
		return nil
	})
	if err != nil {
		s.log.Debug("progress write dropped", "render_id", u.renderID, "error", err.Error())
	}
}

// Close drains pending updates and stops the writer.
func (s *RedisSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	s.mu.Unlock()
	<-s.done
}

// Get returns the last recorded fraction. ok is false when none exists.
func Get(ctx context.Context, rdb redis.UniversalClient, renderID string) (fraction float64, ok bool, err error) {
	val, err := rdb.Get(ctx, Key(renderID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}
