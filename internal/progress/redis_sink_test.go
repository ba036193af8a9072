package progress

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"subrender/internal/pkg/logger"
)

// unreachable points at a closed port so every command fails fast.
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "subrender:progress:rnd_1", Key("rnd_1"))
	assert.Equal(t, "subrender:progress-events:rnd_1", Channel("rnd_1"))
}

func TestReportNeverBlocks(t *testing.T) {
	rdb := unreachable()
	defer rdb.Close()

	sink := NewRedisSink(rdb, time.Minute, logger.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			sink.Report("rnd_1", float64(i)/10000)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked on an unavailable redis")
	}

	sink.Close()
	sink.Close()
	assert.NotPanics(t, func() { sink.Report("rnd_1", 1) })
}

func TestGetPropagatesErrors(t *testing.T) {
	rdb := unreachable()
	defer rdb.Close()

	_, ok, err := Get(context.Background(), rdb, "rnd_1")
	assert.Error(t, err)
	assert.False(t, ok)
}
