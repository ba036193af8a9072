package processor

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"subrender/internal/pkg/logger"
)

func TestMultiSinkSkipsNil(t *testing.T) {
	var got []float64
	sink := MultiSink{
		nil,
		ProgressFunc(func(id string, f float64) {
			assert.Equal(t, "rnd_1", id)
			got = append(got, f)
		}),
	}

	sink.Report("rnd_1", 0.25)
	sink.Report("rnd_1", 1)
	assert.Equal(t, []float64{0.25, 1}, got)
}

func TestProgressLoggerBuckets(t *testing.T) {
	var buf bytes.Buffer
	pl := newProgressLogger(logger.New(logger.Config{Level: "info", Format: "json", Output: &buf}), 0.1)

	for _, f := range []float64{0, 0.01, 0.05, 0.1, 0.15, 0.5, 0.55, 1, 1} {
		pl.observe(f)
	}

	assert.Equal(t, 4, strings.Count(buf.String(), "render progress"))
}

func TestClampFraction(t *testing.T) {
	assert.Equal(t, 0.0, clampFraction(-1))
	assert.Equal(t, 1.0, clampFraction(3))
	assert.Equal(t, 0.4, clampFraction(0.4))
}
