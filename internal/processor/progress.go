package processor

import (
	"subrender/internal/pkg/logger"
)

// ProgressSink receives fractional render progress. Report must not block;
// sinks that cannot keep up drop updates.
type ProgressSink interface {
	Report(renderID string, fraction float64)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(renderID string, fraction float64)

func (f ProgressFunc) Report(renderID string, fraction float64) { f(renderID, fraction) }

// MultiSink fans an update out to every non-nil sink.
type MultiSink []ProgressSink

func (m MultiSink) Report(renderID string, fraction float64) {
	for _, s := range m {
		if s != nil {
			s.Report(renderID, fraction)
		}
	}
}

// progressLogger logs a render's progress once per bucket crossing.
type progressLogger struct {
	log        *logger.Logger
	bucketSize float64
	lastBucket int
}

func newProgressLogger(log *logger.Logger, bucketSize float64) *progressLogger {
	if bucketSize <= 0 {
		bucketSize = 0.1
	}
	return &progressLogger{log: log, bucketSize: bucketSize, lastBucket: -1}
}

func (p *progressLogger) observe(fraction float64) {
	bucket := int(fraction / p.bucketSize)
	if fraction >= 1 {
		bucket = int(1 / p.bucketSize)
	}
	if bucket <= p.lastBucket {
		return
	}
	p.lastBucket = bucket
	p.log.Info("render progress", "percent", int(fraction*100))
}

func clampFraction(f float64) float64 {
	switch {
	case f != f, f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
