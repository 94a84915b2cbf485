// Package ratelimit enforces per-category minimum intervals between
// outbound API calls. The platform throttles job submission hard
// (roughly ten per minute) while tolerating much faster status polling,
// so each endpoint category carries its own spacing.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cicada/internal/logging"
)

// Category names a group of endpoints sharing one spacing rule.
type Category string

const (
	// CategoryLipSync covers lip-sync job submission.
	CategoryLipSync Category = "lip_sync"
	// CategoryVoiceClone covers voice clone job submission.
	CategoryVoiceClone Category = "voice_clone"
	// CategoryTTS covers speech synthesis calls.
	CategoryTTS Category = "tts"
	// CategoryDefault covers everything else, including status polls.
	CategoryDefault Category = "default"
)

// DefaultIntervals returns the stock spacing table.
func DefaultIntervals() map[Category]time.Duration {
	return map[Category]time.Duration{
		CategoryLipSync:    6 * time.Second,
		CategoryVoiceClone: 6 * time.Second,
		CategoryTTS:        500 * time.Millisecond,
		CategoryDefault:    time.Second,
	}
}

// Limiter spaces calls per category. Safe for concurrent use; the wait
// decision and the timestamp update happen atomically so overlapping
// callers queue behind each other instead of starving.
type Limiter struct {
	mu        sync.Mutex
	intervals map[Category]time.Duration
	next      map[Category]time.Time
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// New builds a limiter from an interval table. Nil or empty tables fall
// back to DefaultIntervals. Categories missing from the table use the
// default category's interval.
func New(intervals map[Category]time.Duration, logger *slog.Logger) *Limiter {
	if len(intervals) == 0 {
		intervals = DefaultIntervals()
	}
	table := make(map[Category]time.Duration, len(intervals))
	for category, interval := range intervals {
		if interval < 0 {
			interval = 0
		}
		table[category] = interval
	}
	if _, ok := table[CategoryDefault]; !ok {
		table[CategoryDefault] = DefaultIntervals()[CategoryDefault]
	}
	return &Limiter{
		intervals: table,
		next:      make(map[Category]time.Time, len(table)),
		logger:    logging.NewComponentLogger(logger, "ratelimit"),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Wait blocks until the category's minimum interval has elapsed since
// the previous call in that category, then records the call time. It
// reserves its slot before sleeping, so concurrent callers in the same
// category are serialized in arrival order.
func (l *Limiter) Wait(ctx context.Context, category Category) error {
	if l == nil {
		return nil
	}
	interval := l.interval(category)

	l.mu.Lock()
	now := l.now()
	at := l.next[category]
	if at.Before(now) {
		at = now
	}
	l.next[category] = at.Add(interval)
	l.mu.Unlock()

	wait := at.Sub(now)
	if wait <= 0 {
		return nil
	}
	l.logger.Debug("throttling request",
		logging.String("category", string(category)),
		logging.Duration("wait", wait))
	return l.sleep(ctx, wait)
}

// Interval reports the configured spacing for a category.
func (l *Limiter) Interval(category Category) time.Duration {
	return l.interval(category)
}

func (l *Limiter) interval(category Category) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if interval, ok := l.intervals[category]; ok {
		return interval
	}
	return l.intervals[CategoryDefault]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
