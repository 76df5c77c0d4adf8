// Package worker runs the weekly campaign tick on the clock.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/weekly-campaign/internal/pkg/distlock"
	"github.com/ignite/weekly-campaign/internal/service/weekly"
)

// Ticker is the part of the weekly service the scheduler drives.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (*weekly.TickResult, error)
}

// TickScheduler calls Tick once at the start of every minute. Triggers
// match to the exact minute, so a minute this loop misses is a stage that
// waits a week.
//
// A per-minute distlock keeps two replicas from ticking the same minute. The
// state machine is correct without it.
type TickScheduler struct {
	ticker      Ticker
	db          *sql.DB
	redisClient *redis.Client
	lockTTL     time.Duration
	now         func() time.Time

	ticks   int64
	skipped int64
	errors  int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewTickScheduler creates a scheduler. db and redisClient may be nil; the
// lock then falls back to a process-local one.
func NewTickScheduler(t Ticker, db *sql.DB, redisClient *redis.Client, lockTTL time.Duration) *TickScheduler {
	if lockTTL <= 0 {
		lockTTL = 55 * time.Second
	}
	return &TickScheduler{
		ticker:      t,
		db:          db,
		redisClient: redisClient,
		lockTTL:     lockTTL,
		now:         time.Now,
	}
}

// Start begins the minute loop.
func (ts *TickScheduler) Start() error {
	ts.mu.Lock()
	if ts.running {
		ts.mu.Unlock()
		return fmt.Errorf("tick scheduler already running")
	}
	ts.running = true
	ts.ctx, ts.cancel = context.WithCancel(context.Background())
	ts.mu.Unlock()

	log.Printf("[TickScheduler] Starting (lock ttl %v)", ts.lockTTL)
	ts.wg.Add(1)
	go ts.loop()
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (ts *TickScheduler) Stop() {
	ts.mu.Lock()
	if !ts.running {
		ts.mu.Unlock()
		return
	}
	ts.running = false
	ts.mu.Unlock()

	ts.cancel()
	ts.wg.Wait()
	log.Printf("[TickScheduler] Stopped. ticks=%d skipped=%d errors=%d",
		atomic.LoadInt64(&ts.ticks), atomic.LoadInt64(&ts.skipped), atomic.LoadInt64(&ts.errors))
}

func (ts *TickScheduler) loop() {
	defer ts.wg.Done()

	// Tick immediately, then on every minute boundary.
	ts.RunOnce(ts.ctx, ts.now())
	for {
		wait := untilNextMinute(ts.now())
		timer := time.NewTimer(wait)
		select {
		case <-ts.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			ts.RunOnce(ts.ctx, ts.now())
		}
	}
}

// RunOnce ticks for now unless another holder already owns this minute.
// It reports whether Tick ran. The lock is kept until the minute is over, so
// a replica whose clock fires late in the same minute still skips it.
func (ts *TickScheduler) RunOnce(ctx context.Context, now time.Time) bool {
	started := time.Now()
	minute := now.UTC().Truncate(time.Minute)
	hold := minute.Add(time.Minute).Sub(now.UTC())
	ttl := ts.lockTTL
	if ttl < hold {
		ttl = hold
	}
	lock := distlock.NewLock(ts.redisClient, ts.db, "tick:"+minute.Format("2006-01-02T15:04"), ttl)

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[TickScheduler] lock error, ticking anyway: %v", err)
	} else if !acquired {
		atomic.AddInt64(&ts.skipped, 1)
		log.Printf("[TickScheduler] minute %s already being ticked elsewhere", minute.Format(time.RFC3339))
		return false
	} else {
		defer func() { releaseAfter(lock, hold-time.Since(started)) }()
	}

	atomic.AddInt64(&ts.ticks, 1)
	res, err := ts.ticker.Tick(ctx, now)
	if err != nil {
		atomic.AddInt64(&ts.errors, 1)
		log.Printf("[TickScheduler] tick failed: %v", err)
		return true
	}
	if len(res.Errors) > 0 {
		atomic.AddInt64(&ts.errors, 1)
	}
	if len(res.Actions) > 0 || len(res.Errors) > 0 {
		log.Printf("[TickScheduler] week %s actions=%v errors=%v", res.WeekOf, res.Actions, res.Errors)
	}
	return true
}

// releaseAfter frees lock once d has passed. Advisory locks pin a pooled
// connection and the process-local lock has no TTL, so neither can be left
// to expire on its own.
func releaseAfter(lock distlock.DistLock, d time.Duration) {
	release := func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
			log.Printf("[TickScheduler] release lock: %v", err)
		}
	}
	if d <= 0 {
		release()
		return
	}
	time.AfterFunc(d, release)
}

// Stats returns the tick, skip and error counters.
func (ts *TickScheduler) Stats() (ticks, skipped, errors int64) {
	return atomic.LoadInt64(&ts.ticks), atomic.LoadInt64(&ts.skipped), atomic.LoadInt64(&ts.errors)
}

// untilNextMinute returns the wait until one second past the next minute
// boundary, so a slightly fast timer never lands in the previous minute.
func untilNextMinute(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute + time.Second)
	return next.Sub(now)
}
