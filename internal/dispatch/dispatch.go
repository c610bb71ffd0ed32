// Package dispatch fans commentary requests out to the generation service
// under a concurrency ceiling, retrying transient failures per item with
// exponential backoff. Every input item gets exactly one outcome, including
// on cancellation.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/commentary-cli/internal/keyvault"
	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/resilience"
)

// Item is one outbound request. It deliberately carries no portfolio code;
// correlation back to the portfolio happens through the key vault only.
type Item struct {
	Key          keyvault.Key
	Ticker       string
	SecurityName string
	Prompt       string
}

// Worker issues a single attempt for an item. Errors are classified through
// the resilience package: transient errors are retried, anything else is
// final.
type Worker func(ctx context.Context, item Item) (*model.RawResponse, error)

// Status is the final disposition of one item.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusRetryableFailure Status = "retryable_failure" // transient, retries exhausted
	StatusPermanentFailure Status = "permanent_failure"
	StatusCancelled        Status = "cancelled"
)

// Outcome is the per-item dispatch result.
type Outcome struct {
	Status   Status
	Response *model.RawResponse
	Reason   string
	Attempts int
}

// Config controls dispatch behavior.
type Config struct {
	// Concurrency is the max number of in-flight requests. Default: 20.
	Concurrency int

	// MaxAttempts is the total attempts per item including the first.
	// Default: 5.
	MaxAttempts int

	// Backoff controls the retry delay between attempts.
	Backoff resilience.BackoffConfig

	// RequestsPerSecond paces attempt admission across all items.
	// Zero disables pacing; the concurrency ceiling still applies.
	RequestsPerSecond float64

	// OnProgress, if set, is called after each item settles.
	OnProgress func(ticker string, done, total int)
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Dispatcher executes one run's worth of items.
type Dispatcher struct {
	cfg     Config
	limiter *rate.Limiter
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return d
}

// Run dispatches every item and returns one outcome per key. Cancelling ctx
// stops admission of new items immediately; items already in flight settle
// naturally, and unstarted items are reported as StatusCancelled. The
// returned map always has exactly len(items) entries.
func (d *Dispatcher) Run(ctx context.Context, items []Item, work Worker) map[keyvault.Key]Outcome {
	results := make([]Outcome, len(items))
	total := len(items)

	var settled atomic.Int64
	progress := func(ticker string) {
		n := settled.Add(1)
		if d.cfg.OnProgress != nil {
			d.cfg.OnProgress(ticker, int(n), total)
		}
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)

	for i, item := range items {
		// Admission check: once cancelled, no new item is started.
		if ctx.Err() != nil {
			results[i] = Outcome{Status: StatusCancelled, Reason: "run cancelled before dispatch"}
			progress(item.Ticker)
			continue
		}

		i, item := i, item
		g.Go(func() error {
			results[i] = d.runItem(ctx, item, work)
			progress(item.Ticker)
			return nil
		})
	}

	_ = g.Wait() // workers never return errors; individual failures live in outcomes

	out := make(map[keyvault.Key]Outcome, len(items))
	for i, item := range items {
		out[item.Key] = results[i]
	}
	return out
}

// itemState is one node of the per-item attempt state machine. Attempts are
// strictly sequential within an item; no state is shared between items.
type itemState int

const (
	statePending itemState = iota
	stateInFlight
	stateWaiting
	stateSucceeded
	stateFailedRetryable
	stateFailedPermanent
	stateCancelled
)

func (d *Dispatcher) runItem(ctx context.Context, item Item, work Worker) Outcome {
	var (
		st       = statePending
		resp     *model.RawResponse
		lastErr  error
		attempts int
	)

	for {
		switch st {
		case statePending:
			if ctx.Err() != nil {
				st = stateCancelled
				break
			}
			st = stateInFlight

		case stateInFlight:
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					st = stateCancelled
					break
				}
			}
			attempts++
			resp, lastErr = work(ctx, item)
			switch {
			case lastErr == nil:
				st = stateSucceeded
			case ctx.Err() != nil:
				st = stateCancelled
			case !resilience.IsTransient(lastErr):
				st = stateFailedPermanent
			case attempts >= d.cfg.MaxAttempts:
				st = stateFailedRetryable
			default:
				st = stateWaiting
			}

		case stateWaiting:
			delay := d.cfg.Backoff.Delay(attempts - 1)
			if ra := resilience.RetryAfter(lastErr); ra > 0 {
				// The service told us exactly when to come back.
				delay = ra
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				st = stateCancelled
			case <-timer.C:
				st = stateInFlight
			}

		case stateSucceeded:
			return Outcome{Status: StatusSuccess, Response: resp, Attempts: attempts}

		case stateFailedRetryable:
			return Outcome{Status: StatusRetryableFailure, Reason: reason(lastErr), Attempts: attempts}

		case stateFailedPermanent:
			return Outcome{Status: StatusPermanentFailure, Reason: reason(lastErr), Attempts: attempts}

		case stateCancelled:
			return Outcome{Status: StatusCancelled, Reason: cancelReason(lastErr), Attempts: attempts}
		}
	}
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func cancelReason(lastErr error) string {
	if lastErr != nil {
		return "run cancelled; last error: " + lastErr.Error()
	}
	return "run cancelled"
}
