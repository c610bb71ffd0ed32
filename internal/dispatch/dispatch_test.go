package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commentary-cli/internal/keyvault"
	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/resilience"
)

func testItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			Key:    keyvault.Key(fmt.Sprintf("key-%d", i)),
			Ticker: fmt.Sprintf("TCK%d", i),
			Prompt: "explain performance",
		}
	}
	return items
}

func fastConfig() Config {
	return Config{
		Concurrency: 4,
		MaxAttempts: 3,
		Backoff: resilience.BackoffConfig{
			Initial:        time.Millisecond,
			Max:            5 * time.Millisecond,
			Multiplier:     2.0,
			JitterFraction: 0,
		},
	}
}

func okResponse() *model.RawResponse {
	return &model.RawResponse{Kind: model.PlainWithAnnotations, Text: "fine quarter"}
}

func TestRunTotalCompletion(t *testing.T) {
	items := testItems(12)

	// Mixed dispositions: every third item fails permanently, every fourth
	// exhausts retries, rest succeed.
	worker := func(ctx context.Context, item Item) (*model.RawResponse, error) {
		switch {
		case item.Ticker == "TCK3" || item.Ticker == "TCK6":
			return nil, resilience.NewPermanentError(errors.New("bad request"), 400)
		case item.Ticker == "TCK4" || item.Ticker == "TCK8":
			return nil, resilience.NewTransientError(errors.New("upstream 503"), 503)
		default:
			return okResponse(), nil
		}
	}

	out := New(fastConfig()).Run(context.Background(), items, worker)

	require.Len(t, out, len(items))
	for _, item := range items {
		_, ok := out[item.Key]
		assert.True(t, ok, "missing outcome for %s", item.Ticker)
	}
	assert.Equal(t, StatusPermanentFailure, out[items[3].Key].Status)
	assert.Equal(t, StatusRetryableFailure, out[items[4].Key].Status)
	assert.Equal(t, StatusSuccess, out[items[0].Key].Status)
}

func TestRunRetryBound(t *testing.T) {
	items := testItems(1)

	var attempts atomic.Int32
	worker := func(ctx context.Context, item Item) (*model.RawResponse, error) {
		attempts.Add(1)
		return nil, resilience.NewTransientError(errors.New("always down"), 502)
	}

	cfg := fastConfig()
	cfg.MaxAttempts = 4
	out := New(cfg).Run(context.Background(), items, worker)

	oc := out[items[0].Key]
	assert.Equal(t, StatusRetryableFailure, oc.Status)
	assert.Equal(t, 4, oc.Attempts)
	assert.Equal(t, int32(4), attempts.Load())
	assert.Contains(t, oc.Reason, "always down")
}

func TestRunFailTwiceThenSucceed(t *testing.T) {
	items := testItems(1)

	var attempts atomic.Int32
	worker := func(ctx context.Context, item Item) (*model.RawResponse, error) {
		if attempts.Add(1) <= 2 {
			return nil, resilience.NewTransientError(errors.New("flaky"), 500)
		}
		return okResponse(), nil
	}

	out := New(fastConfig()).Run(context.Background(), items, worker)

	oc := out[items[0].Key]
	assert.Equal(t, StatusSuccess, oc.Status)
	assert.Equal(t, 3, oc.Attempts)
	require.NotNil(t, oc.Response)
	assert.Equal(t, "fine quarter", oc.Response.Text)
}

func TestRunPermanentFailureNotRetried(t *testing.T) {
	items := testItems(1)

	var attempts atomic.Int32
	worker := func(ctx context.Context, item Item) (*model.RawResponse, error) {
		attempts.Add(1)
		return nil, resilience.NewPermanentError(errors.New("unsupported parameter"), 400)
	}

	out := New(fastConfig()).Run(context.Background(), items, worker)

	oc := out[items[0].Key]
	assert.Equal(t, StatusPermanentFailure, oc.Status)
	assert.Equal(t, 1, oc.Attempts)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRunRetryAfterOverridesBackoff(t *testing.T) {
	items := testItems(1)

	var attempts atomic.Int32
	worker := func(ctx context.Context, item Item) (*model.RawResponse, error) {
		if attempts.Add(1) == 1 {
			return nil, resilience.NewRateLimitError(errors.New("slow down"), 2*time.Millisecond)
		}
		return okResponse(), nil
	}

	cfg := fastConfig()
	// Without the override this would sleep for minutes.
	cfg.Backoff.Initial = time.Hour
	cfg.Backoff.Max = time.Hour

	start := time.Now()
	out := New(cfg).Run(context.Background(), items, worker)

	assert.Equal(t, StatusSuccess, out[items[0].Key].Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunConcurrencyCeiling(t *testing.T) {
	items := testItems(30)

	var inFlight, peak atomic.Int32
	worker := func(ctx context.Context, item Item) (*model.RawResponse, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return okResponse(), nil
	}

	cfg := fastConfig()
	cfg.Concurrency = 5
	out := New(cfg).Run(context.Background(), items, worker)

	require.Len(t, out, 30)
	assert.LessOrEqual(t, peak.Load(), int32(5))
}

func TestRunCancellation(t *testing.T) {
	items := testItems(20)

	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	release := make(chan struct{})
	worker := func(ctx context.Context, item Item) (*model.RawResponse, error) {
		started.Add(1)
		<-release
		return okResponse(), nil
	}

	cfg := fastConfig()
	cfg.Concurrency = 2

	var mu sync.Mutex
	var out map[keyvault.Key]Outcome
	done := make(chan struct{})
	go func() {
		defer close(done)
		result := New(cfg).Run(ctx, items, worker)
		mu.Lock()
		out = result
		mu.Unlock()
	}()

	// Let the first two items enter flight, then cancel and let them finish.
	for started.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, out, 20)

	var succeeded, cancelled int
	for _, oc := range out {
		switch oc.Status {
		case StatusSuccess:
			succeeded++
		case StatusCancelled:
			cancelled++
		}
	}
	// In-flight items settle naturally; everything not yet started is
	// reported cancelled, never dropped.
	assert.GreaterOrEqual(t, succeeded, 2)
	assert.Equal(t, 20, succeeded+cancelled)
}

func TestRunProgressCallback(t *testing.T) {
	items := testItems(6)

	var mu sync.Mutex
	var dones []int
	cfg := fastConfig()
	cfg.OnProgress = func(ticker string, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 6, total)
		dones = append(dones, done)
	}

	worker := func(ctx context.Context, item Item) (*model.RawResponse, error) {
		return okResponse(), nil
	}

	New(cfg).Run(context.Background(), items, worker)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, dones, 6)
	assert.Contains(t, dones, 6)
}
