package brightdata

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultPollInitial = 10 * time.Second
	defaultPollCap     = 60 * time.Second
	defaultPollTimeout = 30 * time.Minute

	// statusPollBurst caps how many status calls may fire back to back;
	// the sustained rate is one per pollInitial regardless of backoff resets.
	statusPollBurst = 2
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		initial: defaultPollInitial,
		cap:     defaultPollCap,
		timeout: defaultPollTimeout,
	}
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.initial = d
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.cap = d
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// WaitForSnapshot polls SnapshotStatus until the job completes, fails, or
// the context expires, then downloads the results. Poll intervals back off
// exponentially up to the cap, and a rate limiter keeps status calls from
// bursting when intervals are configured short.
func WaitForSnapshot(ctx context.Context, client Client, snapshotID string, opts ...PollOption) ([]map[string]any, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(cfg.initial), statusPollBurst)
	interval := cfg.initial

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "brightdata: poll snapshot %s", snapshotID)
		}

		status, err := client.SnapshotStatus(ctx, snapshotID)
		if err != nil {
			return nil, eris.Wrapf(err, "brightdata: poll snapshot %s", snapshotID)
		}

		switch status.Status {
		case "completed":
			return client.SnapshotResults(ctx, snapshotID)
		case "failed":
			if status.Error != "" {
				return nil, eris.Errorf("brightdata: snapshot %s failed: %s", snapshotID, status.Error)
			}
			return nil, eris.Errorf("brightdata: snapshot %s failed", snapshotID)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "brightdata: poll snapshot %s", snapshotID)
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}
