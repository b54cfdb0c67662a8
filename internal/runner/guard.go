package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

// HealthChecker probes the runner. A nil return means ready.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Waker emits the out-of-band signal that asks the supervisor to boot
// the runner. The runner shuts itself down when idle, so an unhealthy
// probe usually means asleep rather than broken.
type Waker interface {
	Wake(ctx context.Context) error
}

// FileWaker signals by dropping a trigger file into a watched
// directory. The external supervisor consumes the file and starts the
// runner; this process never observes the other side.
type FileWaker struct {
	Dir string
}

// Wake writes one trigger artifact. Failure to write is a hard failure
// for the attempt: without the signal the runner will not come up.
func (w FileWaker) Wake(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("wake trigger dir: %w", err)
	}
	name := filepath.Join(w.Dir, "wake-"+uuid.NewString())
	payload := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(name, payload, 0o644); err != nil {
		return fmt.Errorf("write wake trigger: %w", err)
	}
	return nil
}

// Guard ensures the runner is reachable before a job is dispatched.
// It runs synchronously on the calling request and blocks it for up to
// maxAttempts*interval while the runner wakes up.
type Guard struct {
	health      HealthChecker
	waker       Waker
	logger      *infra.Logger
	interval    time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// GuardOptions configures a Guard. Sleep is injectable so the poll loop
// is unit-testable without wall-clock delays.
type GuardOptions struct {
	Health      HealthChecker
	Waker       Waker
	Logger      *infra.Logger
	Interval    time.Duration
	MaxAttempts int
	Sleep       func(ctx context.Context, d time.Duration) error
}

// NewGuard constructs a Guard with the production defaults: one probe
// per second, thirty attempts.
func NewGuard(opts GuardOptions) *Guard {
	g := &Guard{
		health:      opts.Health,
		waker:       opts.Waker,
		logger:      opts.Logger,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		sleep:       opts.Sleep,
	}
	if g.interval <= 0 {
		g.interval = time.Second
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 30
	}
	if g.sleep == nil {
		g.sleep = sleepCtx
	}
	if g.logger == nil {
		discard := zerolog.Nop()
		g.logger = &discard
	}
	return g
}

// Ensure returns nil once the runner answers a health probe. When the
// first probe is healthy no wake signal is emitted. Auth failures are
// terminal immediately: retrying cannot fix a bad credential.
func (g *Guard) Ensure(ctx context.Context) error {
	err := g.health.CheckHealth(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrRunnerAuth) {
		return err
	}
	g.logger.Info().Err(err).Msg("runner unhealthy, emitting wake signal")

	if err := g.waker.Wake(ctx); err != nil {
		return fmt.Errorf("%w: wake signal failed: %v", domain.ErrRunnerUnavailable, err)
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := g.sleep(ctx, g.interval); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrRunnerUnavailable, err)
		}
		err := g.health.CheckHealth(ctx)
		if err == nil {
			g.logger.Info().Int("attempts", attempt).Msg("runner ready")
			return nil
		}
		if errors.Is(err, domain.ErrRunnerAuth) {
			return err
		}
	}
	return fmt.Errorf("%w: not ready after %d attempts", domain.ErrRunnerUnavailable, g.maxAttempts)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
