// Package healthgate implements the bounded post-start poll loop: start the
// topology, poll every service's state up to a fixed number of rounds, and
// tear everything down no matter how the run ends.
package healthgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// teardownTimeout bounds the Stop call issued on every exit path. It uses a
// fresh context so teardown still runs when the caller's context is gone.
const teardownTimeout = 2 * time.Minute

// Runtime is the surface the gate needs from a container runtime. Stop must
// be idempotent; the gate calls it on every path.
type Runtime interface {
	Start(ctx context.Context) error
	Status(ctx context.Context, service string) (ServiceState, error)
	LogTail(ctx context.Context, service string, lines int) (string, error)
	Stop(ctx context.Context) error
}

// ServiceState is one service's observed state in a poll round.
type ServiceState struct {
	// Service is the service name.
	Service string
	// Running reports whether the container is up (and healthy, when the
	// image defines a healthcheck).
	Running bool
	// Detail is the raw state for diagnostics, e.g. "exited (code 1)".
	Detail string
}

// Options tunes the poll loop.
type Options struct {
	// PollInterval is the delay between rounds; never applied after the
	// final round.
	PollInterval time.Duration
	// MaxAttempts is the exact number of rounds before a timeout. Zero
	// times out immediately after startup.
	MaxAttempts int
	// LogTailLines is how many log lines to capture per unhealthy service
	// when the gate times out.
	LogTailLines int
}

// DefaultOptions returns the stock poll parameters.
func DefaultOptions() Options {
	return Options{
		PollInterval: 2 * time.Second,
		MaxAttempts:  30,
		LogTailLines: 20,
	}
}

// ServiceVerdict is the per-service outcome of a gate run.
type ServiceVerdict struct {
	Service string
	Healthy bool
	Detail  string
	// LogTail carries captured log output for unhealthy services on
	// timeout; empty otherwise.
	LogTail string
}

// Verdict is the aggregate outcome of a passing gate run.
type Verdict struct {
	// Attempts is the poll round in which every service was healthy.
	Attempts int
	// Services holds the per-service states from that round.
	Services []ServiceVerdict
}

// TimeoutError reports an exhausted poll budget with per-service diagnostics.
type TimeoutError struct {
	Attempts int
	Services []ServiceVerdict
}

// Error implements error.
func (e *TimeoutError) Error() string {
	var pending []string
	for _, s := range e.Services {
		if !s.Healthy {
			pending = append(pending, fmt.Sprintf("%s (%s)", s.Service, s.Detail))
		}
	}
	if len(pending) == 0 {
		return fmt.Sprintf("health gate timed out after %d poll rounds", e.Attempts)
	}
	return fmt.Sprintf("health gate timed out after %d poll rounds, unhealthy: %s",
		e.Attempts, strings.Join(pending, ", "))
}

// IsTimeoutError reports whether err wraps a TimeoutError.
func IsTimeoutError(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// AwaitHealthy starts the runtime and polls until every service reports
// running in the same round, or the attempt budget is exhausted. The verdict
// is Healthy only for a full all-services round; a timeout carries log-tail
// diagnostics for every service still unhealthy. Teardown runs exactly once
// on every path, including start failures and context cancellation.
func AwaitHealthy(ctx context.Context, logger *slog.Logger, rt Runtime, services []string, opts Options) (verdict Verdict, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LogTailLines <= 0 {
		opts.LogTailLines = DefaultOptions().LogTailLines
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if serr := rt.Stop(stopCtx); serr != nil {
			logger.Error("teardown failed", "error", serr)
			if err == nil {
				err = fmt.Errorf("teardown: %w", serr)
			}
		}
	}()

	if startErr := rt.Start(ctx); startErr != nil {
		return Verdict{}, fmt.Errorf("start services: %w", startErr)
	}

	logger.Info("health gate started",
		"services", services,
		"max_attempts", opts.MaxAttempts,
		"poll_interval", opts.PollInterval,
	)

	var last []ServiceState
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		last = pollRound(ctx, rt, services)
		if ctx.Err() != nil {
			return Verdict{}, fmt.Errorf("health polling interrupted: %w", ctx.Err())
		}

		if allRunning(last) {
			logger.Info("all services healthy", "attempt", attempt)
			return Verdict{Attempts: attempt, Services: toVerdicts(last, nil)}, nil
		}
		logger.Debug("poll round incomplete", "attempt", attempt, "pending", pendingNames(last))

		if attempt < opts.MaxAttempts {
			select {
			case <-ctx.Done():
				return Verdict{}, fmt.Errorf("health polling interrupted: %w", ctx.Err())
			case <-time.After(opts.PollInterval):
			}
		}
	}

	if last == nil {
		last = unknownStates(services)
	}
	tails := collectLogTails(ctx, rt, last, opts.LogTailLines)
	return Verdict{}, &TimeoutError{Attempts: opts.MaxAttempts, Services: toVerdicts(last, tails)}
}

// pollRound checks every service concurrently. The round always covers all
// services: a failed status probe counts as unhealthy for this round rather
// than aborting the gate.
func pollRound(ctx context.Context, rt Runtime, services []string) []ServiceState {
	states := make([]ServiceState, len(services))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range services {
		i, name := i, name
		g.Go(func() error {
			state, err := rt.Status(gctx, name)
			if err != nil {
				states[i] = ServiceState{Service: name, Detail: fmt.Sprintf("status check failed: %v", err)}
				return nil
			}
			states[i] = state
			return nil
		})
	}
	_ = g.Wait()
	return states
}

func allRunning(states []ServiceState) bool {
	for _, s := range states {
		if !s.Running {
			return false
		}
	}
	return len(states) > 0
}

func pendingNames(states []ServiceState) []string {
	var out []string
	for _, s := range states {
		if !s.Running {
			out = append(out, s.Service)
		}
	}
	return out
}

func unknownStates(services []string) []ServiceState {
	out := make([]ServiceState, len(services))
	for i, name := range services {
		out[i] = ServiceState{Service: name, Detail: "no poll rounds executed"}
	}
	return out
}

func collectLogTails(ctx context.Context, rt Runtime, states []ServiceState, lines int) map[string]string {
	tails := make(map[string]string)
	for _, s := range states {
		if s.Running {
			continue
		}
		tail, err := rt.LogTail(ctx, s.Service, lines)
		if err != nil {
			tail = fmt.Sprintf("log capture failed: %v", err)
		}
		tails[s.Service] = tail
	}
	return tails
}

func toVerdicts(states []ServiceState, tails map[string]string) []ServiceVerdict {
	out := make([]ServiceVerdict, len(states))
	for i, s := range states {
		out[i] = ServiceVerdict{
			Service: s.Service,
			Healthy: s.Running,
			Detail:  s.Detail,
			LogTail: tails[s.Service],
		}
	}
	return out
}
