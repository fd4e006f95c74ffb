package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"murmur/internal/logging"
	"murmur/internal/services"
)

// ErrUnknownBackend indicates a forced backend name that matches no
// registered backend.
var ErrUnknownBackend = errors.New("unknown transcription backend")

// Attempt records one backend's outcome during a dispatch.
type Attempt struct {
	Backend     string
	Err         error
	Unavailable bool
}

// ExhaustedError reports that every eligible backend was tried without a
// successful transcription.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		verdict := "failed"
		if attempt.Unavailable {
			verdict = "unavailable"
		}
		parts = append(parts, fmt.Sprintf("%s %s: %v", attempt.Backend, verdict, attempt.Err))
	}
	if len(parts) == 0 {
		return "no transcription backends registered"
	}
	return "all transcription backends exhausted: " + strings.Join(parts, "; ")
}

// Options tunes router behavior.
type Options struct {
	// ForceBackend pins dispatch to one backend by name and disables
	// failover. Empty means normal priority-order failover.
	ForceBackend string
	// ProbeTimeout bounds each availability probe.
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Router dispatches transcription jobs across backends in priority order.
type Router struct {
	backends     []Backend
	force        string
	probeTimeout time.Duration
	logger       *slog.Logger
}

const defaultProbeTimeout = 10 * time.Second

// New builds a router over backends in priority order (first is most
// preferred).
func New(backends []Backend, opts Options) (*Router, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one transcription backend is required")
	}
	force := strings.TrimSpace(opts.ForceBackend)
	if force != "" && !hasBackend(backends, force) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, force)
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Router{
		backends:     backends,
		force:        force,
		probeTimeout: probeTimeout,
		logger:       logging.WithComponent(logger, "router"),
	}, nil
}

// Forced returns the pinned backend name, empty when failover is active.
func (r *Router) Forced() string {
	return r.force
}

// Transcribe dispatches the request to the first backend that is available
// and succeeds. With a forced backend there is no failover: the forced
// backend's failure is the request's failure.
func (r *Router) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if r.force != "" {
		backend := r.findBackend(r.force)
		result, attempt := r.tryBackend(ctx, backend, req)
		if attempt == nil {
			return result, nil
		}
		if attempt.Unavailable {
			return nil, services.Wrap(services.ErrTransient, "transcribe", "probe",
				fmt.Sprintf("forced backend %s is unavailable", r.force), attempt.Err)
		}
		return nil, attempt.Err
	}

	attempts := make([]Attempt, 0, len(r.backends))
	for _, backend := range r.backends {
		result, attempt := r.tryBackend(ctx, backend, req)
		if attempt == nil {
			return result, nil
		}
		attempts = append(attempts, *attempt)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ExhaustedError{Attempts: attempts}
}

// tryBackend probes then transcribes on one backend. A nil attempt means
// success.
func (r *Router) tryBackend(ctx context.Context, backend Backend, req Request) (*Result, *Attempt) {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	err := backend.Available(probeCtx)
	cancel()
	if err != nil {
		r.logger.Info("backend unavailable",
			logging.String(logging.FieldBackend, backend.Name()),
			logging.Error(err))
		return nil, &Attempt{Backend: backend.Name(), Err: err, Unavailable: true}
	}

	start := time.Now()
	result, err := backend.Transcribe(ctx, req)
	if err != nil {
		r.logger.Warn("backend transcription failed",
			logging.String(logging.FieldBackend, backend.Name()),
			logging.Duration("elapsed", time.Since(start)),
			logging.Error(err))
		return nil, &Attempt{Backend: backend.Name(), Err: err}
	}
	result.Backend = backend.Name()
	if result.Elapsed == 0 {
		result.Elapsed = time.Since(start)
	}
	r.logger.Info("transcription complete",
		logging.String(logging.FieldBackend, backend.Name()),
		logging.Duration("elapsed", result.Elapsed))
	return result, nil
}

// Status probes every backend and reports availability. Used by preflight
// checks and the status command.
func (r *Router) Status(ctx context.Context) []BackendStatus {
	statuses := make([]BackendStatus, 0, len(r.backends))
	for _, backend := range r.backends {
		probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
		err := backend.Available(probeCtx)
		cancel()
		status := BackendStatus{
			Name:      backend.Name(),
			Available: err == nil,
			Forced:    backend.Name() == r.force,
		}
		if err != nil {
			status.Detail = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (r *Router) findBackend(name string) Backend {
	for _, backend := range r.backends {
		if backend.Name() == name {
			return backend
		}
	}
	return nil
}

func hasBackend(backends []Backend, name string) bool {
	for _, backend := range backends {
		if backend.Name() == name {
			return true
		}
	}
	return false
}
