package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dockerdb/internal/events"
)

// ErrReadinessTimeout is returned when the engine never reports ready within
// the configured number of probes.
var ErrReadinessTimeout = errors.New("database engine did not become ready")

// readinessProbe returns the command run inside the container to check
// whether the engine accepts TCP connections. The image's init server only
// listens on the Unix socket, so a socket probe can pass before the real
// server is up.
func (m *Manager) readinessProbe() []string {
	return []string{"pg_isready", "-h", "127.0.0.1", "-p", m.cfg.Port, "-U", m.cfg.User}
}

// WaitReady runs the readiness probe every Readiness.Interval until it
// succeeds, the attempts run out, or ctx is cancelled. A probe that cannot
// be executed at all is returned as an error immediately.
func (m *Manager) WaitReady(ctx context.Context) error {
	interval := m.cfg.Readiness.Interval
	attempts := m.cfg.Readiness.MaxAttempts
	probe := m.readinessProbe()

	m.logger.Info("waiting for postgres to accept connections", "interval", interval, "max_attempts", attempts)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		code, err := m.runtime.Exec(ctx, m.cfg.ContainerName, probe)
		if err != nil {
			return fmt.Errorf("readiness probe: %w", err)
		}
		if code == 0 {
			m.logger.Info("postgres is ready", "attempts", attempt)
			m.emit(events.ReadinessReady, map[string]string{"attempt": strconv.Itoa(attempt)})
			return nil
		}

		m.logger.Info("waiting for postgres to start", "attempt", attempt, "exit_code", code)
		m.emit(events.ReadinessProbe, map[string]string{
			"attempt":   strconv.Itoa(attempt),
			"exit_code": strconv.Itoa(code),
		})
		if attempt == attempts {
			break
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	m.logger.Error("postgres did not become ready", "attempts", attempts)
	m.emit(events.ReadinessTimeout, map[string]string{"attempts": strconv.Itoa(attempts)})
	return fmt.Errorf("%w after %d attempts", ErrReadinessTimeout, attempts)
}
