package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockerdb/internal/config"
	"dockerdb/internal/container"
	"dockerdb/internal/lifecycle"
)

type stubRuntime struct {
	state   container.State
	runErr  error
	execErr error
	spec    container.Spec
	runs    int
}

func (s *stubRuntime) State(context.Context, string) (container.State, error) { return s.state, nil }
func (s *stubRuntime) ImageAvailable(context.Context, string) error { return nil }

func (s *stubRuntime) Run(_ context.Context, spec container.Spec) (string, error) {
	s.spec = spec
	if s.runErr != nil {
		return "", s.runErr
	}
	s.runs++
	s.state = container.StateRunning
	return "c0ffee", nil
}

func (s *stubRuntime) Start(_ context.Context, name string) error {
	if s.state == container.StateAbsent {
		return fmt.Errorf("start container %q: %w", name, container.ErrNotFound)
	}
	s.state = container.StateRunning
	return nil
}

func (s *stubRuntime) Stop(context.Context, string, time.Duration) error {
	s.state = container.StateStopped
	return nil
}

func (s *stubRuntime) Remove(_ context.Context, name string, _ bool) error {
	if s.state == container.StateAbsent {
		return fmt.Errorf("remove container %q: %w", name, container.ErrNotFound)
	}
	s.state = container.StateAbsent
	return nil
}

func (s *stubRuntime) Exec(context.Context, string, []string) (int, error) {
	if s.execErr != nil {
		return -1, s.execErr
	}
	return 0, nil
}

type stubProvisioner struct{ created map[string]bool }

func (p *stubProvisioner) Ensure(_ context.Context, name string) (bool, error) {
	if p.created[name] {
		return false, nil
	}
	p.created[name] = true
	return true, nil
}

type harness struct {
	rt        *stubRuntime
	instances int
	releases  int
	lastCfg   config.Config
}

func newHarness(state container.State) (*harness, *App) {
	h := &harness{rt: &stubRuntime{state: state}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := &stubProvisioner{created: map[string]bool{}}
	factory := func(cfg config.Config) (*lifecycle.Manager, func() error, error) {
		h.instances++
		h.lastCfg = cfg
		release := func() error {
			h.releases++
			return nil
		}
		return lifecycle.NewManager(cfg, h.rt, db, nil, logger), release, nil
	}
	cfg := config.Default().With(config.Overrides{
		Database:  "piccolo_app",
		Readiness: config.Readiness{Interval: time.Millisecond, MaxAttempts: 2},
	})
	return h, New(cfg, factory, logger)
}

func run(t *testing.T, app *App, name string, opts Options) (Result, error) {
	t.Helper()
	cmd, ok := app.Lookup(name)
	require.True(t, ok, "command %q registered", name)
	return cmd.Run(context.Background(), opts)
}

func TestAppCommands(t *testing.T) {
	_, app := newHarness(container.StateAbsent)
	assert.Equal(t, "dockerdb", app.Name)

	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"create", "destroy", "start", "stop", "status"}, names)

	_, ok := app.Lookup("migrate")
	assert.False(t, ok)
}

func TestCreateReturnsNames(t *testing.T) {
	h, app := newHarness(container.StateAbsent)

	res, err := run(t, app, "create", Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{ContainerName: "piccolo_postgres_7677f8bd", DatabaseName: "piccolo_app"}, res)
	assert.Equal(t, 1, h.instances)
	assert.Equal(t, 1, h.releases)
	assert.False(t, h.rt.spec.AutoRemove)
}

func TestCreateAutoRemoveFlag(t *testing.T) {
	h, app := newHarness(container.StateAbsent)
	remove := true

	_, err := run(t, app, "create", Options{AutoRemove: &remove})
	require.NoError(t, err)
	assert.True(t, h.rt.spec.AutoRemove)
	assert.True(t, h.lastCfg.AutoRemove)
}

func TestCreateRecoverableErrorsReturnEmpty(t *testing.T) {
	for _, runErr := range []error{container.ErrConflict, container.ErrResourceBusy} {
		t.Run(runErr.Error(), func(t *testing.T) {
			h, app := newHarness(container.StateAbsent)
			h.rt.runErr = fmt.Errorf("create container: %w", runErr)

			res, err := run(t, app, "create", Options{})
			require.NoError(t, err)
			assert.Equal(t, Result{}, res)
			assert.Equal(t, 1, h.releases)
		})
	}
}

func TestCreateConflictAfterStartPropagates(t *testing.T) {
	h, app := newHarness(container.StateAbsent)
	h.rt.execErr = fmt.Errorf("exec in container %q: %w", "piccolo_postgres_7677f8bd", container.ErrConflict)

	res, err := run(t, app, "create", Options{})
	require.Error(t, err, "a container that died before it was ready is not a name conflict")
	assert.ErrorIs(t, err, container.ErrConflict)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 1, h.rt.runs)
	assert.Equal(t, 1, h.releases)
}

func TestCreateUnhandledErrorPropagates(t *testing.T) {
	h, app := newHarness(container.StateAbsent)
	h.rt.runErr = &container.RuntimeError{Op: "create container", Status: 400, Err: errors.New("invalid reference format")}

	_, err := run(t, app, "create", Options{})
	var rtErr *container.RuntimeError
	assert.ErrorAs(t, err, &rtErr)
}

func TestEachCommandGetsFreshManager(t *testing.T) {
	h, app := newHarness(container.StateAbsent)

	for _, name := range []string{"create", "stop", "start", "status", "destroy", "destroy"} {
		_, err := run(t, app, name, Options{})
		require.NoError(t, err, name)
	}
	assert.Equal(t, 6, h.instances)
	assert.Equal(t, 6, h.releases)
	assert.Equal(t, container.StateAbsent, h.rt.state)
}

func TestStartMissingContainerFails(t *testing.T) {
	_, app := newHarness(container.StateAbsent)

	_, err := run(t, app, "start", Options{})
	assert.ErrorIs(t, err, container.ErrNotFound)
}

func TestStatusReportsState(t *testing.T) {
	_, app := newHarness(container.StateStopped)

	res, err := run(t, app, "status", Options{})
	require.NoError(t, err)
	assert.Equal(t, "stopped", res.State)
	assert.Equal(t, "piccolo_postgres_7677f8bd", res.ContainerName)
}

func TestFactoryError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	boom := errors.New("cannot connect to the Docker daemon")
	app := New(config.Default(), func(config.Config) (*lifecycle.Manager, func() error, error) {
		return nil, nil, boom
	}, logger)

	_, err := run(t, app, "destroy", Options{})
	assert.ErrorIs(t, err, boom)
}
