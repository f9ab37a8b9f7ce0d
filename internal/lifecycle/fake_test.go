package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"dockerdb/internal/config"
	"dockerdb/internal/container"
	"dockerdb/internal/events"
)

// fakeRuntime models one named container the way the Docker engine treats it.
type fakeRuntime struct {
	state  container.State
	images map[string]bool
	runErr error

	// probes are the exit codes returned by successive Exec calls; once
	// exhausted every probe succeeds.
	probes  []int
	execErr error

	calls    []string
	runs     int
	execs    int
	lastSpec container.Spec
}

func newFakeRuntime(state container.State) *fakeRuntime {
	return &fakeRuntime{
		state:  state,
		images: map[string]bool{"postgres:latest": true},
	}
}

func (f *fakeRuntime) State(_ context.Context, _ string) (container.State, error) {
	f.calls = append(f.calls, "state")
	return f.state, nil
}

func (f *fakeRuntime) ImageAvailable(_ context.Context, ref string) error {
	f.calls = append(f.calls, "image")
	if !f.images[ref] {
		return fmt.Errorf("inspect image %q: %w", ref, container.ErrImageNotFound)
	}
	return nil
}

func (f *fakeRuntime) Run(_ context.Context, spec container.Spec) (string, error) {
	f.calls = append(f.calls, "run")
	f.lastSpec = spec
	if f.runErr != nil {
		return "", f.runErr
	}
	if f.state != container.StateAbsent {
		return "", fmt.Errorf("create container %q: %w", spec.Name, container.ErrConflict)
	}
	f.runs++
	f.state = container.StateRunning
	return "4f1c2a9e0b7d", nil
}

func (f *fakeRuntime) Start(_ context.Context, name string) error {
	f.calls = append(f.calls, "start")
	if f.state == container.StateAbsent {
		return fmt.Errorf("start container %q: %w", name, container.ErrNotFound)
	}
	f.state = container.StateRunning
	return nil
}

func (f *fakeRuntime) Stop(_ context.Context, name string, _ time.Duration) error {
	f.calls = append(f.calls, "stop")
	if f.state == container.StateAbsent {
		return fmt.Errorf("stop container %q: %w", name, container.ErrNotFound)
	}
	f.state = container.StateStopped
	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, name string, _ bool) error {
	f.calls = append(f.calls, "remove")
	if f.state == container.StateAbsent {
		return fmt.Errorf("remove container %q: %w", name, container.ErrNotFound)
	}
	f.state = container.StateAbsent
	return nil
}

func (f *fakeRuntime) Exec(_ context.Context, name string, _ []string) (int, error) {
	f.calls = append(f.calls, "exec")
	if f.execErr != nil {
		return -1, f.execErr
	}
	if f.state != container.StateRunning {
		return -1, fmt.Errorf("exec in container %q: %w", name, container.ErrConflict)
	}
	f.execs++
	if f.execs <= len(f.probes) {
		return f.probes[f.execs-1], nil
	}
	return 0, nil
}

// fakeProvisioner is an in-memory catalog that records how many probes had
// run by the time a connection was opened.
type fakeProvisioner struct {
	runtime      *fakeRuntime
	databases    map[string]bool
	creates      int
	connects     int
	execsAtFirst int
	err          error
}

func newFakeProvisioner(rt *fakeRuntime) *fakeProvisioner {
	return &fakeProvisioner{runtime: rt, databases: map[string]bool{"postgres": true}, execsAtFirst: -1}
}

func (p *fakeProvisioner) Ensure(_ context.Context, name string) (bool, error) {
	p.connects++
	if p.execsAtFirst < 0 {
		p.execsAtFirst = p.runtime.execs
	}
	if p.err != nil {
		return false, p.err
	}
	if p.databases[name] {
		return false, nil
	}
	p.databases[name] = true
	p.creates++
	return true, nil
}

func testConfig() config.Config {
	return config.Default().With(config.Overrides{
		Database:      "piccolo_app",
		Password:      "s3cret",
		Port:          "45432",
		ContainerName: "piccolo_postgres_test",
		Readiness:     config.Readiness{Interval: time.Millisecond, MaxAttempts: 5},
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(cfg config.Config, rt *fakeRuntime) (*Manager, *fakeProvisioner, *[]events.Event) {
	db := newFakeProvisioner(rt)
	emitter := events.NewEmitter(testLogger())
	var got []events.Event
	emitter.OnEvent(func(ev events.Event) { got = append(got, ev) })
	return NewManager(cfg, rt, db, emitter, testLogger()), db, &got
}

func eventTypes(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}
