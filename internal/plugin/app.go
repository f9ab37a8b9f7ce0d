// Package plugin exposes the lifecycle operations as the commands of the
// dockerdb app.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dockerdb/internal/config"
	"dockerdb/internal/container"
	"dockerdb/internal/database"
	"dockerdb/internal/events"
	"dockerdb/internal/lifecycle"
)

// AppName is the name the commands are registered under.
const AppName = "dockerdb"

// Options are the optional arguments a command accepts.
type Options struct {
	// AutoRemove overrides the configured auto-remove flag for create.
	AutoRemove *bool
}

// Result is what a command returns. Only create and status fill it in.
type Result struct {
	ContainerName string `json:"container_name,omitempty"`
	DatabaseName  string `json:"database_name,omitempty"`
	State         string `json:"state,omitempty"`
}

// Command is one callable of the app.
type Command struct {
	Name  string
	Short string
	Run   func(ctx context.Context, opts Options) (Result, error)
}

// App groups the dockerdb commands.
type App struct {
	Name     string
	Commands []Command
}

// Lookup returns the command called name.
func (a *App) Lookup(name string) (Command, bool) {
	for _, c := range a.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Factory builds a fresh Manager for one command invocation. The returned
// release func frees whatever the Manager holds and is always non-nil when
// err is nil.
type Factory func(cfg config.Config) (m *lifecycle.Manager, release func() error, err error)

// DockerFactory connects to the local Docker daemon for every invocation.
func DockerFactory(emitter *events.Emitter, logger *slog.Logger) Factory {
	return func(cfg config.Config) (*lifecycle.Manager, func() error, error) {
		docker, err := container.Connect(logger)
		if err != nil {
			return nil, nil, err
		}
		db := database.NewProvisioner(cfg.ConnString(), logger)
		return lifecycle.NewManager(cfg, docker, db, emitter, logger), docker.Close, nil
	}
}

// New builds the dockerdb app over the resolved configuration.
func New(cfg config.Config, factory Factory, logger *slog.Logger) *App {
	a := &adapters{cfg: cfg, factory: factory, logger: logger.With("component", "plugin")}
	return &App{
		Name: AppName,
		Commands: []Command{
			{Name: "create", Short: "Create the container and its database", Run: a.create},
			{Name: "destroy", Short: "Remove the container and everything in it", Run: a.destroy},
			{Name: "start", Short: "Start the stopped container", Run: a.start},
			{Name: "stop", Short: "Stop the running container", Run: a.stop},
			{Name: "status", Short: "Show the container state", Run: a.status},
		},
	}
}

type adapters struct {
	cfg     config.Config
	factory Factory
	logger  *slog.Logger
}

// with instantiates a Manager, runs fn and releases the Manager.
func (a *adapters) with(cfg config.Config, fn func(m *lifecycle.Manager) error) error {
	m, release, err := a.factory(cfg)
	if err != nil {
		return fmt.Errorf("instantiate lifecycle manager: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			a.logger.Warn("release runtime client", "error", err)
		}
	}()
	return fn(m)
}

// create returns the container and database names. A taken name or port at
// creation is already reported with its remediation by the manager, so the
// caller gets an empty result instead of an error. Anything that fails after
// the container was created propagates.
func (a *adapters) create(ctx context.Context, opts Options) (Result, error) {
	cfg := a.cfg.With(config.Overrides{AutoRemove: opts.AutoRemove})

	var res Result
	err := a.with(cfg, func(m *lifecycle.Manager) error {
		if err := m.Create(ctx); err != nil {
			if errors.Is(err, container.ErrConflict) || errors.Is(err, container.ErrResourceBusy) {
				a.logger.Info("create skipped", "reason", err)
				return nil
			}
			return err
		}
		name, err := m.EnsureDatabase(ctx)
		if err != nil {
			return err
		}
		res = Result{ContainerName: cfg.ContainerName, DatabaseName: name}
		return nil
	})
	return res, err
}

func (a *adapters) destroy(ctx context.Context, _ Options) (Result, error) {
	return Result{}, a.with(a.cfg, func(m *lifecycle.Manager) error { return m.Destroy(ctx) })
}

func (a *adapters) start(ctx context.Context, _ Options) (Result, error) {
	return Result{}, a.with(a.cfg, func(m *lifecycle.Manager) error { return m.Start(ctx) })
}

func (a *adapters) stop(ctx context.Context, _ Options) (Result, error) {
	return Result{}, a.with(a.cfg, func(m *lifecycle.Manager) error { return m.Stop(ctx) })
}

func (a *adapters) status(ctx context.Context, _ Options) (Result, error) {
	var res Result
	err := a.with(a.cfg, func(m *lifecycle.Manager) error {
		state, err := m.Status(ctx)
		if err != nil {
			return err
		}
		res = Result{ContainerName: a.cfg.ContainerName, State: state.String()}
		return nil
	})
	return res, err
}
