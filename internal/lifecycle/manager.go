// Package lifecycle reconciles the observed state of the dockerdb container
// with the requested operation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dockerdb/internal/config"
	"dockerdb/internal/container"
	"dockerdb/internal/events"
)

// Provisioner creates the application database once the engine is ready.
// Implemented by *database.Provisioner.
type Provisioner interface {
	Ensure(ctx context.Context, name string) (bool, error)
}

// Manager owns every decision about the container. It keeps no state between
// calls: each operation asks the runtime for the current state first.
type Manager struct {
	cfg     config.Config
	runtime container.Runtime
	db      Provisioner
	emitter *events.Emitter
	logger  *slog.Logger
}

// NewManager creates a Manager. emitter may be nil.
func NewManager(cfg config.Config, runtime container.Runtime, db Provisioner, emitter *events.Emitter, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		runtime: runtime,
		db:      db,
		emitter: emitter,
		logger:  logger.With("component", "lifecycle", "container", cfg.ContainerName),
	}
}

// Status reports the current state of the container.
func (m *Manager) Status(ctx context.Context) (container.State, error) {
	state, err := m.runtime.State(ctx, m.cfg.ContainerName)
	if err != nil {
		return state, m.fail("status", err)
	}
	m.emit(events.ContainerState, map[string]string{"state": state.String()})
	return state, nil
}

// Create runs a new container unless one is already running. The image must
// already be present locally.
func (m *Manager) Create(ctx context.Context) error {
	state, err := m.runtime.State(ctx, m.cfg.ContainerName)
	if err != nil {
		return m.fail("create", err)
	}
	if state == container.StateRunning {
		m.logger.Info("container is running, nothing to do")
		m.noop("create")
		return nil
	}

	m.logger.Info("checking image", "image", m.cfg.Image)
	if err := m.runtime.ImageAvailable(ctx, m.cfg.Image); err != nil {
		if errors.Is(err, container.ErrImageNotFound) {
			m.logger.Error("image is not available locally, pull it first", "image", m.cfg.Image)
		}
		return m.fail("create", err)
	}

	m.logger.Info("starting postgres container", "image", m.cfg.Image, "port", m.cfg.Port)
	id, err := m.runtime.Run(ctx, m.spec())
	switch {
	case err == nil:
	case errors.Is(err, container.ErrConflict):
		m.logger.Error("container name is taken, destroy the existing container first with 'dockerdb destroy'")
		return m.fail("create", err)
	case errors.Is(err, container.ErrResourceBusy):
		m.logger.Error("port is already bound, free the port or destroy the existing container first", "port", m.cfg.Port)
		return m.fail("create", err)
	default:
		return m.fail("create", err)
	}

	m.logger.Info("container started", "id", id)
	m.emit(events.ContainerCreated, map[string]string{"id": id, "image": m.cfg.Image, "port": m.cfg.Port})
	return nil
}

// spec builds the container definition from the configuration. Host and
// container port are the same; PGPORT makes the engine listen on it.
func (m *Manager) spec() container.Spec {
	return container.Spec{
		Name:          m.cfg.ContainerName,
		Image:         m.cfg.Image,
		Hostname:      m.cfg.Hostname,
		HostPort:      m.cfg.Port,
		ContainerPort: m.cfg.Port,
		Env: map[string]string{
			"POSTGRES_PASSWORD":         m.cfg.Password,
			"POSTGRES_HOST_AUTH_METHOD": "trust",
			"PGPORT":                    m.cfg.Port,
		},
		Labels:     m.cfg.Labels,
		AutoRemove: m.cfg.AutoRemove,
	}
}

// Start starts a stopped container. A missing container only produces a
// warning here; the runtime's not-found error is what the caller gets.
func (m *Manager) Start(ctx context.Context) error {
	state, err := m.runtime.State(ctx, m.cfg.ContainerName)
	if err != nil {
		return m.fail("start", err)
	}

	switch state {
	case container.StateRunning:
		m.logger.Info("container is running, nothing to do")
		m.noop("start")
		return nil
	case container.StateAbsent:
		m.logger.Warn("container does not exist, did you mean 'dockerdb create'?")
	}

	if err := m.runtime.Start(ctx, m.cfg.ContainerName); err != nil {
		return m.fail("start", err)
	}
	m.logger.Info("container has started")
	m.emit(events.ContainerStarted, nil)
	return nil
}

// Stop stops a running container. Stopping a stopped or missing container
// is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	state, err := m.runtime.State(ctx, m.cfg.ContainerName)
	if err != nil {
		return m.fail("stop", err)
	}

	switch state {
	case container.StateAbsent:
		m.logger.Warn("container does not exist, nothing to stop")
		m.noop("stop")
		return nil
	case container.StateStopped:
		m.logger.Info("container is not running, nothing to do")
		m.noop("stop")
		return nil
	}

	if err := m.runtime.Stop(ctx, m.cfg.ContainerName, m.cfg.StopTimeout); err != nil {
		return m.fail("stop", err)
	}
	m.logger.Info("container has stopped")
	m.emit(events.ContainerStopped, nil)
	return nil
}

// Destroy force-removes the container. A container that is already gone,
// including one removed by the runtime because of auto-remove, is not an error.
func (m *Manager) Destroy(ctx context.Context) error {
	err := m.runtime.Remove(ctx, m.cfg.ContainerName, true)
	switch {
	case err == nil:
		m.logger.Info("container is destroyed")
		m.emit(events.ContainerDestroyed, nil)
		return nil
	case errors.Is(err, container.ErrNotFound):
		m.logger.Warn("container does not exist, nothing to destroy")
		m.noop("destroy")
		return nil
	default:
		return m.fail("destroy", err)
	}
}

// EnsureDatabase waits for the engine to accept connections and creates the
// configured database if it does not exist. It returns the database name.
func (m *Manager) EnsureDatabase(ctx context.Context) (string, error) {
	name := m.cfg.Database
	if err := config.ValidateDatabase(name); err != nil {
		m.logger.Error("refusing to create database", "error", err)
		return "", err
	}

	if err := m.WaitReady(ctx); err != nil {
		return "", m.fail("ensure_database", err)
	}

	created, err := m.db.Ensure(ctx, name)
	if err != nil {
		return "", m.fail("ensure_database", fmt.Errorf("ensure database %q: %w", name, err))
	}
	if created {
		m.emit(events.DatabaseCreated, map[string]string{"database": name})
	} else {
		m.logger.Info("database exists, nothing to do", "database", name)
		m.emit(events.DatabaseExists, map[string]string{"database": name})
	}
	return name, nil
}

func (m *Manager) fail(op string, err error) error {
	m.emit(events.OperationFailed, map[string]string{"operation": op, "error": err.Error()})
	return err
}

func (m *Manager) noop(op string) {
	m.emit(events.ContainerNoop, map[string]string{"operation": op})
}

func (m *Manager) emit(eventType string, fields map[string]string) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(events.Event{
		Type:      eventType,
		Container: m.cfg.ContainerName,
		Fields:    fields,
	})
}
