package container

import (
	"context"
	"log/slog"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
)

// EventHandler is called when the watched container changes state.
type EventHandler func(name string, state State, action string)

// Watcher subscribes to Docker events for one container and calls the handler on state changes.
type Watcher struct {
	docker  *Docker
	name    string
	handler EventHandler
	logger  *slog.Logger
}

// NewWatcher creates a watcher for the container called name.
func NewWatcher(docker *Docker, name string, handler EventHandler, logger *slog.Logger) *Watcher {
	return &Watcher{
		docker:  docker,
		name:    name,
		handler: handler,
		logger:  logger.With("component", "docker-watcher", "container", name),
	}
}

// Watch blocks until ctx is cancelled or the event stream fails.
// The current state is reported once before any event arrives.
func (w *Watcher) Watch(ctx context.Context) error {
	state, err := w.docker.State(ctx, w.name)
	if err != nil {
		return err
	}
	w.handler(w.name, state, "observe")

	f := filters.NewArgs()
	f.Add("type", string(events.ContainerEventType))
	f.Add("container", w.name)

	msgCh, errCh := w.docker.api.Events(ctx, events.ListOptions{Filters: f})

	w.logger.Info("watching Docker events")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("docker watcher stopped")
			return nil
		case err := <-errCh:
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("docker events error", "error", err)
			return err
		case msg := <-msgCh:
			w.handleEvent(msg)
		}
	}
}

func (w *Watcher) handleEvent(msg events.Message) {
	if msg.Type != events.ContainerEventType {
		return
	}

	var state State
	switch msg.Action {
	case events.ActionStart, events.ActionUnPause:
		state = StateRunning
	case events.ActionDie, events.ActionStop, events.ActionPause, events.ActionCreate:
		state = StateStopped
	case events.ActionDestroy:
		state = StateAbsent
	default:
		return
	}

	w.logger.Info("container event", "action", msg.Action, "id", shortID(msg.Actor.ID), "state", state)
	w.handler(w.name, state, string(msg.Action))
}
