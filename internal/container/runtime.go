package container

import (
	"context"
	"time"
)

// State is the observed state of a named container. It is derived from the
// runtime on every call and never cached.
type State int

const (
	StateAbsent State = iota
	StateStopped
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Spec describes the container created by Run.
type Spec struct {
	Name          string
	Image         string
	Hostname      string
	HostPort      string
	ContainerPort string
	Env           map[string]string
	Labels        map[string]string
	AutoRemove    bool
}

// Runtime abstracts the container operations dockerdb needs.
// Implemented by Docker; tests substitute fakes.
type Runtime interface {
	State(ctx context.Context, name string) (State, error)
	ImageAvailable(ctx context.Context, ref string) error
	Run(ctx context.Context, spec Spec) (string, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string, gracePeriod time.Duration) error
	Remove(ctx context.Context, name string, force bool) error
	Exec(ctx context.Context, name string, cmd []string) (int, error)
}
