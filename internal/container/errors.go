package container

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/docker/docker/errdefs"
)

var (
	ErrNotFound      = errors.New("container not found")
	ErrConflict      = errors.New("conflict with existing container")
	ErrResourceBusy  = errors.New("host port already allocated")
	ErrImageNotFound = errors.New("image not available locally")
)

// RuntimeError is a runtime failure dockerdb has no specific handling for.
type RuntimeError struct {
	Op     string
	Target string
	Status int
	Err    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Target, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

const (
	opList    = "list containers"
	opImage   = "inspect image"
	opCreate  = "create container"
	opStart   = "start container"
	opStop    = "stop container"
	opRemove  = "remove container"
	opExec    = "exec in container"
	opInspect = "inspect exec"
)

// statusOf maps an Engine API error to the HTTP status class it was raised with.
func statusOf(err error) int {
	switch {
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsConflict(err):
		return http.StatusConflict
	case errdefs.IsSystem(err):
		return http.StatusInternalServerError
	default:
		return 0
	}
}

// classify converts an Engine API error into one of the sentinel errors,
// or a *RuntimeError when no rule applies.
func classify(op, target string, err error) error {
	if err == nil {
		return nil
	}

	status := statusOf(err)
	switch status {
	case http.StatusNotFound:
		if op == opImage {
			return fmt.Errorf("%s %q: %w: %w", op, target, ErrImageNotFound, err)
		}
		return fmt.Errorf("%s %q: %w: %w", op, target, ErrNotFound, err)
	case http.StatusConflict:
		return fmt.Errorf("%s %q: %w: %w", op, target, ErrConflict, err)
	case http.StatusInternalServerError:
		// The engine reports a taken host port as a server error while
		// creating or starting a container.
		if op == opCreate || op == opStart {
			return fmt.Errorf("%s %q: %w: %w", op, target, ErrResourceBusy, err)
		}
		return &RuntimeError{Op: op, Target: target, Status: status, Err: err}
	default:
		return &RuntimeError{Op: op, Target: target, Status: status, Err: err}
	}
}
