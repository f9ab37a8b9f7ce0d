package container

import (
	"context"
	"regexp"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
)

// State looks the container up by exact name, including stopped containers.
func (d *Docker) State(ctx context.Context, name string) (State, error) {
	f := filters.NewArgs(filters.Arg("name", "^/"+regexp.QuoteMeta(name)+"$"))

	containers, err := d.api.ContainerList(ctx, container.ListOptions{
		All:     true, // include stopped
		Filters: f,
	})
	if err != nil {
		return StateAbsent, classify(opList, name, err)
	}

	for _, c := range containers {
		if !hasName(c.Names, name) {
			continue
		}
		d.logger.Debug("found container", "container", name, "id", shortID(c.ID), "state", c.State)
		if c.State == "running" {
			return StateRunning, nil
		}
		return StateStopped, nil
	}
	return StateAbsent, nil
}

// hasName reports whether one of the engine's names matches. Docker prefixes names with /.
func hasName(names []string, want string) bool {
	for _, n := range names {
		if len(n) > 0 && n[0] == '/' {
			n = n[1:]
		}
		if n == want {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
