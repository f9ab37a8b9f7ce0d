package bus

import (
	"fmt"
	"strings"
)

// SubjectContainer is formatted with the container name and the event action.
const SubjectContainer = "dockerdb.container.%s.%s"

// ContainerSubject returns the subject for an event type such as "container.created".
// Dots in the container name would add subject tokens, so they are replaced.
func ContainerSubject(container, eventType string) string {
	name := strings.ReplaceAll(container, ".", "_")
	return fmt.Sprintf(SubjectContainer, name, eventType)
}
