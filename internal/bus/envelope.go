package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the JSON wrapper for every message dockerdb publishes.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope creates an Envelope with a generated ID and the current time.
func NewEnvelope(eventType, source string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Unmarshal decodes an Envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// ContainerData is the payload for container lifecycle messages.
type ContainerData struct {
	Container string            `json:"container"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Marshal serialises the envelope to JSON bytes.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
