package bus

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"dockerdb/internal/events"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs       []published
	publishErr error
	flushed    bool
	drained    bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func (f *fakeConn) Flush() error { f.flushed = true; return nil }
func (f *fakeConn) Drain() error { f.drained = true; return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestContainerSubject(t *testing.T) {
	tests := []struct {
		container, eventType, want string
	}{
		{"piccolo_pg", "container.created", "dockerdb.container.piccolo_pg.container.created"},
		{"pg.local", "database.created", "dockerdb.container.pg_local.database.created"},
	}
	for _, tt := range tests {
		if got := ContainerSubject(tt.container, tt.eventType); got != tt.want {
			t.Errorf("ContainerSubject(%q, %q) = %q, want %q", tt.container, tt.eventType, got, tt.want)
		}
	}
}

func TestForwardPublishesEnvelope(t *testing.T) {
	nc := &fakeConn{}
	c := newClient(nc, "dockerdb", discardLogger())
	emitter := events.NewEmitter(discardLogger())
	c.Forward(emitter)

	emitter.Emit(events.Event{Type: events.DatabaseCreated, Container: "pg", Fields: map[string]string{"database": "shop"}})

	if len(nc.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(nc.msgs))
	}
	if nc.msgs[0].subject != "dockerdb.container.pg.database.created" {
		t.Errorf("subject = %q", nc.msgs[0].subject)
	}

	env, err := Unmarshal(nc.msgs[0].data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if env.ID == "" || env.Source != "dockerdb" || env.Type != events.DatabaseCreated {
		t.Errorf("envelope = %+v", env)
	}
	if env.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}

	var payload ContainerData
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if payload.Container != "pg" || payload.Fields["database"] != "shop" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestForwardSwallowsPublishErrors(t *testing.T) {
	nc := &fakeConn{publishErr: errors.New("nats: connection closed")}
	c := newClient(nc, "dockerdb", discardLogger())
	emitter := events.NewEmitter(discardLogger())
	c.Forward(emitter)

	emitter.Emit(events.Event{Type: events.ContainerStarted, Container: "pg"}) // must not panic
}

func TestCloseDrains(t *testing.T) {
	nc := &fakeConn{}
	if err := newClient(nc, "dockerdb", discardLogger()).Close(); err != nil {
		t.Fatal(err)
	}
	if !nc.flushed || !nc.drained {
		t.Errorf("flushed=%v drained=%v, want both", nc.flushed, nc.drained)
	}
}

func TestCloseStopsForwarding(t *testing.T) {
	nc := &fakeConn{}
	c := newClient(nc, "dockerdb", discardLogger())
	emitter := events.NewEmitter(discardLogger())
	c.Forward(emitter)

	emitter.Emit(events.Event{Type: events.ContainerStarted, Container: "pg"})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	emitter.Emit(events.Event{Type: events.ContainerStopped, Container: "pg"})

	if len(nc.msgs) != 1 {
		t.Fatalf("published %d messages, want 1 (nothing after Close)", len(nc.msgs))
	}
	if nc.msgs[0].subject != "dockerdb.container.pg.container.started" {
		t.Errorf("subject = %q", nc.msgs[0].subject)
	}
}

func TestNewEnvelopeUniqueIDs(t *testing.T) {
	a, err := NewEnvelope("container.created", "dockerdb", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewEnvelope("container.created", "dockerdb", nil)
	if a.ID == b.ID {
		t.Error("expected unique envelope IDs")
	}
}
