package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversEvents(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, New(TurnCompleted, map[string]interface{}{"session_id": "s1"})))

	select {
	case ev := <-ch:
		assert.Equal(t, TurnCompleted, ev.EventType())
		assert.Equal(t, "s1", ev.Payload()["session_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

type recordingPublisher struct {
	got []string
	err error
}

func (r *recordingPublisher) Publish(ctx context.Context, event Event) error {
	r.got = append(r.got, event.EventType())
	return r.err
}

func TestFanout(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("down")}
	f := Fanout{a, nil, b}

	err := f.Publish(context.Background(), New(SessionCreated, nil))
	assert.Error(t, err)
	assert.Equal(t, []string{SessionCreated}, a.got)
	assert.Equal(t, []string{SessionCreated}, b.got)
}
