package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventDecisionCompleted, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("delivery failed")
	})
	d.Subscribe(EventDecisionCompleted, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.RequestID)
		return nil
	})
	d.Subscribe(EventDecisionNeedsHuman, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventDecisionCompleted, RequestID: "r1"})
	assert.ErrorContains(t, err, "delivery failed")
	assert.Equal(t, []string{"first", "second:r1"}, calls)
}
