package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/events"
)

func TestProducer_PublishAfterCloseFails(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 4, zap.NewNop())
	p.Start()

	env, err := events.New(events.EventBidPlaced, "test", "", "", events.BidPlacedPayload{})
	require.NoError(t, err)

	p.Close()
	p.Close()
	p.WaitClosed()

	assert.NotPanics(t, func() {
		err = p.Publish(context.Background(), events.TopicBidPlaced, []byte("k"), env)
	})
	assert.ErrorIs(t, err, ErrProducerClosed)
}
