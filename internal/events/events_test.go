package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/drstein77/groceryweb/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	evt := models.ImportEvent{ID: "e1", Imported: 3, Failed: 1, TotalItems: 10, At: at}

	msg, err := message(evt)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "e1", msg.MessageId)
	assert.Equal(t, at, msg.Timestamp)

	var decoded models.ImportEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, evt, decoded)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), models.ImportEvent{}))
	assert.NoError(t, p.Close())
}
