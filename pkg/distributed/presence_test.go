package distributed

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEncodePresence_StampsInstance(t *testing.T) {
	data, err := encodePresence("node-1", PresenceEvent{PlayerID: "a", Status: "online"})
	require.NoError(t, err)

	var event PresenceEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "node-1", event.InstanceID)
	assert.Equal(t, "a", event.PlayerID)
	assert.False(t, event.Timestamp.IsZero())
}

// exercisePresence 구독이 시작된 뒤 발행한 이벤트가 handler 로 도착하는지 확인
func exercisePresence(t *testing.T, broker PresenceBroker) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan PresenceEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- broker.Subscribe(ctx, func(e PresenceEvent) {
			select {
			case received <- e:
			default:
			}
		})
	}()

	// 구독 확정 전에 발행한 메시지는 유실될 수 있어 반복 발행
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case e := <-received:
			assert.Equal(t, "a", e.PlayerID)
			assert.Equal(t, "in_game", e.Status)
			assert.Equal(t, broker.InstanceID(), e.InstanceID)
			cancel()
			assert.ErrorIs(t, <-done, context.Canceled)
			return
		case <-ticker.C:
			require.NoError(t, broker.Publish(ctx, PresenceEvent{PlayerID: "a", Status: "in_game"}))
		case <-ctx.Done():
			t.Fatal("presence event not received")
		}
	}
}

func TestRedisPresenceBroker_PublishSubscribe(t *testing.T) {
	client := setupRedisClient(t)
	broker := NewRedisPresenceBroker(client, zaptest.NewLogger(t))
	exercisePresence(t, broker)
}

func TestNATSPresenceBroker_PublishSubscribe(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}
	broker, err := NewNATSPresenceBroker(url, zaptest.NewLogger(t))
	if err != nil {
		t.Skip("NATS not available:", err)
	}
	defer broker.Close()

	exercisePresence(t, broker)
}
