package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PresenceChannel 접속 상태 이벤트 채널/서브젝트 이름
const PresenceChannel = "presence.events"

// PresenceEvent 플레이어 접속 상태 변경 이벤트
type PresenceEvent struct {
	PlayerID   string    `json:"player_id"`
	Status     string    `json:"status"` // online, in_game, offline
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// PresenceBroker 인스턴스 간 접속 상태 전파
type PresenceBroker interface {
	Publish(ctx context.Context, event PresenceEvent) error
	// Subscribe ctx 가 끝날 때까지 이벤트를 handler 로 전달 (블로킹)
	Subscribe(ctx context.Context, handler func(PresenceEvent)) error
	InstanceID() string
	Close() error
}

func encodePresence(instanceID string, event PresenceEvent) ([]byte, error) {
	event.InstanceID = instanceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal presence event: %w", err)
	}
	return data, nil
}

// RedisPresenceBroker Redis Pub/Sub 기반
type RedisPresenceBroker struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.Logger
}

// NewRedisPresenceBroker Redis 브로커 생성. client 는 호출자가 소유한다
func NewRedisPresenceBroker(client *redis.Client, logger *zap.Logger) *RedisPresenceBroker {
	return &RedisPresenceBroker{
		client:     client,
		channel:    PresenceChannel,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

func (b *RedisPresenceBroker) InstanceID() string { return b.instanceID }

// Publish 이벤트 발행
func (b *RedisPresenceBroker) Publish(ctx context.Context, event PresenceEvent) error {
	data, err := encodePresence(b.instanceID, event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}
	return nil
}

// Subscribe 이벤트 수신 루프
func (b *RedisPresenceBroker) Subscribe(ctx context.Context, handler func(PresenceEvent)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// 구독 확인
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	b.logger.Info("Presence subscription started",
		zap.String("instance_id", b.instanceID),
		zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event PresenceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("Failed to unmarshal presence event", zap.Error(err))
				continue
			}
			handler(event)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close client 는 닫지 않는다
func (b *RedisPresenceBroker) Close() error { return nil }

// NATSPresenceBroker NATS core pub/sub 기반
type NATSPresenceBroker struct {
	conn       *nats.Conn
	subject    string
	instanceID string
	logger     *zap.Logger
}

// NewNATSPresenceBroker NATS 서버에 연결
func NewNATSPresenceBroker(url string, logger *zap.Logger) (*NATSPresenceBroker, error) {
	instanceID := uuid.New().String()
	conn, err := nats.Connect(
		url,
		nats.Name("presence-"+instanceID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPresenceBroker{
		conn:       conn,
		subject:    PresenceChannel,
		instanceID: instanceID,
		logger:     logger,
	}, nil
}

func (b *NATSPresenceBroker) InstanceID() string { return b.instanceID }

// Publish 이벤트 발행
func (b *NATSPresenceBroker) Publish(ctx context.Context, event PresenceEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodePresence(b.instanceID, event)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}
	return nil
}

// Subscribe 이벤트 수신. ctx 가 끝나면 구독 해제
func (b *NATSPresenceBroker) Subscribe(ctx context.Context, handler func(PresenceEvent)) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		var event PresenceEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error("Failed to unmarshal presence event", zap.Error(err))
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	b.logger.Info("Presence subscription started",
		zap.String("instance_id", b.instanceID),
		zap.String("subject", b.subject))

	<-ctx.Done()
	return ctx.Err()
}

// Close 남은 메시지를 보낸 뒤 연결 종료
func (b *NATSPresenceBroker) Close() error {
	return b.conn.Drain()
}
