package websocket

import (
	"context"
	"sync"

	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/pkg/distributed"
	"go.uber.org/zap"
)

// NotifyPresence 다른 플레이어의 접속 상태 변경 알림
const NotifyPresence game.NotificationType = "PRESENCE"

// ActionHandler 연결 이벤트와 요청을 처리하는 게임 엔진
type ActionHandler interface {
	Connect(p *game.Player)
	Disconnect(p *game.Player)
	Handle(ctx context.Context, p *game.Player, a game.Action) error
}

// PresenceSubscriber 접속 상태 이벤트 구독 (distributed.PresenceBroker)
type PresenceSubscriber interface {
	Subscribe(ctx context.Context, handler func(distributed.PresenceEvent)) error
}

// HubConfig 연결 설정
type HubConfig struct {
	ActionRate     int64    // 초당 허용 요청 수. 0 이하면 제한 없음
	ActionBurst    int64    // 순간 허용량
	AllowedOrigins []string // 비어 있으면 모든 origin 허용
}

// Hub 플레이어별 WebSocket 연결 디렉터리
type Hub struct {
	// 플레이어별 연결 저장 (playerID -> *Client)
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast chan game.Notification
	done      chan struct{}

	engine ActionHandler
	cfg    HubConfig
	logger *zap.Logger
}

// NewHub Hub 생성
func NewHub(engine ActionHandler, cfg HubConfig, logger *zap.Logger) *Hub {
	if cfg.ActionBurst <= 0 {
		cfg.ActionBurst = cfg.ActionRate
	}
	return &Hub{
		clients:   make(map[string]*Client),
		broadcast: make(chan game.Notification, 256),
		done:      make(chan struct{}),
		engine:    engine,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run ctx 가 끝날 때까지 브로드캐스트 처리. 종료 시 모든 연결을 닫는다
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case n := <-h.broadcast:
			h.broadcastNotification(n)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// registerClient 같은 플레이어의 기존 연결은 닫는다. Hub 가 종료됐으면 false
func (h *Hub) registerClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return false
	default:
	}

	if old, exists := h.clients[client.player.ID]; exists && old != client {
		old.close()
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("playerId", client.player.ID),
			zap.String("oldConnId", old.id),
			zap.String("connId", client.id))
	}

	h.clients[client.player.ID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("playerId", client.player.ID),
		zap.String("connId", client.id),
		zap.Int("totalClients", len(h.clients)))
	return true
}

// unregisterClient 현재 등록된 연결과 같을 때만 해제하고 true
func (h *Hub) unregisterClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.close()
	current, exists := h.clients[client.player.ID]
	if !exists || current != client {
		return false
	}

	delete(h.clients, client.player.ID)
	h.logger.Info("WebSocket client unregistered",
		zap.String("playerId", client.player.ID),
		zap.String("connId", client.id),
		zap.Int("totalClients", len(h.clients)))
	return true
}

func (h *Hub) broadcastNotification(n game.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		client.Send(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for id, client := range h.clients {
		client.close()
		delete(h.clients, id)
	}
}

// Lookup 플레이어의 현재 연결
func (h *Hub) Lookup(playerID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[playerID]
	return client, ok
}

// Count 연결된 플레이어 수
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 모든 연결로 전송
func (h *Hub) Broadcast(n game.Notification) {
	select {
	case h.broadcast <- n:
	default:
		h.logger.Warn("Broadcast channel full, dropping notification",
			zap.String("type", string(n.Type)))
	}
}

// RelayPresence 브로커의 접속 상태 이벤트를 모든 연결로 전달 (블로킹)
func (h *Hub) RelayPresence(ctx context.Context, sub PresenceSubscriber) error {
	return sub.Subscribe(ctx, func(event distributed.PresenceEvent) {
		h.Broadcast(game.Notification{Type: NotifyPresence, Payload: event})
	})
}
