package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/suhwan22/ft-transcendence-backend/internal/game"
	"github.com/suhwan22/ft-transcendence-backend/pkg/ratelimit"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	sendBufferSize = 256
)

// RateLimitedCode 요청 빈도 초과 시 REJECTED 코드
const RateLimitedCode = "RATE_LIMITED"

// Client 플레이어 한 명의 WebSocket 연결. game.Conn 구현
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan game.Notification
	player *game.Player

	limiter *ratelimit.TokenBucket
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ game.Conn = (*Client)(nil)

// NewClient 클라이언트 생성. player.Conn 은 이 클라이언트로 설정된다
func NewClient(hub *Hub, conn *websocket.Conn, player *game.Player) *Client {
	c := &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan game.Notification, sendBufferSize),
		player: player,
		logger: hub.logger.With(zap.String("playerId", player.ID)),
	}
	if hub.cfg.ActionRate > 0 {
		c.limiter = ratelimit.NewTokenBucket(hub.cfg.ActionBurst, hub.cfg.ActionRate)
	}
	player.Conn = c
	return c
}

// ID 연결 식별자
func (c *Client) ID() string {
	return c.id
}

// Player 연결의 플레이어
func (c *Client) Player() *game.Player {
	return c.player
}

// Send 블로킹하지 않는다. 버퍼가 가득 찬 느린 연결은 닫는다
func (c *Client) Send(n game.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- n:
	default:
		c.logger.Warn("Client send channel full, closing connection",
			zap.String("connId", c.id),
			zap.String("type", string(n.Type)))
		c.closed = true
		close(c.send)
	}
}

// close send 채널을 한 번만 닫는다
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump 클라이언트 요청을 엔진으로 전달 (핑/퐁 유지)
func (c *Client) readPump() {
	defer func() {
		// 새 연결로 교체된 경우 엔진에는 알리지 않는다
		if c.hub.unregisterClient(c) {
			c.hub.engine.Disconnect(c.player)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error",
					zap.String("connId", c.id),
					zap.Error(err))
			}
			break
		}

		var action game.Action
		if err := json.Unmarshal(data, &action); err != nil {
			game.Respond(c, "", game.ErrMalformedAction)
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.Send(game.Notification{
				Type: game.NotifyRejected,
				Payload: game.RejectPayload{
					Action:  action.Type,
					Code:    RateLimitedCode,
					Message: "too many actions",
				},
			})
			continue
		}

		err = c.hub.engine.Handle(context.Background(), c.player, action)
		if err != nil {
			c.logger.Debug("Action refused",
				zap.String("action", string(action.Type)),
				zap.Error(err))
		}
		game.Respond(c, action.Type, err)
	}
}

// writePump 알림을 JSON 으로 인코딩해 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case n, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub/Send 가 채널을 닫음
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(n)
			if err != nil {
				c.logger.Error("Failed to marshal notification",
					zap.String("type", string(n.Type)),
					zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message",
					zap.String("connId", c.id),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(h.cfg.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range h.cfg.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs WebSocket 연결 업그레이드 후 엔진에 접속 알림
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, player *game.Player) {
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection",
			zap.String("playerId", player.ID),
			zap.Error(err))
		return
	}

	client := NewClient(h, conn, player)
	if !h.registerClient(client) {
		conn.Close()
		return
	}
	h.engine.Connect(player)

	go client.writePump()
	go client.readPump()
}
