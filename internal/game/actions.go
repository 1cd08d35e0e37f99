package game

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// ActionType 클라이언트가 보내는 요청 타입
type ActionType string

const (
	ActionEnqueue      ActionType = "ENQUEUE"
	ActionCancel       ActionType = "CANCEL"
	ActionReady        ActionType = "READY"
	ActionPaddleUpdate ActionType = "PADDLE_UPDATE"
	ActionScore        ActionType = "SCORE"
	ActionPause        ActionType = "PAUSE"
	ActionResume       ActionType = "RESUME"
	ActionJoin         ActionType = "JOIN"
	ActionOption       ActionType = "OPTION"
)

// Action 클라이언트 요청 ({"type": ..., "payload": ...})
type Action struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EnqueueRequest ENQUEUE 페이로드. rating 이 없으면 저장된 레이팅 사용
type EnqueueRequest struct {
	Rating *int `json:"rating"`
}

// PaddleRequest PADDLE_UPDATE 페이로드
type PaddleRequest struct {
	Position float64 `json:"position"`
}

// ScoreRequest SCORE 페이로드
type ScoreRequest struct {
	Side Side `json:"side"`
}

// JoinRequest JOIN 페이로드
type JoinRequest struct {
	SessionID string `json:"sessionId"`
	Host      bool   `json:"host"`
}

// ErrMalformedAction 페이로드 디코딩 실패 또는 알 수 없는 타입
var ErrMalformedAction = fmt.Errorf("%w: malformed action", ErrInvalidTransition)

// Handle 요청을 해당 연산으로 전달
//
// ENQUEUE 에 rating 이 없으면 레이팅 조회를 비동기로 수행하고 결과를 연결로 직접 응답한다.
func (e *Engine) Handle(ctx context.Context, p *Player, a Action) error {
	switch a.Type {
	case ActionEnqueue:
		var req EnqueueRequest
		if err := decodePayload(a.Payload, &req); err != nil {
			return err
		}
		if req.Rating != nil {
			return e.Enqueue(p, *req.Rating)
		}
		started := e.spawn(func() {
			if err := e.EnqueueFresh(e.ctx, p); err != nil {
				e.logger.Debug("Enqueue rejected", zap.String("playerId", p.ID), zap.Error(err))
				Respond(p.Conn, a.Type, err)
			}
		})
		if !started {
			return ErrQueueClosed
		}
		return nil

	case ActionCancel:
		e.Cancel(p)
		return nil

	case ActionReady:
		return e.Ready(p)

	case ActionPaddleUpdate:
		var req PaddleRequest
		if err := decodePayload(a.Payload, &req); err != nil {
			return err
		}
		return e.PaddleUpdate(p, req.Position)

	case ActionScore:
		var req ScoreRequest
		if err := decodePayload(a.Payload, &req); err != nil {
			return err
		}
		return e.ReportScore(p, req.Side)

	case ActionPause:
		return e.Pause(p)

	case ActionResume:
		return e.Resume(p)

	case ActionJoin:
		var req JoinRequest
		if err := decodePayload(a.Payload, &req); err != nil {
			return err
		}
		return e.Join(p, req.SessionID, req.Host)

	case ActionOption:
		var option map[string]interface{}
		if err := decodePayload(a.Payload, &option); err != nil {
			return err
		}
		return e.SetOption(p, option)

	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedAction, a.Type)
	}
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	return nil
}

// Respond 요청 결과를 연결로 전달. 멱등성 에러는 ACK, 나머지는 REJECTED
func Respond(conn Conn, action ActionType, err error) {
	if err == nil || conn == nil {
		return
	}
	if IsAcknowledged(err) {
		conn.Send(Notification{
			Type:    NotifyAck,
			Payload: AckPayload{Action: action, Code: ErrorCode(err)},
		})
		return
	}
	conn.Send(Notification{
		Type: NotifyRejected,
		Payload: RejectPayload{
			Action:  action,
			Code:    ErrorCode(err),
			Message: err.Error(),
		},
	})
}
