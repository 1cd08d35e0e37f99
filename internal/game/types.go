package game

import (
	"encoding/json"
	"fmt"
)

// Side 세션 내 참가자 위치 (왼쪽/오른쪽)
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// Opponent 반대편 Side
func (s Side) Opponent() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// MarshalJSON "left" / "right" 문자열로 인코딩
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON "left" / "right" 문자열 디코딩
func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	side, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseSide 문자열을 Side로 변환
func ParseSide(raw string) (Side, error) {
	switch raw {
	case "left":
		return SideLeft, nil
	case "right":
		return SideRight, nil
	default:
		return SideLeft, fmt.Errorf("unknown side %q", raw)
	}
}

// Phase 세션 라이프사이클 단계
type Phase string

const (
	PhaseForming   Phase = "forming"
	PhaseReadyWait Phase = "ready_wait"
	PhaseActive    Phase = "active"
	PhasePaused    Phase = "paused"
	PhaseEnded     Phase = "ended"
	PhaseDodged    Phase = "dodged"
)

// Terminal 종료 단계 여부
func (p Phase) Terminal() bool {
	return p == PhaseEnded || p == PhaseDodged
}

// live 플레이어가 점유 중인 것으로 취급되는 단계
func (p Phase) live() bool {
	return !p.Terminal()
}

// PresenceStatus 외부 presence 구독자에게 전달되는 상태
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceInGame  PresenceStatus = "in_game"
	PresenceOffline PresenceStatus = "offline"
)

// NotificationType 클라이언트로 나가는 메시지 타입
type NotificationType string

const (
	NotifyWaiting        NotificationType = "WAITING"
	NotifyMatched        NotificationType = "MATCHED"
	NotifyCancelled      NotificationType = "CANCELLED"
	NotifySessionState   NotificationType = "SESSION_STATE"
	NotifyAnnounce       NotificationType = "ANNOUNCE"
	NotifySimulationTick NotificationType = "SIMULATION_TICK"
	NotifyScoreUpdate    NotificationType = "SCORE_UPDATE"
	NotifyPaused         NotificationType = "PAUSED"
	NotifyResumed        NotificationType = "RESUMED"
	NotifySessionEnded   NotificationType = "SESSION_ENDED"
	NotifyDodged         NotificationType = "DODGED"
	NotifyReload         NotificationType = "RELOAD"
	NotifyAck            NotificationType = "ACK"
	NotifyRejected       NotificationType = "REJECTED"
)

// Notification 엔진이 연결로 보내는 메시지
type Notification struct {
	Type    NotificationType `json:"type"`
	Payload interface{}      `json:"payload"`
}

// SessionView SESSION_STATE / RELOAD 페이로드
type SessionView struct {
	Session *Snapshot `json:"session"`
	Side    *Side     `json:"side"`
}

// ScorePayload SCORE_UPDATE 페이로드
type ScorePayload struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// PausePayload PAUSED / RESUMED 페이로드
type PausePayload struct {
	Side Side `json:"side"`
}

// ResultPayload SESSION_ENDED 페이로드
type ResultPayload struct {
	Score      ScorePayload `json:"score"`
	WinnerSide Side         `json:"winnerSide"`
	Forfeit    bool         `json:"forfeit"`
}

// RejectPayload REJECTED 페이로드
type RejectPayload struct {
	Action  ActionType `json:"action"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

// AckPayload ACK 페이로드
type AckPayload struct {
	Action ActionType `json:"action"`
	Code   string     `json:"code"`
}
