package game

import (
	"errors"
	"fmt"
)

// 엔진 에러 분류
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrNotAParticipant     = errors.New("not a participant")
	ErrAlreadyQueued       = errors.New("already queued")
	ErrAlreadyPaused       = errors.New("already paused")
	ErrCollaboratorFailure = errors.New("collaborator failure")
	ErrEngineClosed        = errors.New("engine closed")
)

// 세부 에러 (errors.Is 로 상위 분류 확인 가능)
var (
	ErrSessionNotFound  = fmt.Errorf("session %w", ErrNotFound)
	ErrEntryNotFound    = fmt.Errorf("queue entry %w", ErrNotFound)
	ErrAlreadyInSession = fmt.Errorf("%w: player already in a session", ErrInvalidTransition)
	ErrNotPaused        = fmt.Errorf("%w: side is not paused", ErrInvalidTransition)
	ErrClientScoring    = fmt.Errorf("%w: client reported scores are disabled", ErrInvalidTransition)
	ErrSideTaken        = fmt.Errorf("%w: side already taken", ErrNotAParticipant)
)

// IsAcknowledged 거절이 아닌 ACK로 응답할 멱등성 에러인지 확인
func IsAcknowledged(err error) bool {
	return errors.Is(err, ErrAlreadyQueued) || errors.Is(err, ErrAlreadyPaused)
}

// ErrorCode 클라이언트에 전달할 에러 코드
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyQueued):
		return "ALREADY_QUEUED"
	case errors.Is(err, ErrAlreadyPaused):
		return "ALREADY_PAUSED"
	case errors.Is(err, ErrNotAParticipant):
		return "NOT_A_PARTICIPANT"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrCollaboratorFailure):
		return "COLLABORATOR_FAILURE"
	default:
		return "INTERNAL"
	}
}
