package game

import "sync"

// Registry 세션 ID -> 세션, 플레이어 ID -> 세션 인덱스
//
// 종료(Ended/Dodged)된 세션은 전이와 같은 락 구간 안에서 제거되므로
// 인덱스에 남아 있는 플레이어는 항상 살아있는 세션을 점유한다.
// 락 순서: 세션 락 -> 레지스트리 락. 레지스트리 락을 잡은 채 세션 락을 잡지 않는다.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byPlayer map[string]*Session
}

// NewRegistry Registry 생성
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]*Session),
	}
}

// Get 세션 ID로 조회
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// LookupPlayer 플레이어가 점유 중인 세션 조회
func (r *Registry) LookupPlayer(playerID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byPlayer[playerID]
	return s, ok
}

// HasPlayer 플레이어가 살아있는 세션에 있는지 확인
func (r *Registry) HasPlayer(playerID string) bool {
	_, ok := r.LookupPlayer(playerID)
	return ok
}

// register 새 세션 등록 (참가자 모두 인덱싱)
func (r *Registry) register(s *Session, playerIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.id]; exists {
		return ErrInvalidTransition
	}
	for _, id := range playerIDs {
		if _, busy := r.byPlayer[id]; busy {
			return ErrAlreadyInSession
		}
	}

	r.sessions[s.id] = s
	for _, id := range playerIDs {
		r.byPlayer[id] = s
	}
	return nil
}

// bind 기존 세션에 플레이어 추가
func (r *Registry) bind(s *Session, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.id]; !ok || cur != s {
		return ErrSessionNotFound
	}
	if other, busy := r.byPlayer[playerID]; busy && other != s {
		return ErrAlreadyInSession
	}
	r.byPlayer[playerID] = s
	return nil
}

// remove 세션과 참가자 인덱스 제거
//
// 호출자는 s.mu 를 잡고 있어야 한다. 같은 ID의 다른 세션 인스턴스는 건드리지 않는다.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.id]; ok && cur == s {
		delete(r.sessions, s.id)
	}
	for _, st := range s.sides {
		if st == nil {
			continue
		}
		if owner, ok := r.byPlayer[st.Player.ID]; ok && owner == s {
			delete(r.byPlayer, st.Player.ID)
		}
	}
}

// Len 등록된 세션 수
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// all 등록된 세션 목록 (종료 처리용)
func (r *Registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
