package game

// Conn 플레이어의 실시간 연결 (전송 계층이 소유)
//
// Send 는 블로킹되면 안 된다. 세션 락을 잡은 상태에서 호출된다.
type Conn interface {
	ID() string
	Send(n Notification)
}

// Player 플레이어 핸들
type Player struct {
	ID     string
	Name   string
	Rating int
	Conn   Conn
}

// connID 연결이 없으면 빈 문자열
func (p *Player) connID() string {
	if p == nil || p.Conn == nil {
		return ""
	}
	return p.Conn.ID()
}

func (p *Player) send(n Notification) {
	if p == nil || p.Conn == nil {
		return
	}
	p.Conn.Send(n)
}

// PlayerSummary 상대 정보 페이로드
type PlayerSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

func (p *Player) summary() PlayerSummary {
	return PlayerSummary{ID: p.ID, Name: p.Name, Rating: p.Rating}
}
