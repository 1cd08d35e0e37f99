package game

import (
	"math"
	"time"
)

// Field 경기장 및 공 설정
type Field struct {
	Width        float64 `json:"fieldWidth"`
	Height       float64 `json:"fieldHeight"`
	PaddleHeight float64 `json:"paddleHeight"`
	PaddleWidth  float64 `json:"paddleWidth"`
	PaddleInset  float64 `json:"paddleInset"`
	BallRadius   float64 `json:"ballRadius"`
	BallSpeed    float64 `json:"ballSpeed"`
	MaxBallSpeed float64 `json:"maxBallSpeed"`
}

// DefaultField 기본 Pong 필드
func DefaultField() Field {
	return Field{
		Width:        800,
		Height:       400,
		PaddleHeight: 80,
		PaddleWidth:  12,
		PaddleInset:  20,
		BallRadius:   8,
		BallSpeed:    4,
		MaxBallSpeed: 12,
	}
}

// Vec 2차원 벡터
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SimulationState SIMULATION_TICK 페이로드
type SimulationState struct {
	Ball        Vec        `json:"ball"`
	Velocity    Vec        `json:"velocity"`
	LeftPaddle  float64    `json:"leftPaddle"`
	RightPaddle float64    `json:"rightPaddle"`
	Frozen      bool       `json:"frozen"`
	LastScoreAt *time.Time `json:"lastScoreAt,omitempty"`
}

// Simulation 공/패들 상태. 동시성 보호는 소유한 세션의 락이 담당
type Simulation struct {
	field     Field
	ball      Vec
	vel       Vec
	paddles   [2]float64
	frozen    bool
	serves    int
	lastScore time.Time
}

// NewSimulation 필드 중앙에서 시작하는 시뮬레이션
func NewSimulation(field Field) *Simulation {
	sim := &Simulation{field: field}
	center := (field.Height - field.PaddleHeight) / 2
	sim.paddles = [2]float64{center, center}
	sim.ResetBall(SideLeft)
	return sim
}

// ResetBall 중앙에서 toward 방향으로 서브
func (sim *Simulation) ResetBall(toward Side) {
	f := sim.field
	sim.ball = Vec{X: f.Width / 2, Y: f.Height / 2}

	vx := f.BallSpeed
	if toward == SideLeft {
		vx = -vx
	}
	vy := f.BallSpeed / 2
	if sim.serves%2 == 1 {
		vy = -vy
	}
	sim.serves++
	sim.vel = Vec{X: vx, Y: vy}
}

// SetPaddle 패들 상단 위치 설정 (필드 안으로 보정)
func (sim *Simulation) SetPaddle(side Side, pos float64) {
	maxPos := sim.field.Height - sim.field.PaddleHeight
	if math.IsNaN(pos) || pos < 0 {
		pos = 0
	}
	if pos > maxPos {
		pos = maxPos
	}
	sim.paddles[side] = pos
}

// Paddle 패들 위치
func (sim *Simulation) Paddle(side Side) float64 {
	return sim.paddles[side]
}

// Ball 공 위치
func (sim *Simulation) Ball() Vec {
	return sim.ball
}

// SetFrozen 공 정지/재개
func (sim *Simulation) SetFrozen(frozen bool) {
	sim.frozen = frozen
}

// Frozen 공 정지 여부
func (sim *Simulation) Frozen() bool {
	return sim.frozen
}

// MarkScored 마지막 득점 시각 기록
func (sim *Simulation) MarkScored(at time.Time) {
	sim.lastScore = at
}

// Step 한 스텝 진행. 공이 골라인을 넘으면 득점한 Side 반환
func (sim *Simulation) Step() (Side, bool) {
	if sim.frozen {
		return SideLeft, false
	}

	f := sim.field
	r := f.BallRadius
	prev := sim.ball

	sim.ball.X += sim.vel.X
	sim.ball.Y += sim.vel.Y

	// 위/아래 벽 반사
	if sim.ball.Y-r < 0 {
		sim.ball.Y = r
		sim.vel.Y = -sim.vel.Y
	} else if sim.ball.Y+r > f.Height {
		sim.ball.Y = f.Height - r
		sim.vel.Y = -sim.vel.Y
	}

	leftFace := f.PaddleInset + f.PaddleWidth
	rightFace := f.Width - f.PaddleInset - f.PaddleWidth

	if sim.vel.X < 0 && prev.X-r >= leftFace && sim.ball.X-r < leftFace && sim.hits(SideLeft) {
		sim.ball.X = leftFace + r
		sim.bounce(SideLeft)
	} else if sim.vel.X > 0 && prev.X+r <= rightFace && sim.ball.X+r > rightFace && sim.hits(SideRight) {
		sim.ball.X = rightFace - r
		sim.bounce(SideRight)
	}

	switch {
	case sim.ball.X+r < 0:
		return SideRight, true
	case sim.ball.X-r > f.Width:
		return SideLeft, true
	}
	return SideLeft, false
}

func (sim *Simulation) hits(side Side) bool {
	top := sim.paddles[side] - sim.field.BallRadius
	bottom := sim.paddles[side] + sim.field.PaddleHeight + sim.field.BallRadius
	return sim.ball.Y >= top && sim.ball.Y <= bottom
}

// bounce 패들 중심에서 벗어난 만큼 각도를 주고 약간 가속
func (sim *Simulation) bounce(side Side) {
	f := sim.field
	half := f.PaddleHeight / 2
	offset := (sim.ball.Y - (sim.paddles[side] + half)) / half

	speed := math.Min(math.Abs(sim.vel.X)*1.05, f.MaxBallSpeed)
	if side == SideLeft {
		sim.vel.X = speed
	} else {
		sim.vel.X = -speed
	}
	sim.vel.Y += offset * f.BallSpeed / 2
}

// State 현재 상태 사본
func (sim *Simulation) State() SimulationState {
	state := SimulationState{
		Ball:        sim.ball,
		Velocity:    sim.vel,
		LeftPaddle:  sim.paddles[SideLeft],
		RightPaddle: sim.paddles[SideRight],
		Frozen:      sim.frozen,
	}
	if !sim.lastScore.IsZero() {
		at := sim.lastScore
		state.LastScoreAt = &at
	}
	return state
}
