package game

import "time"

// Timer 취소 가능한 타이머 핸들
type Timer interface {
	Stop() bool
}

// Clock 시간 소스 및 타이머 생성 (테스트에서 교체 가능)
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock 실제 시간 기반 Clock
func RealClock() Clock {
	return realClock{}
}
