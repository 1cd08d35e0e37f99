package service

import "math"

// ELOService ELO 레이팅 계산 서비스
type ELOService struct {
	minRating int
}

// NewELOService ELO 서비스 생성
func NewELOService() *ELOService {
	return &ELOService{
		minRating: 100, // 레이팅 하한
	}
}

// GetKFactor returns the appropriate K-factor based on the number of matches played.
// - New players (< 10 matches): K=40 for faster convergence
// - Intermediate players (10-20 matches): K=32 for moderate adjustment
// - Established players (> 20 matches): K=24 for rating stability
func (s *ELOService) GetKFactor(matchCount int) float64 {
	if matchCount < 10 {
		return 40.0 // Provisional rating - faster convergence
	} else if matchCount < 20 {
		return 32.0 // Intermediate - moderate adjustment
	}
	return 24.0 // Established rating - stable
}

// NewRating 한 플레이어의 경기 후 레이팅
//
// 두 플레이어의 갱신은 서로 독립적으로 재시도되므로 상대 레이팅은 경기 시작 시점 값을 쓴다.
func (s *ELOService) NewRating(rating, opponentRating, matchCount int, won bool) int {
	result := 0.0
	if won {
		result = 1.0
	}

	expected := s.expectedScore(float64(rating), float64(opponentRating))
	next := int(math.Round(float64(rating) + s.GetKFactor(matchCount)*(result-expected)))

	if next < s.minRating {
		return s.minRating
	}
	return next
}

// expectedScore ELO에 기반한 기대 승률 계산
func (s *ELOService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
