package models

import "time"

// UserStatus 접속 상태 (users.status)
type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusInGame  UserStatus = "in_game"
	UserStatusOffline UserStatus = "offline"
)

type User struct {
	ID         string     `json:"id" db:"id"`
	Username   string     `json:"username" db:"username"`
	Rating     int        `json:"rating" db:"rating"`
	Wins       int        `json:"wins" db:"wins"`
	Losses     int        `json:"losses" db:"losses"`
	MatchCount int        `json:"matchCount" db:"match_count"`
	Status     UserStatus `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// DefaultRating 신규 사용자 레이팅
const DefaultRating = 1000
