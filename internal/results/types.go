// Package results keeps the outcome of finished games.
package results

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidResult = errors.New("result requires session and room ids")

// GameResult is one finished game. FinalFEN is the position the game ended in.
type GameResult struct {
	SessionID string
	RoomID    string

	RedID     string
	RedName   string
	BlackID   string
	BlackName string

	Status   string
	Reason   string
	Moves    int
	FinalFEN string

	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}

// Winner returns "red", "black" or "" for a draw or abandoned game.
func (g *GameResult) Winner() string {
	switch g.Status {
	case "RED_WIN":
		return "red"
	case "BLACK_WIN":
		return "black"
	default:
		return ""
	}
}

// RoomStats aggregates the results recorded for one room.
type RoomStats struct {
	RoomID    string `json:"room_id"`
	Games     int    `json:"games"`
	RedWins   int    `json:"red_wins"`
	BlackWins int    `json:"black_wins"`
	Draws     int    `json:"draws"`
	Abandoned int    `json:"abandoned"`
}

func (s *RoomStats) add(status string) {
	s.Games++
	switch status {
	case "RED_WIN":
		s.RedWins++
	case "BLACK_WIN":
		s.BlackWins++
	case "DRAW":
		s.Draws++
	case "ABANDONED":
		s.Abandoned++
	}
}

type Repository interface {
	SaveResult(ctx context.Context, res *GameResult) error
	RoomStats(ctx context.Context, roomID string) (*RoomStats, error)
	RecentByPlayer(ctx context.Context, playerID string, limit int) ([]*GameResult, error)
}
