package wsstypes

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/lijuuu/StakedChallengeService/internal/model"
)

// ChallengeReader is the read side the websocket handlers answer from.
type ChallengeReader interface {
	GetChallenge(ctx context.Context, id string) (*model.Challenge, error)
	GetWeeklyRankings(ctx context.Context, challengeID string) ([]model.WeeklyRanking, error)
}

type WsContext struct {
	Ctx         context.Context
	Conn        *websocket.Conn
	ChallengeID string
	Payload     map[string]any
	Reader      ChallengeReader
	// Send writes through the subscriber's serialized writer.
	Send func(v any) error
}

type WsMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

const (
	PING              = "PING"
	PONG              = "PONG"
	REFETCH_CHALLENGE = "REFETCH_CHALLENGE"
	GET_RANKINGS      = "GET_RANKINGS"
	EVENT             = "EVENT"
	ERROR             = "ERROR"
)
