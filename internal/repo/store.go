package repo

import (
	"context"
	"errors"
	"time"

	"github.com/lijuuu/StakedChallengeService/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Store is transactional CRUD over the challenge tables. Methods called on the Store
// passed to Tx's callback run inside that transaction.
type Store interface {
	Tx(ctx context.Context, fn func(Store) error) error

	// LockChallenge loads a challenge and, where the database supports it, holds its row lock
	// until the surrounding transaction ends.
	LockChallenge(ctx context.Context, id string) (*model.Challenge, error)
	GetChallenge(ctx context.Context, id string) (*model.Challenge, error)
	CreateChallenge(ctx context.Context, c *model.Challenge) error
	SaveChallenge(ctx context.Context, c *model.Challenge) error
	DeleteChallenge(ctx context.Context, id string) error
	ListChallengesByStatus(ctx context.Context, statuses ...model.ChallengeStatus) ([]model.Challenge, error)
	ListUndistributed(ctx context.Context) ([]model.Challenge, error)

	CreateParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, id string) (*model.Participant, error)
	GetParticipantByUser(ctx context.Context, challengeID, userID string) (*model.Participant, error)
	SaveParticipant(ctx context.Context, p *model.Participant) error
	DeleteParticipant(ctx context.Context, id string) error
	ListParticipants(ctx context.Context, challengeID string, activeOnly bool) ([]model.Participant, error)
	SumStakes(ctx context.Context, challengeID string) (int64, error)

	CreateWeeklyRanking(ctx context.Context, r *model.WeeklyRanking) error
	GetWeeklyRanking(ctx context.Context, challengeID string, week int) (*model.WeeklyRanking, error)
	DeleteWeeklyRanking(ctx context.Context, challengeID string, week int) error
	ListWeeklyRankings(ctx context.Context, challengeID string) ([]model.WeeklyRanking, error)

	CreateTaskCompletion(ctx context.Context, tc *model.TaskCompletion) error
	DeleteTaskCompletion(ctx context.Context, id string) error
	CountCompletions(ctx context.Context, participantID string, from, to time.Time) (int, error)

	CreatePayouts(ctx context.Context, payouts []model.Payout) error
	DeletePayouts(ctx context.Context, challengeID string) error
	ListPayouts(ctx context.Context, challengeID string) ([]model.Payout, error)
}
