package model

import (
	"time"
)

type ChallengeStatus string

const (
	StatusUpcoming  ChallengeStatus = "upcoming"
	StatusActive    ChallengeStatus = "active"
	StatusCompleted ChallengeStatus = "completed"
	StatusCancelled ChallengeStatus = "cancelled"
)

// MinActiveParticipants is the participant count at which an upcoming challenge starts,
// and below which an active one can no longer eliminate anybody.
const MinActiveParticipants = 2

type Challenge struct {
	ID                  string          `gorm:"column:id;primaryKey" json:"id"`
	Name                string          `gorm:"column:name" json:"name"`
	Description         string          `gorm:"column:description" json:"description"`
	CreatorID           string          `gorm:"column:creator_id;index" json:"creator_id"`
	CreatorAddress      string          `gorm:"column:creator_address" json:"creator_address"`
	StakeAmount         int64           `gorm:"column:stake_amount" json:"stake_amount"`
	MaxParticipants     int             `gorm:"column:max_participants" json:"max_participants"`
	CurrentParticipants int             `gorm:"column:current_participants" json:"current_participants"`
	PoolAmount          int64           `gorm:"column:pool_amount" json:"pool_amount"`
	Status              ChallengeStatus `gorm:"column:status;index" json:"status"`
	StartTime           time.Time       `gorm:"column:start_time" json:"start_time"`
	EndTime             time.Time       `gorm:"column:end_time" json:"end_time"`
	CurrentWeek         int             `gorm:"column:current_week" json:"current_week"`
	LedgerRef           string          `gorm:"column:ledger_ref" json:"ledger_ref"`
	DistributedAt       *time.Time      `gorm:"column:distributed_at" json:"distributed_at,omitempty"`
	CreatedAt           time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// Joinable reports whether the challenge accepts another participant.
func (c *Challenge) Joinable() bool {
	if c.Status != StatusUpcoming && c.Status != StatusActive {
		return false
	}
	return c.CurrentParticipants < c.MaxParticipants
}

func (c *Challenge) Distributed() bool {
	return c.DistributedAt != nil
}

type Participant struct {
	ID               string     `gorm:"column:id;primaryKey" json:"id"`
	ChallengeID      string     `gorm:"column:challenge_id;uniqueIndex:idx_participant_challenge_user" json:"challenge_id"`
	UserID           string     `gorm:"column:user_id;uniqueIndex:idx_participant_challenge_user" json:"user_id"`
	Address          string     `gorm:"column:address" json:"address"`
	StakeAmount      int64      `gorm:"column:stake_amount" json:"stake_amount"`
	JoinedAt         time.Time  `gorm:"column:joined_at" json:"joined_at"`
	IsActive         bool       `gorm:"column:is_active" json:"is_active"`
	LeftAt           *time.Time `gorm:"column:left_at" json:"left_at,omitempty"`
	EliminatedAt     *time.Time `gorm:"column:eliminated_at" json:"eliminated_at,omitempty"`
	EliminationRound *int       `gorm:"column:elimination_round" json:"elimination_round,omitempty"`
	FinalRank        *int       `gorm:"column:final_rank" json:"final_rank,omitempty"`
	TasksCompleted   int        `gorm:"column:tasks_completed" json:"tasks_completed"`
}

// WeeklyRanking is the immutable record of one period's standings.
type WeeklyRanking struct {
	ID                      string               `gorm:"column:id;primaryKey" json:"id"`
	ChallengeID             string               `gorm:"column:challenge_id;uniqueIndex:idx_ranking_challenge_week" json:"challenge_id"`
	Week                    int                  `gorm:"column:week;uniqueIndex:idx_ranking_challenge_week" json:"week"`
	EliminatedParticipantID string               `gorm:"column:eliminated_participant_id" json:"eliminated_participant_id"`
	CreatedAt               time.Time            `gorm:"column:created_at" json:"created_at"`
	Entries                 []ParticipantRanking `gorm:"foreignKey:RankingID" json:"entries"`
}

type ParticipantRanking struct {
	ID             uint   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RankingID      string `gorm:"column:ranking_id;index" json:"-"`
	ParticipantID  string `gorm:"column:participant_id" json:"participant_id"`
	TasksCompleted int    `gorm:"column:tasks_completed" json:"tasks_completed"`
	TasksMissed    int    `gorm:"column:tasks_missed" json:"tasks_missed"`
	Rank           int    `gorm:"column:rank" json:"rank"`
	Points         int    `gorm:"column:points" json:"points"`
}

type TaskCompletion struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	ChallengeID   string    `gorm:"column:challenge_id;index" json:"challenge_id"`
	ParticipantID string    `gorm:"column:participant_id;uniqueIndex:idx_completion_participant_task" json:"participant_id"`
	TaskID        string    `gorm:"column:task_id;uniqueIndex:idx_completion_participant_task" json:"task_id"`
	Proof         string    `gorm:"column:proof" json:"proof,omitempty"`
	CompletedAt   time.Time `gorm:"column:completed_at;index" json:"completed_at"`
}

type PayoutKind string

const (
	PayoutShare PayoutKind = "share"
	PayoutFee   PayoutKind = "fee"
)

type Payout struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	ChallengeID   string     `gorm:"column:challenge_id;index" json:"challenge_id"`
	ParticipantID string     `gorm:"column:participant_id" json:"participant_id,omitempty"`
	Address       string     `gorm:"column:address" json:"address,omitempty"`
	Kind          PayoutKind `gorm:"column:kind" json:"kind"`
	Rank          int        `gorm:"column:rank" json:"rank,omitempty"`
	Amount        int64      `gorm:"column:amount" json:"amount"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
}
