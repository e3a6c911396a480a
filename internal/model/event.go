package model

import "time"

type EventType string

const (
	EventChallengeCreated       EventType = "CHALLENGE_CREATED"
	EventParticipantJoined      EventType = "PARTICIPANT_JOINED"
	EventParticipantLeft        EventType = "PARTICIPANT_LEFT"
	EventParticipantEliminated  EventType = "PARTICIPANT_ELIMINATED"
	EventChallengeStatusChanged EventType = "CHALLENGE_STATUS_CHANGED"
	EventTaskCompleted          EventType = "TASK_COMPLETED"
	EventPoolDistributed        EventType = "POOL_DISTRIBUTED"
)

type Event struct {
	Type        EventType   `json:"type"`
	ChallengeID string      `json:"challenge_id"`
	At          time.Time   `json:"at"`
	Payload     interface{} `json:"payload"`
}

type ChallengeCreatedPayload struct {
	ChallengeID string `json:"challenge_id"`
	Name        string `json:"name"`
	LedgerRef   string `json:"ledger_ref"`
}

type ParticipantJoinedPayload struct {
	ParticipantID       string `json:"participant_id"`
	UserID              string `json:"user_id"`
	CurrentParticipants int    `json:"current_participants"`
	PoolAmount          int64  `json:"pool_amount"`
}

type ParticipantLeftPayload struct {
	ParticipantID       string `json:"participant_id"`
	UserID              string `json:"user_id"`
	CurrentParticipants int    `json:"current_participants"`
}

type ParticipantEliminatedPayload struct {
	ParticipantID  string `json:"participant_id"`
	UserID         string `json:"user_id"`
	Week           int    `json:"week"`
	TasksCompleted int    `json:"tasks_completed"`
}

type ChallengeStatusChangedPayload struct {
	ChallengeID string          `json:"challenge_id"`
	Status      ChallengeStatus `json:"status"`
}

type TaskCompletedPayload struct {
	ParticipantID  string `json:"participant_id"`
	TaskID         string `json:"task_id"`
	TasksCompleted int    `json:"tasks_completed"`
}

type PoolDistributedPayload struct {
	Fee     int64    `json:"fee"`
	Payouts []Payout `json:"payouts"`
}

type GenericResponse struct {
	Success bool                   `json:"success"`
	Status  int                    `json:"status"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   *ErrorInfo             `json:"error,omitempty"`
}

type ErrorInfo struct {
	ErrorType string `json:"type"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}
