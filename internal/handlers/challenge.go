package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
	"github.com/lijuuu/StakedChallengeService/internal/service"
)

// Challenges is the coordinator surface the HTTP API exposes.
type Challenges interface {
	CreateChallenge(ctx context.Context, in service.CreateChallengeInput) (*model.Challenge, error)
	JoinChallenge(ctx context.Context, challengeID, userID, address string) (*model.Participant, error)
	LeaveChallenge(ctx context.Context, challengeID, userID string) error
	RecordTaskCompletion(ctx context.Context, challengeID, userID, taskID, proof string) (*model.TaskCompletion, error)
	ProcessElimination(ctx context.Context, challengeID string) (*service.EliminationResult, error)
	CompleteChallenge(ctx context.Context, challengeID string) (*model.Challenge, error)
	DistributePool(ctx context.Context, challengeID string) ([]model.Payout, error)
	CancelChallenge(ctx context.Context, challengeID string) (*model.Challenge, error)

	GetChallenge(ctx context.Context, id string) (*model.Challenge, error)
	ListChallenges(ctx context.Context, statuses ...model.ChallengeStatus) ([]model.Challenge, error)
	ListParticipants(ctx context.Context, challengeID string, activeOnly bool) ([]model.Participant, error)
	GetWeeklyRankings(ctx context.Context, challengeID string) ([]model.WeeklyRanking, error)
	ListPayouts(ctx context.Context, challengeID string) ([]model.Payout, error)
	Journal(ctx context.Context, challengeID string, phase repo.JournalPhase) ([]repo.JournalEntry, error)
}

type ChallengeHandler struct {
	svc Challenges
	log *zap.Logger
}

func NewChallengeHandler(svc Challenges, log *zap.Logger) *ChallengeHandler {
	return &ChallengeHandler{svc: svc, log: log.Named("http")}
}

type createChallengeRequest struct {
	Name            string    `json:"name" binding:"required"`
	Description     string    `json:"description"`
	CreatorID       string    `json:"creator_id" binding:"required"`
	CreatorAddress  string    `json:"creator_address"`
	StakeAmount     int64     `json:"stake_amount" binding:"required"`
	MaxParticipants int       `json:"max_participants" binding:"required"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
}

type joinRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Address string `json:"address" binding:"required"`
}

type leaveRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type taskRequest struct {
	UserID string `json:"user_id" binding:"required"`
	TaskID string `json:"task_id" binding:"required"`
	Proof  string `json:"proof"`
}

func (h *ChallengeHandler) fail(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindFatal, "":
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	case apperr.KindLedger:
		h.log.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	WriteJSONError(c, err)
}

func (h *ChallengeHandler) CreateChallenge(c *gin.Context) {
	var req createChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	ch, err := h.svc.CreateChallenge(c.Request.Context(), service.CreateChallengeInput{
		Name:            req.Name,
		Description:     req.Description,
		CreatorID:       req.CreatorID,
		CreatorAddress:  req.CreatorAddress,
		StakeAmount:     req.StakeAmount,
		MaxParticipants: req.MaxParticipants,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusCreated, gin.H{"challenge": ch})
}

func (h *ChallengeHandler) ListChallenges(c *gin.Context) {
	var statuses []model.ChallengeStatus
	for _, s := range c.QueryArray("status") {
		statuses = append(statuses, model.ChallengeStatus(s))
	}
	challenges, err := h.svc.ListChallenges(c.Request.Context(), statuses...)
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"challenges": challenges, "total": len(challenges)})
}

func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	ch, err := h.svc.GetChallenge(c.Request.Context(), c.Param("challengeId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"challenge": ch})
}

func (h *ChallengeHandler) JoinChallenge(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	p, err := h.svc.JoinChallenge(c.Request.Context(), c.Param("challengeId"), req.UserID, req.Address)
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusCreated, gin.H{"participant": p})
}

func (h *ChallengeHandler) LeaveChallenge(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	if err := h.svc.LeaveChallenge(c.Request.Context(), c.Param("challengeId"), req.UserID); err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"user_id": req.UserID, "left": true})
}

func (h *ChallengeHandler) RecordTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	tc, err := h.svc.RecordTaskCompletion(c.Request.Context(), c.Param("challengeId"), req.UserID, req.TaskID, req.Proof)
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusCreated, gin.H{"completion": tc})
}

func (h *ChallengeHandler) ProcessElimination(c *gin.Context) {
	res, err := h.svc.ProcessElimination(c.Request.Context(), c.Param("challengeId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{
		"ranking":        res.Ranking,
		"eliminated":     res.Eliminated,
		"status_changed": res.StatusChanged,
	})
}

func (h *ChallengeHandler) CompleteChallenge(c *gin.Context) {
	ch, err := h.svc.CompleteChallenge(c.Request.Context(), c.Param("challengeId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"challenge": ch})
}

func (h *ChallengeHandler) DistributePool(c *gin.Context) {
	payouts, err := h.svc.DistributePool(c.Request.Context(), c.Param("challengeId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"payouts": payouts})
}

func (h *ChallengeHandler) CancelChallenge(c *gin.Context) {
	ch, err := h.svc.CancelChallenge(c.Request.Context(), c.Param("challengeId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"challenge": ch})
}

func (h *ChallengeHandler) ListParticipants(c *gin.Context) {
	raw := c.DefaultQuery("active", "false")
	activeOnly, err := strconv.ParseBool(raw)
	if err != nil {
		h.fail(c, apperr.Validation("list_participants", "active must be true or false, got %q", raw))
		return
	}
	participants, err := h.svc.ListParticipants(c.Request.Context(), c.Param("challengeId"), activeOnly)
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"participants": participants})
}

func (h *ChallengeHandler) GetWeeklyRankings(c *gin.Context) {
	rankings, err := h.svc.GetWeeklyRankings(c.Request.Context(), c.Param("challengeId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"rankings": rankings})
}

func (h *ChallengeHandler) ListPayouts(c *gin.Context) {
	payouts, err := h.svc.ListPayouts(c.Request.Context(), c.Param("challengeId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"payouts": payouts})
}

func (h *ChallengeHandler) Journal(c *gin.Context) {
	entries, err := h.svc.Journal(c.Request.Context(), c.Param("challengeId"), repo.JournalPhase(c.Query("phase")))
	if err != nil {
		h.fail(c, err)
		return
	}
	WriteJSONResponse(c, http.StatusOK, gin.H{"entries": entries})
}
