package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/leaderboard"
	"github.com/lijuuu/StakedChallengeService/internal/ledger"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
)

type CreateChallengeInput struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	CreatorID       string    `json:"creator_id"`
	CreatorAddress  string    `json:"creator_address"`
	StakeAmount     int64     `json:"stake_amount"`
	MaxParticipants int       `json:"max_participants"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

func (in CreateChallengeInput) validate(now time.Time) error {
	const op = "create_challenge"
	switch {
	case strings.TrimSpace(in.Name) == "":
		return apperr.Validation(op, "name is required")
	case strings.TrimSpace(in.CreatorID) == "":
		return apperr.Validation(op, "creator_id is required")
	case in.StakeAmount <= 0:
		return apperr.Validation(op, "stake_amount must be positive, got %d", in.StakeAmount)
	case in.MaxParticipants < model.MinActiveParticipants:
		return apperr.Validation(op, "max_participants must be at least %d, got %d", model.MinActiveParticipants, in.MaxParticipants)
	case in.StartTime.IsZero() || in.EndTime.IsZero():
		return apperr.Validation(op, "start_time and end_time are required")
	case !in.EndTime.After(in.StartTime):
		return apperr.Validation(op, "end_time must be after start_time")
	case in.StartTime.Before(now):
		return apperr.Validation(op, "start_time must not be in the past")
	}
	return nil
}

// CreateChallenge stores a new upcoming challenge and deploys its ledger contract.
// A failed deployment removes the stored challenge again.
func (c *Coordinator) CreateChallenge(ctx context.Context, in CreateChallengeInput) (*model.Challenge, error) {
	now := c.now()
	if err := in.validate(now); err != nil {
		return nil, err
	}

	ch := &model.Challenge{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		CreatorID:       in.CreatorID,
		CreatorAddress:  in.CreatorAddress,
		StakeAmount:     in.StakeAmount,
		MaxParticipants: in.MaxParticipants,
		Status:          model.StatusUpcoming,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
	}

	err := c.withChallengeLock(ctx, ch.ID, func(ctx context.Context) error {
		if err := c.store.CreateChallenge(ctx, ch); err != nil {
			return err
		}

		ref, err := c.settle(ctx, ch.ID, "deploy",
			func(ctx context.Context) (string, error) {
				return c.ledger.Deploy(ctx, ledger.DeployRequest{
					ChallengeID:     ch.ID,
					CreatorAddress:  ch.CreatorAddress,
					StakeAmount:     ch.StakeAmount,
					MaxParticipants: ch.MaxParticipants,
					StartUnix:       ch.StartTime.Unix(),
					EndUnix:         ch.EndTime.Unix(),
				})
			},
			func(ctx context.Context, s repo.Store) error {
				return s.DeleteChallenge(ctx, ch.ID)
			})
		if err != nil {
			return err
		}

		ch.LedgerRef = ref
		if err := c.store.SaveChallenge(ctx, ch); err != nil {
			c.log.Error("contract deployed but ledger_ref not stored",
				zap.String("challenge_id", ch.ID), zap.String("ledger_ref", ref), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("challenge created", zap.String("challenge_id", ch.ID), zap.String("ledger_ref", ch.LedgerRef))
	c.publish(model.Event{
		Type:        model.EventChallengeCreated,
		ChallengeID: ch.ID,
		Payload:     model.ChallengeCreatedPayload{ChallengeID: ch.ID, Name: ch.Name, LedgerRef: ch.LedgerRef},
	})
	return ch, nil
}

// JoinChallenge adds userID to the challenge and stakes the net stake on the ledger.
// The challenge becomes active once it has two participants.
func (c *Coordinator) JoinChallenge(ctx context.Context, challengeID, userID, address string) (*model.Participant, error) {
	const op = "join_challenge"
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation(op, "user_id is required")
	}
	if strings.TrimSpace(address) == "" {
		return nil, apperr.Validation(op, "address is required")
	}

	var (
		p       *model.Participant
		ch      *model.Challenge
		started bool
	)
	err := c.withChallengeLock(ctx, challengeID, func(ctx context.Context) error {
		err := c.store.Tx(ctx, func(s repo.Store) error {
			var err error
			ch, err = s.LockChallenge(ctx, challengeID)
			if err != nil {
				return lookupErr(op, "challenge", challengeID, err)
			}
			if ch.Status != model.StatusUpcoming && ch.Status != model.StatusActive {
				return apperr.StateConflict(op, "challenge is %s", ch.Status)
			}
			if !ch.Joinable() {
				return apperr.StateConflict(op, "challenge is full (%d/%d)", ch.CurrentParticipants, ch.MaxParticipants)
			}
			if _, err := s.GetParticipantByUser(ctx, challengeID, userID); err == nil {
				return apperr.StateConflict(op, "user %s already participating", userID)
			} else if !errors.Is(err, repo.ErrNotFound) {
				return err
			}

			net := leaderboard.NetStake(ch.StakeAmount, c.feeBP)
			p = &model.Participant{
				ID:          uuid.NewString(),
				ChallengeID: challengeID,
				UserID:      userID,
				Address:     address,
				StakeAmount: net,
				JoinedAt:    c.now(),
				IsActive:    true,
			}
			if err := s.CreateParticipant(ctx, p); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return apperr.StateConflict(op, "user %s already participating", userID)
				}
				return err
			}

			ch.CurrentParticipants++
			ch.PoolAmount += net
			if ch.Status == model.StatusUpcoming && ch.CurrentParticipants >= model.MinActiveParticipants {
				ch.Status = model.StatusActive
				started = true
			}
			return s.SaveChallenge(ctx, ch)
		})
		if err != nil {
			return err
		}

		_, err = c.settle(ctx, challengeID, "stake",
			func(ctx context.Context) (string, error) {
				tx, err := c.ledger.Stake(ctx, ch.LedgerRef, p.Address, p.StakeAmount)
				return string(tx), err
			},
			func(ctx context.Context, s repo.Store) error {
				cur, err := s.LockChallenge(ctx, challengeID)
				if err != nil {
					return err
				}
				if err := s.DeleteParticipant(ctx, p.ID); err != nil {
					return err
				}
				cur.CurrentParticipants--
				cur.PoolAmount -= p.StakeAmount
				if started {
					cur.Status = model.StatusUpcoming
				}
				return s.SaveChallenge(ctx, cur)
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	events := []model.Event{{
		Type:        model.EventParticipantJoined,
		ChallengeID: challengeID,
		Payload: model.ParticipantJoinedPayload{
			ParticipantID:       p.ID,
			UserID:              p.UserID,
			CurrentParticipants: ch.CurrentParticipants,
			PoolAmount:          ch.PoolAmount,
		},
	}}
	if started {
		events = append(events, statusEvent(ch))
	}
	c.publish(events...)
	return p, nil
}

// LeaveChallenge deactivates the participant. The stake stays in the pool.
func (c *Coordinator) LeaveChallenge(ctx context.Context, challengeID, userID string) error {
	const op = "leave_challenge"
	var (
		p  *model.Participant
		ch *model.Challenge
	)
	err := c.withChallengeLock(ctx, challengeID, func(ctx context.Context) error {
		err := c.store.Tx(ctx, func(s repo.Store) error {
			var err error
			ch, err = s.LockChallenge(ctx, challengeID)
			if err != nil {
				return lookupErr(op, "challenge", challengeID, err)
			}
			if ch.Status != model.StatusUpcoming && ch.Status != model.StatusActive {
				return apperr.StateConflict(op, "challenge is %s", ch.Status)
			}
			p, err = s.GetParticipantByUser(ctx, challengeID, userID)
			if errors.Is(err, repo.ErrNotFound) {
				return apperr.StateConflict(op, "user %s is not participating", userID)
			}
			if err != nil {
				return err
			}
			if !p.IsActive {
				return apperr.StateConflict(op, "user %s is no longer active", userID)
			}

			left := c.now()
			p.IsActive = false
			p.LeftAt = &left
			if err := s.SaveParticipant(ctx, p); err != nil {
				return err
			}
			ch.CurrentParticipants--
			return s.SaveChallenge(ctx, ch)
		})
		if err != nil {
			return err
		}

		_, err = c.settle(ctx, challengeID, "release",
			func(ctx context.Context) (string, error) {
				tx, err := c.ledger.Release(ctx, ch.LedgerRef, p.Address)
				return string(tx), err
			},
			func(ctx context.Context, s repo.Store) error {
				cur, err := s.LockChallenge(ctx, challengeID)
				if err != nil {
					return err
				}
				p.IsActive = true
				p.LeftAt = nil
				if err := s.SaveParticipant(ctx, p); err != nil {
					return err
				}
				cur.CurrentParticipants++
				return s.SaveChallenge(ctx, cur)
			})
		return err
	})
	if err != nil {
		return err
	}

	c.publish(model.Event{
		Type:        model.EventParticipantLeft,
		ChallengeID: challengeID,
		Payload: model.ParticipantLeftPayload{
			ParticipantID:       p.ID,
			UserID:              p.UserID,
			CurrentParticipants: ch.CurrentParticipants,
		},
	})
	return nil
}

// RecordTaskCompletion stores one completed task for an active participant and mirrors it
// on the ledger.
func (c *Coordinator) RecordTaskCompletion(ctx context.Context, challengeID, userID, taskID, proof string) (*model.TaskCompletion, error) {
	const op = "record_task_completion"
	if strings.TrimSpace(taskID) == "" {
		return nil, apperr.Validation(op, "task_id is required")
	}

	var (
		p  *model.Participant
		ch *model.Challenge
		tc *model.TaskCompletion
	)
	err := c.withChallengeLock(ctx, challengeID, func(ctx context.Context) error {
		err := c.store.Tx(ctx, func(s repo.Store) error {
			var err error
			ch, err = s.LockChallenge(ctx, challengeID)
			if err != nil {
				return lookupErr(op, "challenge", challengeID, err)
			}
			if ch.Status != model.StatusActive {
				return apperr.StateConflict(op, "challenge is %s", ch.Status)
			}
			// Completions outside [start, end) fall in no ranking window and would skew final ranks.
			if now := c.now(); now.Before(ch.StartTime) || !now.Before(ch.EndTime) {
				return apperr.StateConflict(op, "challenge accepts tasks between %s and %s",
					ch.StartTime.Format(time.RFC3339), ch.EndTime.Format(time.RFC3339))
			}
			p, err = s.GetParticipantByUser(ctx, challengeID, userID)
			if errors.Is(err, repo.ErrNotFound) {
				return apperr.StateConflict(op, "user %s is not participating", userID)
			}
			if err != nil {
				return err
			}
			if !p.IsActive {
				return apperr.StateConflict(op, "user %s is no longer active", userID)
			}

			tc = &model.TaskCompletion{
				ID:            uuid.NewString(),
				ChallengeID:   challengeID,
				ParticipantID: p.ID,
				TaskID:        taskID,
				Proof:         proof,
				CompletedAt:   c.now(),
			}
			if err := s.CreateTaskCompletion(ctx, tc); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return apperr.StateConflict(op, "task %s already completed", taskID)
				}
				return err
			}
			p.TasksCompleted++
			return s.SaveParticipant(ctx, p)
		})
		if err != nil {
			return err
		}

		_, err = c.settle(ctx, challengeID, "record_task",
			func(ctx context.Context) (string, error) {
				tx, err := c.ledger.RecordTaskCompletion(ctx, ch.LedgerRef, p.Address, taskID)
				return string(tx), err
			},
			func(ctx context.Context, s repo.Store) error {
				if err := s.DeleteTaskCompletion(ctx, tc.ID); err != nil {
					return err
				}
				p.TasksCompleted--
				return s.SaveParticipant(ctx, p)
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	c.publish(model.Event{
		Type:        model.EventTaskCompleted,
		ChallengeID: challengeID,
		Payload:     model.TaskCompletedPayload{ParticipantID: p.ID, TaskID: taskID, TasksCompleted: p.TasksCompleted},
	})
	return tc, nil
}

// CancelChallenge is an administrative stop. It changes state only.
func (c *Coordinator) CancelChallenge(ctx context.Context, challengeID string) (*model.Challenge, error) {
	const op = "cancel_challenge"
	var ch *model.Challenge
	err := c.withChallengeLock(ctx, challengeID, func(ctx context.Context) error {
		return c.store.Tx(ctx, func(s repo.Store) error {
			var err error
			ch, err = s.LockChallenge(ctx, challengeID)
			if err != nil {
				return lookupErr(op, "challenge", challengeID, err)
			}
			if ch.Status != model.StatusUpcoming && ch.Status != model.StatusActive {
				return apperr.StateConflict(op, "challenge is %s", ch.Status)
			}
			ch.Status = model.StatusCancelled
			return s.SaveChallenge(ctx, ch)
		})
	})
	if err != nil {
		return nil, err
	}
	c.publish(statusEvent(ch))
	return ch, nil
}

// CompleteChallenge moves an active challenge whose end_time has passed to completed.
func (c *Coordinator) CompleteChallenge(ctx context.Context, challengeID string) (*model.Challenge, error) {
	const op = "complete_challenge"
	var ch *model.Challenge
	err := c.withChallengeLock(ctx, challengeID, func(ctx context.Context) error {
		return c.store.Tx(ctx, func(s repo.Store) error {
			var err error
			ch, err = s.LockChallenge(ctx, challengeID)
			if err != nil {
				return lookupErr(op, "challenge", challengeID, err)
			}
			if ch.Status != model.StatusActive {
				return apperr.StateConflict(op, "challenge is %s", ch.Status)
			}
			if c.now().Before(ch.EndTime) {
				return apperr.StateConflict(op, "challenge ends at %s", ch.EndTime.Format(time.RFC3339))
			}
			ch.Status = model.StatusCompleted
			return s.SaveChallenge(ctx, ch)
		})
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("challenge completed", zap.String("challenge_id", challengeID))
	c.publish(statusEvent(ch))
	return ch, nil
}
