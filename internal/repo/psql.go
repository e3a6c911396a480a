package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lijuuu/StakedChallengeService/internal/model"
)

type PSQLRepository struct {
	db *gorm.DB
}

func NewPSQLRepository(db *gorm.DB) *PSQLRepository {
	return &PSQLRepository{db: db}
}

// AutoMigrate creates or updates the challenge tables.
func (r *PSQLRepository) AutoMigrate() error {
	if err := r.db.AutoMigrate(
		&model.Challenge{},
		&model.Participant{},
		&model.WeeklyRanking{},
		&model.ParticipantRanking{},
		&model.TaskCompletion{},
		&model.Payout{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (r *PSQLRepository) Tx(ctx context.Context, fn func(Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PSQLRepository{db: tx})
	})
}

func (r *PSQLRepository) LockChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c model.Challenge
	if err := q.First(&c, "id = ?", id).Error; err != nil {
		return nil, translate("lock challenge", err)
	}
	return &c, nil
}

func (r *PSQLRepository) GetChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	var c model.Challenge
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate("get challenge", err)
	}
	return &c, nil
}

func (r *PSQLRepository) CreateChallenge(ctx context.Context, c *model.Challenge) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return translate("create challenge", err)
	}
	return nil
}

func (r *PSQLRepository) SaveChallenge(ctx context.Context, c *model.Challenge) error {
	if err := r.db.WithContext(ctx).Save(c).Error; err != nil {
		return translate("save challenge", err)
	}
	return nil
}

func (r *PSQLRepository) DeleteChallenge(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Challenge{}, "id = ?", id).Error; err != nil {
		return translate("delete challenge", err)
	}
	return nil
}

func (r *PSQLRepository) ListChallengesByStatus(ctx context.Context, statuses ...model.ChallengeStatus) ([]model.Challenge, error) {
	var out []model.Challenge
	q := r.db.WithContext(ctx)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("start_time ASC").Find(&out).Error; err != nil {
		return nil, translate("list challenges", err)
	}
	return out, nil
}

func (r *PSQLRepository) ListUndistributed(ctx context.Context) ([]model.Challenge, error) {
	var out []model.Challenge
	if err := r.db.WithContext(ctx).
		Where("status = ? AND distributed_at IS NULL", model.StatusCompleted).
		Order("end_time ASC").
		Find(&out).Error; err != nil {
		return nil, translate("list undistributed challenges", err)
	}
	return out, nil
}

func (r *PSQLRepository) CreateParticipant(ctx context.Context, p *model.Participant) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return translate("create participant", err)
	}
	return nil
}

func (r *PSQLRepository) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	var p model.Participant
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate("get participant", err)
	}
	return &p, nil
}

func (r *PSQLRepository) GetParticipantByUser(ctx context.Context, challengeID, userID string) (*model.Participant, error) {
	var p model.Participant
	if err := r.db.WithContext(ctx).
		First(&p, "challenge_id = ? AND user_id = ?", challengeID, userID).Error; err != nil {
		return nil, translate("get participant", err)
	}
	return &p, nil
}

func (r *PSQLRepository) SaveParticipant(ctx context.Context, p *model.Participant) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return translate("save participant", err)
	}
	return nil
}

func (r *PSQLRepository) DeleteParticipant(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Participant{}, "id = ?", id).Error; err != nil {
		return translate("delete participant", err)
	}
	return nil
}

func (r *PSQLRepository) ListParticipants(ctx context.Context, challengeID string, activeOnly bool) ([]model.Participant, error) {
	q := r.db.WithContext(ctx).Where("challenge_id = ?", challengeID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []model.Participant
	if err := q.Order("joined_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, translate("list participants", err)
	}
	return out, nil
}

func (r *PSQLRepository) SumStakes(ctx context.Context, challengeID string) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&model.Participant{}).
		Where("challenge_id = ?", challengeID).
		Select("COALESCE(SUM(stake_amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, translate("sum stakes", err)
	}
	return total, nil
}

func (r *PSQLRepository) CreateWeeklyRanking(ctx context.Context, wr *model.WeeklyRanking) error {
	if err := r.db.WithContext(ctx).Create(wr).Error; err != nil {
		return translate("create weekly ranking", err)
	}
	return nil
}

func (r *PSQLRepository) GetWeeklyRanking(ctx context.Context, challengeID string, week int) (*model.WeeklyRanking, error) {
	var wr model.WeeklyRanking
	if err := r.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("rank ASC") }).
		First(&wr, "challenge_id = ? AND week = ?", challengeID, week).Error; err != nil {
		return nil, translate("get weekly ranking", err)
	}
	return &wr, nil
}

// DeleteWeeklyRanking removes a ranking and its entries. Only compensation uses it.
func (r *PSQLRepository) DeleteWeeklyRanking(ctx context.Context, challengeID string, week int) error {
	var wr model.WeeklyRanking
	if err := r.db.WithContext(ctx).First(&wr, "challenge_id = ? AND week = ?", challengeID, week).Error; err != nil {
		return translate("delete weekly ranking", err)
	}
	if err := r.db.WithContext(ctx).Delete(&model.ParticipantRanking{}, "ranking_id = ?", wr.ID).Error; err != nil {
		return translate("delete ranking entries", err)
	}
	if err := r.db.WithContext(ctx).Delete(&wr).Error; err != nil {
		return translate("delete weekly ranking", err)
	}
	return nil
}

func (r *PSQLRepository) ListWeeklyRankings(ctx context.Context, challengeID string) ([]model.WeeklyRanking, error) {
	var out []model.WeeklyRanking
	if err := r.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("rank ASC") }).
		Where("challenge_id = ?", challengeID).
		Order("week ASC").
		Find(&out).Error; err != nil {
		return nil, translate("list weekly rankings", err)
	}
	return out, nil
}

func (r *PSQLRepository) CreateTaskCompletion(ctx context.Context, tc *model.TaskCompletion) error {
	if err := r.db.WithContext(ctx).Create(tc).Error; err != nil {
		return translate("create task completion", err)
	}
	return nil
}

func (r *PSQLRepository) DeleteTaskCompletion(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&model.TaskCompletion{}, "id = ?", id).Error; err != nil {
		return translate("delete task completion", err)
	}
	return nil
}

func (r *PSQLRepository) CountCompletions(ctx context.Context, participantID string, from, to time.Time) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).
		Model(&model.TaskCompletion{}).
		Where("participant_id = ? AND completed_at >= ? AND completed_at < ?", participantID, from, to).
		Count(&n).Error; err != nil {
		return 0, translate("count completions", err)
	}
	return int(n), nil
}

func (r *PSQLRepository) CreatePayouts(ctx context.Context, payouts []model.Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&payouts).Error; err != nil {
		return translate("create payouts", err)
	}
	return nil
}

func (r *PSQLRepository) DeletePayouts(ctx context.Context, challengeID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Payout{}, "challenge_id = ?", challengeID).Error; err != nil {
		return translate("delete payouts", err)
	}
	return nil
}

func (r *PSQLRepository) ListPayouts(ctx context.Context, challengeID string) ([]model.Payout, error) {
	var out []model.Payout
	if err := r.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("kind DESC").Order("rank ASC").
		Find(&out).Error; err != nil {
		return nil, translate("list payouts", err)
	}
	return out, nil
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to %s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("failed to %s: %w", op, ErrDuplicate)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
