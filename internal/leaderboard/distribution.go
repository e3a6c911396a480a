package leaderboard

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/lijuuu/StakedChallengeService/internal/model"
)

const BasisPoints = 10000

var ErrNoWinners = errors.New("no active participants to distribute to")

type Share struct {
	ParticipantID string
	Address       string
	Rank          int
	Weight        uint64
	Amount        int64
}

// Plan is the full split of a pool. Fee + Residual + Σ Shares == Pool.
type Plan struct {
	Pool          int64
	Fee           int64
	Distributable int64
	Residual      int64
	TotalWeight   uint64
	Shares        []Share
}

// PlatformTake is what the platform keeps: the fee plus the rounding residual.
func (p *Plan) PlatformTake() int64 {
	return p.Fee + p.Residual
}

// Distribute splits pool between winners by rank weight. winners must already be in
// final order (see SortForDistribution); position i gets weight N-i.
func Distribute(pool, feeBP int64, winners []model.Participant) (*Plan, error) {
	if pool < 0 {
		return nil, fmt.Errorf("pool must not be negative, got %d", pool)
	}
	if feeBP < 0 || feeBP >= BasisPoints {
		return nil, fmt.Errorf("fee basis points out of range: %d", feeBP)
	}
	n := uint64(len(winners))
	if n == 0 {
		return nil, ErrNoWinners
	}

	fee := FeeOf(pool, feeBP)
	distributable := pool - fee
	totalWeight := n * (n + 1) / 2

	plan := &Plan{
		Pool:          pool,
		Fee:           fee,
		Distributable: distributable,
		TotalWeight:   totalWeight,
		Shares:        make([]Share, 0, n),
	}

	dist := uint256.NewInt(uint64(distributable))
	total := uint256.NewInt(totalWeight)
	var paid int64
	for i, w := range winners {
		weight := n - uint64(i)
		amount := new(uint256.Int).Mul(dist, uint256.NewInt(weight))
		amount.Div(amount, total)
		share := int64(amount.Uint64())
		paid += share
		plan.Shares = append(plan.Shares, Share{
			ParticipantID: w.ID,
			Address:       w.Address,
			Rank:          i + 1,
			Weight:        weight,
			Amount:        share,
		})
	}
	plan.Residual = distributable - paid
	return plan, nil
}

// FeeOf returns floor(amount * bp / 10000) without overflowing int64 intermediates.
func FeeOf(amount, bp int64) int64 {
	if amount <= 0 || bp <= 0 {
		return 0
	}
	v := new(uint256.Int).Mul(uint256.NewInt(uint64(amount)), uint256.NewInt(uint64(bp)))
	v.Div(v, uint256.NewInt(BasisPoints))
	return int64(v.Uint64())
}

// NetStake is what a participant contributes to the pool after the platform fee on stake.
func NetStake(stake, feeBP int64) int64 {
	return stake - FeeOf(stake, feeBP)
}
