package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lijuuu/StakedChallengeService/internal/model"
)

// CompletionCounter reports how many tasks a participant completed inside [from, to).
type CompletionCounter interface {
	CountCompletions(ctx context.Context, participantID string, from, to time.Time) (int, error)
}

// Engine computes per-period standings and the elimination candidate.
type Engine struct {
	Period         time.Duration
	TasksPerPeriod int
	PointsPerTask  int
}

func NewEngine(period time.Duration, tasksPerPeriod, pointsPerTask int) *Engine {
	return &Engine{Period: period, TasksPerPeriod: tasksPerPeriod, PointsPerTask: pointsPerTask}
}

// Standing is one participant's completion count for the period being ranked.
type Standing struct {
	Participant    model.Participant
	TasksCompleted int
}

type Result struct {
	Week       int
	Entries    []model.ParticipantRanking
	Eliminated *Standing
}

// ExpectedWeek is the number of whole periods elapsed since start. It is 0 before start.
func (e *Engine) ExpectedWeek(start, now time.Time) int {
	if now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / e.Period)
}

// Window returns the half-open interval [from, to) covered by week (1-based).
func (e *Engine) Window(start time.Time, week int) (time.Time, time.Time) {
	from := start.Add(time.Duration(week-1) * e.Period)
	return from, from.Add(e.Period)
}

// Rank counts completions inside the week's window for every participant and ranks them.
func (e *Engine) Rank(ctx context.Context, start time.Time, week int, participants []model.Participant, counter CompletionCounter) (*Result, error) {
	if week < 1 {
		return nil, fmt.Errorf("week must be at least 1, got %d", week)
	}
	from, to := e.Window(start, week)

	standings := make([]Standing, 0, len(participants))
	for _, p := range participants {
		n, err := counter.CountCompletions(ctx, p.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to count completions for participant %s: %w", p.ID, err)
		}
		standings = append(standings, Standing{Participant: p, TasksCompleted: n})
	}

	res := e.RankStandings(standings)
	res.Week = week
	return res, nil
}

// RankStandings orders standings best first, assigns rank/points/missed and picks the
// elimination candidate: the active participant with the fewest completions.
func (e *Engine) RankStandings(standings []Standing) *Result {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ranksAbove(sorted[i].Participant, sorted[i].TasksCompleted, sorted[j].Participant, sorted[j].TasksCompleted)
	})

	res := &Result{Entries: make([]model.ParticipantRanking, 0, len(sorted))}
	for i, s := range sorted {
		missed := e.TasksPerPeriod - s.TasksCompleted
		if missed < 0 {
			missed = 0
		}
		res.Entries = append(res.Entries, model.ParticipantRanking{
			ParticipantID:  s.Participant.ID,
			TasksCompleted: s.TasksCompleted,
			TasksMissed:    missed,
			Rank:           i + 1,
			Points:         s.TasksCompleted * e.PointsPerTask,
		})
	}

	// The lowest ranked active participant has the minimum count and, among ties, the earliest join.
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Participant.IsActive {
			s := sorted[i]
			res.Eliminated = &s
			break
		}
	}
	return res
}

// SortForDistribution orders participants by cumulative completions, best first,
// with the same tie-break as weekly ranking.
func SortForDistribution(participants []model.Participant) []model.Participant {
	sorted := make([]model.Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ranksAbove(sorted[i], sorted[i].TasksCompleted, sorted[j], sorted[j].TasksCompleted)
	})
	return sorted
}

// ranksAbove: more tasks first, then later joiners first, then lower id first.
func ranksAbove(a model.Participant, aTasks int, b model.Participant, bTasks int) bool {
	if aTasks != bTasks {
		return aTasks > bTasks
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.After(b.JoinedAt)
	}
	return a.ID < b.ID
}
