package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lijuuu/StakedChallengeService/internal/db"
	"github.com/lijuuu/StakedChallengeService/internal/leaderboard"
	"github.com/lijuuu/StakedChallengeService/internal/ledger"
	"github.com/lijuuu/StakedChallengeService/internal/locker"
	"github.com/lijuuu/StakedChallengeService/internal/metrics"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
)

const (
	week      = 7 * 24 * time.Hour
	testStake = int64(100000)
	testNet   = int64(95000)
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *eventRecorder) Publish(e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type mapCache struct {
	mu          sync.Mutex
	data        map[string][]model.WeeklyRanking
	hits        int
	invalidated int
}

func (m *mapCache) Get(_ context.Context, id string) ([]model.WeeklyRanking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[id]
	if ok {
		m.hits++
	}
	return r, ok, nil
}

func (m *mapCache) Set(_ context.Context, id string, r []model.WeeklyRanking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = r
	return nil
}

func (m *mapCache) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	m.invalidated++
	return nil
}

// hookLedger runs hooks before Stake and Eliminate; a hook error is returned instead of delegating.
type hookLedger struct {
	ledger.Client
	beforeStake     func() error
	beforeEliminate func() error
}

func (h *hookLedger) Eliminate(ctx context.Context, ref string, week int, address string) (ledger.TxRef, error) {
	if h.beforeEliminate != nil {
		if err := h.beforeEliminate(); err != nil {
			return "", err
		}
	}
	return h.Client.Eliminate(ctx, ref, week, address)
}

func (h *hookLedger) Stake(ctx context.Context, ref, address string, amount int64) (ledger.TxRef, error) {
	if h.beforeStake != nil {
		if err := h.beforeStake(); err != nil {
			return "", err
		}
	}
	return h.Client.Stake(ctx, ref, address, amount)
}

type harness struct {
	coord   *Coordinator
	store   *repo.PSQLRepository
	sqlDB   *sql.DB
	ledger  *ledger.Memory
	hook    *hookLedger
	journal *repo.MemoryJournal
	events  *eventRecorder
	cache   *mapCache
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb, err := db.InitSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := repo.NewPSQLRepository(gdb)
	require.NoError(t, store.AutoMigrate())

	h := &harness{
		store:   store,
		sqlDB:   sqlDB,
		ledger:  ledger.NewMemory(),
		journal: repo.NewMemoryJournal(),
		events:  &eventRecorder{},
		cache:   &mapCache{data: make(map[string][]model.WeeklyRanking)},
		clock:   &fakeClock{now: epoch},
	}
	h.hook = &hookLedger{Client: h.ledger}
	h.coord = NewCoordinator(Deps{
		Store:         store,
		Ledger:        h.hook,
		Locker:        locker.NewLocal(),
		Journal:       h.journal,
		Publisher:     h.events,
		Ranking:       leaderboard.NewEngine(week, 5, 10),
		Cache:         h.cache,
		PlatformFeeBP: 500,
		Now:           h.clock.Now,
		Metrics:       metrics.New(nil),
	})
	return h
}

// create makes a challenge starting one day after the clock and running for weeks periods.
func (h *harness) create(t *testing.T, maxParticipants, weeks int) *model.Challenge {
	t.Helper()
	start := h.clock.Now().Add(24 * time.Hour)
	ch, err := h.coord.CreateChallenge(context.Background(), CreateChallengeInput{
		Name:            "daily pushups",
		CreatorID:       "creator",
		CreatorAddress:  "addr-creator",
		StakeAmount:     testStake,
		MaxParticipants: maxParticipants,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(weeks) * week),
	})
	require.NoError(t, err)
	return ch
}

// join adds users in order, one minute apart so their join times differ.
func (h *harness) join(t *testing.T, challengeID string, users ...string) []*model.Participant {
	t.Helper()
	out := make([]*model.Participant, 0, len(users))
	for _, u := range users {
		p, err := h.coord.JoinChallenge(context.Background(), challengeID, u, "addr-"+u)
		require.NoError(t, err)
		out = append(out, p)
		h.clock.Advance(time.Minute)
	}
	return out
}

func (h *harness) tasks(t *testing.T, challengeID, user string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := h.coord.RecordTaskCompletion(context.Background(), challengeID, user, fmt.Sprintf("%s-task-%d-%d", user, h.clock.Now().Unix(), i), "")
		require.NoError(t, err)
	}
}

// enterWeek moves the clock to one hour into the given week of ch.
func (h *harness) enterWeek(ch *model.Challenge, n int) {
	h.clock.Set(ch.StartTime.Add(time.Duration(n-1)*week + time.Hour))
}

func (h *harness) challenge(t *testing.T, id string) *model.Challenge {
	t.Helper()
	ch, err := h.store.GetChallenge(context.Background(), id)
	require.NoError(t, err)
	return ch
}

func (h *harness) participant(t *testing.T, challengeID, user string) *model.Participant {
	t.Helper()
	p, err := h.store.GetParticipantByUser(context.Background(), challengeID, user)
	require.NoError(t, err)
	return p
}

func notAccepted(op string) error {
	return &ledger.Error{Op: op, Outcome: ledger.NotAccepted, StatusCode: 503, Err: fmt.Errorf("service unavailable")}
}
