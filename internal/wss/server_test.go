package wss

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/metrics"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/state"
	"github.com/lijuuu/StakedChallengeService/internal/wss/broadcasts"
)

type fakeReader struct{}

func (fakeReader) GetChallenge(_ context.Context, id string) (*model.Challenge, error) {
	if id != "c1" {
		return nil, errors.New("not found")
	}
	return &model.Challenge{ID: "c1", Name: "steps", Status: model.StatusActive}, nil
}

func (fakeReader) GetWeeklyRankings(context.Context, string) ([]model.WeeklyRanking, error) {
	return []model.WeeklyRanking{{ChallengeID: "c1", Week: 1, EliminatedParticipantID: "p9"}}, nil
}

func startServer(t *testing.T) (*state.Registry, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := state.NewRegistry()
	srv := NewServer(NewDefaultDispatcher(zap.NewNop()), reg, fakeReader{}, zap.NewNop())

	router := gin.New()
	router.GET("/ws/:challengeId", srv.Handle)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return reg, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestSubscribeAndReceiveEvents(t *testing.T) {
	reg, base := startServer(t)
	conn := dial(t, base+"/ws/c1")

	require.Eventually(t, func() bool { return reg.Count("c1") == 1 }, time.Second, 5*time.Millisecond)

	b := broadcasts.NewBroadcaster(reg, 4, zap.NewNop(), metrics.New(nil))
	b.Deliver(model.Event{Type: model.EventParticipantEliminated, ChallengeID: "c1", Payload: model.ParticipantEliminatedPayload{ParticipantID: "p3", Week: 1}})

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "EVENT", msg["type"])
	assert.Equal(t, string(model.EventParticipantEliminated), msg["event"])
}

func TestMessageHandlers(t *testing.T) {
	_, base := startServer(t)
	conn := dial(t, base+"/ws/c1")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "PING"}))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "PONG", msg["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "REFETCH_CHALLENGE"}))
	msg = nil
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "REFETCH_CHALLENGE", msg["type"])
	payload := msg["payload"].(map[string]any)
	assert.Equal(t, "c1", payload["id"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "GET_RANKINGS"}))
	msg = nil
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "GET_RANKINGS", msg["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "NOPE"}))
	msg = nil
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "ERROR", msg["type"])
}

func TestDisconnectUnsubscribes(t *testing.T) {
	reg, base := startServer(t)
	conn := dial(t, base+"/ws/c1")
	require.Eventually(t, func() bool { return reg.Count("c1") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return reg.Count("c1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestUnknownChallengeIsRejected(t *testing.T) {
	_, base := startServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}
