package wss

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/state"
	wsstypes "github.com/lijuuu/StakedChallengeService/internal/wss/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server upgrades /ws/:challengeId requests and keeps each connection subscribed to
// the challenge until it disconnects.
type Server struct {
	dispatcher *Dispatcher
	registry   *state.Registry
	reader     wsstypes.ChallengeReader
	log        *zap.Logger
}

func NewServer(dispatcher *Dispatcher, registry *state.Registry, reader wsstypes.ChallengeReader, log *zap.Logger) *Server {
	return &Server{dispatcher: dispatcher, registry: registry, reader: reader, log: log.Named("wss")}
}

func (s *Server) Handle(c *gin.Context) {
	challengeID := c.Param("challengeId")
	if _, err := s.reader.GetChallenge(c.Request.Context(), challengeID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("upgrade error", zap.Error(err))
		return
	}

	client := NewClient(challengeID, conn)
	s.registry.Subscribe(challengeID, client)
	s.log.Info("subscriber connected", zap.String("challenge_id", challengeID), zap.String("subscriber", client.ID()))

	defer func() {
		s.registry.Unsubscribe(challengeID, client.ID())
		_ = client.Close()
		s.log.Info("subscriber disconnected", zap.String("challenge_id", challengeID), zap.String("subscriber", client.ID()))
	}()

	go s.keepAlive(client)
	s.readLoop(client)
}

func (s *Server) keepAlive(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.ping(); err != nil {
				_ = client.Close()
				return
			}
		}
	}
}

func (s *Server) readLoop(client *Client) {
	conn := client.conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var wsMsg wsstypes.WsMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			_ = client.WriteJSON(map[string]any{"type": wsstypes.ERROR, "status": "error", "message": "invalid message format"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		wctx := &wsstypes.WsContext{
			Ctx:         ctx,
			Conn:        conn,
			ChallengeID: client.challengeID,
			Payload:     wsMsg.Payload,
			Reader:      s.reader,
			Send:        client.WriteJSON,
		}
		if err := s.dispatcher.Dispatch(wsMsg.Type, wctx); err != nil {
			_ = client.WriteJSON(map[string]any{"type": wsstypes.ERROR, "status": "error", "message": err.Error()})
		}
		cancel()
	}
}
