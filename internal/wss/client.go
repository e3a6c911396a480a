package wss

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lijuuu/StakedChallengeService/internal/model"
	wsstypes "github.com/lijuuu/StakedChallengeService/internal/wss/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is a websocket connection subscribed to one challenge. Writes are serialized
// because gorilla connections allow a single concurrent writer.
type Client struct {
	id          string
	challengeID string
	conn        *websocket.Conn
	writeMu     sync.Mutex
	closeOnce   sync.Once
	done        chan struct{}
}

func NewClient(challengeID string, conn *websocket.Conn) *Client {
	return &Client{
		id:          uuid.NewString(),
		challengeID: challengeID,
		conn:        conn,
		done:        make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Send(event model.Event) error {
	return c.WriteJSON(map[string]any{
		"type":    wsstypes.EVENT,
		"status":  "ok",
		"event":   event.Type,
		"payload": event,
	})
}

func (c *Client) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }
