package wss

import (
	"errors"

	"go.uber.org/zap"

	wsshandler "github.com/lijuuu/StakedChallengeService/internal/wss/handlers"
	wsstypes "github.com/lijuuu/StakedChallengeService/internal/wss/types"
)

// WsHandlerType defines the signature for a WebSocket message handler
type WsHandlerType func(*wsstypes.WsContext) error

type Dispatcher struct {
	handlers map[string]WsHandlerType
	log      *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]WsHandlerType),
		log:      log.Named("dispatcher"),
	}
}

// NewDefaultDispatcher registers every message type clients may send.
func NewDefaultDispatcher(log *zap.Logger) *Dispatcher {
	d := NewDispatcher(log)
	d.Register(wsstypes.PING, wsshandler.Ping)
	d.Register(wsstypes.REFETCH_CHALLENGE, wsshandler.RefetchChallenge)
	d.Register(wsstypes.GET_RANKINGS, wsshandler.GetRankings)
	return d
}

func (d *Dispatcher) Register(event string, handler WsHandlerType) {
	d.log.Debug("registering handler", zap.String("event", event))
	d.handlers[event] = handler
}

func (d *Dispatcher) Dispatch(event string, ctx *wsstypes.WsContext) error {
	handler, ok := d.handlers[event]
	if !ok {
		return errors.New("unknown event type: " + event)
	}

	err := handler(ctx)
	if err != nil {
		d.log.Warn("handler error", zap.String("event", event), zap.Error(err))
	}
	return err
}
