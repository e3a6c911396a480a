package wsshandler

import (
	wsstypes "github.com/lijuuu/StakedChallengeService/internal/wss/types"
)

func Ping(ctx *wsstypes.WsContext) error {
	return ctx.Send(map[string]interface{}{"type": wsstypes.PONG, "status": "ok"})
}

// RefetchChallenge sends the current challenge record to the requesting client.
func RefetchChallenge(ctx *wsstypes.WsContext) error {
	challenge, err := ctx.Reader.GetChallenge(ctx.Ctx, ctx.ChallengeID)
	if err != nil {
		return ctx.Send(map[string]interface{}{
			"type":   wsstypes.REFETCH_CHALLENGE,
			"status": "error",
			"error": map[string]interface{}{
				"code":    "CHALLENGE_NOT_FOUND",
				"message": "Challenge not found",
			},
		})
	}

	return ctx.Send(map[string]interface{}{
		"type":    wsstypes.REFETCH_CHALLENGE,
		"status":  "ok",
		"payload": challenge,
	})
}
