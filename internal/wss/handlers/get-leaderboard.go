package wsshandler

import (
	wsstypes "github.com/lijuuu/StakedChallengeService/internal/wss/types"
)

// GetRankings sends the weekly ranking history of the client's challenge.
func GetRankings(ctx *wsstypes.WsContext) error {
	rankings, err := ctx.Reader.GetWeeklyRankings(ctx.Ctx, ctx.ChallengeID)
	if err != nil {
		return ctx.Send(map[string]interface{}{
			"type":   wsstypes.GET_RANKINGS,
			"status": "error",
			"error": map[string]interface{}{
				"code":    "RANKINGS_UNAVAILABLE",
				"message": err.Error(),
			},
		})
	}

	return ctx.Send(map[string]interface{}{
		"type":    wsstypes.GET_RANKINGS,
		"status":  "ok",
		"payload": map[string]interface{}{"rankings": rankings},
	})
}
