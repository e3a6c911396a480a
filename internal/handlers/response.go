package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/model"
)

// WriteJSONResponse writes a success envelope.
func WriteJSONResponse(c *gin.Context, status int, payload map[string]interface{}) {
	c.JSON(status, model.GenericResponse{
		Success: true,
		Status:  status,
		Payload: payload,
	})
}

// WriteJSONError maps err onto an HTTP status by its kind and writes an error envelope.
func WriteJSONError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	errType := string(kind)
	if errType == "" {
		errType = "INTERNAL"
	}
	c.AbortWithStatusJSON(status, model.GenericResponse{
		Success: false,
		Status:  status,
		Error: &model.ErrorInfo{
			ErrorType: errType,
			Code:      status,
			Message:   err.Error(),
		},
	})
}

func writeBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, model.GenericResponse{
		Success: false,
		Status:  http.StatusBadRequest,
		Error: &model.ErrorInfo{
			ErrorType: string(apperr.KindValidation),
			Code:      http.StatusBadRequest,
			Message:   "invalid request body",
			Details:   err.Error(),
		},
	})
}

func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStateConflict:
		return http.StatusConflict
	case apperr.KindLedger:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
