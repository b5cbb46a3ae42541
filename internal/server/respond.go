package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	commonerrors "github.com/vehicert/vehicert/internal/common/errors"
	"github.com/vehicert/vehicert/internal/common/middleware"
	"github.com/vehicert/vehicert/internal/flow"
)

// handleFlowError translates a classified flow error into the API error
// contract. The refreshed flow document rides along in the error metadata so
// the UI can re-render the form without an extra round trip.
func (s *Server) handleFlowError(c *gin.Context, kind flow.Kind, err error) {
	fe, ok := flow.AsError(err)
	if !ok {
		commonerrors.HandleError(c, commonerrors.UpstreamError(err))
		return
	}

	middleware.FlowOutcomesTotal.WithLabelValues(string(kind), fe.Outcome.String()).Inc()

	switch fe.Outcome {
	case flow.OutcomeValidationFailed:
		msg := fe.Reason
		if msg == "" {
			msg = "The submitted values were rejected"
		}
		appErr := commonerrors.FlowValidationFailed(msg)
		if fe.Flow != nil {
			appErr = appErr.WithMetadata("flow", viewOf(fe.Flow))
		}
		commonerrors.HandleError(c, appErr)

	case flow.OutcomeFlowExpired:
		appErr := commonerrors.FlowExpired()
		if fe.Flow != nil {
			appErr = appErr.WithMetadata("flow", viewOf(fe.Flow))
		}
		commonerrors.HandleError(c, appErr)

	case flow.OutcomeStepUpRequired:
		commonerrors.HandleError(c, commonerrors.StepUpRequired(fe.RedirectTo))

	case flow.OutcomeForbidden:
		commonerrors.HandleError(c, commonerrors.SessionInvalid(s.cfg.LoginURL))

	default:
		s.logger.Error("Unclassified provider failure",
			zap.String("kind", string(kind)),
			zap.Error(err))
		commonerrors.HandleError(c, commonerrors.UpstreamError(err))
	}
}
