package handlers

import (
	"errors"
	"net/http"

	"github.com/JalalSordo/para/services"
	"github.com/JalalSordo/para/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// Token errors carry a WWW-Authenticate challenge.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	message := services.GetErrorMessage(err)

	var writeErr error
	switch {
	case errors.Is(err, services.ErrInvalidAdminKey):
		writeErr = utils.WriteUnauthorized(w, message)

	case errors.Is(err, services.ErrInvalidToken):
		writeErr = utils.WriteUnauthorizedChallenge(w, utils.ChallengeBearer, message)

	// checked before the not-found sentinels, which token errors may wrap
	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorizedChallenge(w, utils.ChallengeInvalidToken, message)

	case errors.Is(err, services.ErrAppNotFound):
		// an unknown app is a bad issuance request, not a missing resource
		writeErr = utils.WriteBadRequest(w, message, nil)

	case errors.Is(err, services.ErrUserNotFound):
		writeErr = utils.WriteUnauthorizedChallenge(w, utils.ChallengeInvalidToken, message)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err), services.IsAuthenticationFailedError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, message)

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, message, details)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsSigningFailureError(err):
		logger.Error("token signing failed", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "Unable to sign token")

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
