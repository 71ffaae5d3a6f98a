package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JalalSordo/para/services"
	"github.com/JalalSordo/para/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name              string
		err               error
		expectedStatus    int
		expectedError     string
		expectedMessage   string
		expectedChallenge string
	}{
		{
			name:            "unknown app",
			err:             services.ErrAppNotFound,
			expectedStatus:  http.StatusBadRequest,
			expectedError:   "bad_request",
			expectedMessage: "User belongs to an app that does not exist.",
		},
		{
			name:              "unknown user",
			err:               services.ErrUserNotFound,
			expectedStatus:    http.StatusUnauthorized,
			expectedError:     "unauthorized",
			expectedChallenge: `Bearer error="invalid_token"`,
		},
		{
			name:           "generic not found",
			err:            services.NewDomainError(services.ErrorTypeNotFound, "route not found", nil),
			expectedStatus: http.StatusNotFound,
			expectedError:  "not_found",
		},
		{
			name:            "missing parameters",
			err:             services.ErrMissingParameters,
			expectedStatus:  http.StatusBadRequest,
			expectedError:   "bad_request",
			expectedMessage: "Some of the required query parameters 'provider', 'appid', 'token', are missing.",
		},
		{
			name:            "provider rejected credential",
			err:             services.NewDomainError(services.ErrorTypeAuthenticationFailed, "Failed to authenticate user with github", errors.New("401")),
			expectedStatus:  http.StatusBadRequest,
			expectedError:   "bad_request",
			expectedMessage: "Failed to authenticate user with github",
		},
		{
			name:              "must reauthenticate",
			err:               services.ErrMustReauthenticate.Wrap(errors.New("revoked")),
			expectedStatus:    http.StatusUnauthorized,
			expectedError:     "unauthorized",
			expectedMessage:   "User must reauthenticate.",
			expectedChallenge: `Bearer error="invalid_token"`,
		},
		{
			name:              "reauthenticate wrapping deleted app",
			err:               services.ErrMustReauthenticate.Wrap(services.ErrAppNotFound),
			expectedStatus:    http.StatusUnauthorized,
			expectedError:     "unauthorized",
			expectedMessage:   "User must reauthenticate.",
			expectedChallenge: `Bearer error="invalid_token"`,
		},
		{
			name:              "invalid token on revoke",
			err:               services.ErrInvalidToken,
			expectedStatus:    http.StatusUnauthorized,
			expectedError:     "unauthorized",
			expectedMessage:   "Invalid or expired token.",
			expectedChallenge: "Bearer",
		},
		{
			name:           "bad admin key",
			err:            services.ErrInvalidAdminKey,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "unauthorized",
		},
		{
			name:           "forbidden error",
			err:            services.NewDomainError(services.ErrorTypeForbidden, "access forbidden", nil),
			expectedStatus: http.StatusForbidden,
			expectedError:  "forbidden",
		},
		{
			name:           "rate limit error",
			err:            services.ErrRateLimitExceeded,
			expectedStatus: http.StatusTooManyRequests,
			expectedError:  "rate_limit_exceeded",
		},
		{
			name:           "conflict error",
			err:            services.ErrAppExists,
			expectedStatus: http.StatusConflict,
			expectedError:  "conflict",
		},
		{
			name:            "signing failure",
			err:             services.ErrSigningFailed.Wrap(errors.New("hmac")),
			expectedStatus:  http.StatusInternalServerError,
			expectedError:   "internal_error",
			expectedMessage: "Unable to sign token",
		},
		{
			name:            "internal error hides cause",
			err:             services.ErrDatabaseError.Wrap(errors.New("password authentication failed")),
			expectedStatus:  http.StatusInternalServerError,
			expectedError:   "internal_error",
			expectedMessage: "An internal error occurred",
		},
		{
			name:           "unknown error",
			err:            errors.New("some unknown error"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			err := json.NewDecoder(w.Body).Decode(&response)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedError, response.Error)
			assert.NotEmpty(t, response.Message)
			if tt.expectedMessage != "" {
				assert.Equal(t, tt.expectedMessage, response.Message)
			}
			assert.Equal(t, tt.expectedChallenge, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestHandleServiceErrorWithDetails(t *testing.T) {
	logger := zap.NewNop()

	// Create error with details
	err := services.ErrRateLimitExceeded.WithDetail("limit", 100).WithDetail("window", "minute")

	w := httptest.NewRecorder()
	HandleServiceError(w, err, logger)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var response utils.ErrorResponse
	err2 := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err2)

	assert.Equal(t, "rate_limit_exceeded", response.Error)
	assert.NotNil(t, response.Details)
	assert.Equal(t, float64(100), response.Details["limit"])
	assert.Equal(t, "minute", response.Details["window"])
}

func TestHandleServiceErrorNil(t *testing.T) {
	logger := zap.NewNop()
	w := httptest.NewRecorder()

	HandleServiceError(w, nil, logger)

	// Should not write anything
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("custom validation error", func(t *testing.T) {
		fields := map[string]string{
			"email": "email is required",
			"name":  "name must be at least 3 characters",
		}
		err := &utils.ValidationError{
			Message: "Validation failed",
			Fields:  fields,
		}

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		err2 := json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err2)

		assert.Equal(t, "bad_request", response.Error)
		assert.Equal(t, "Validation failed", response.Message)
		assert.NotNil(t, response.Details)
		assert.Equal(t, "email is required", response.Details["email"])
		assert.Equal(t, "name must be at least 3 characters", response.Details["name"])
	})

	t.Run("generic error", func(t *testing.T) {
		err := errors.New("generic validation error")

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		err2 := json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err2)

		assert.Equal(t, "bad_request", response.Error)
		assert.Equal(t, "generic validation error", response.Message)
	})
}
