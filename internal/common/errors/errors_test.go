package errors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrBadRequest, "Test error", http.StatusBadRequest)

	assert.Equal(t, ErrBadRequest, err.Code)
	assert.Equal(t, "Test error", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Nil(t, err.Err)
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("original error")
	err := Wrap(originalErr, ErrInternal, "Wrapped error", http.StatusInternalServerError)

	assert.Equal(t, ErrInternal, err.Code)
	assert.Equal(t, "Wrapped error", err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, originalErr, err.Err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "Error without details",
			err: &AppError{
				Code:    ErrBadRequest,
				Message: "Invalid request",
			},
			expected: "[BAD_REQUEST] Invalid request",
		},
		{
			name: "Error with details",
			err: &AppError{
				Code:    ErrBadRequest,
				Message: "Invalid request",
				Details: "Missing field: email",
			},
			expected: "[BAD_REQUEST] Invalid request: Missing field: email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestFlowErrorConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"validation", FlowValidationFailed("The provided credentials are invalid."), ErrFlowValidation, http.StatusBadRequest},
		{"expired", FlowExpired(), ErrFlowExpired, http.StatusGone},
		{"step up", StepUpRequired("https://idp.example/login?aal=aal2"), ErrStepUp, http.StatusUnprocessableEntity},
		{"session invalid", SessionInvalid("https://app.example/login"), ErrSessionInvalid, http.StatusForbidden},
		{"upstream", UpstreamError(errors.New("connection refused")), ErrUpstream, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
		})
	}

	assert.Equal(t, "https://idp.example/login?aal=aal2", StepUpRequired("https://idp.example/login?aal=aal2").Metadata["redirect_to"])
	assert.Equal(t, "https://app.example/login", SessionInvalid("https://app.example/login").Metadata["login_url"])
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("AppError keeps code and status", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		HandleError(c, FlowExpired())

		assert.Equal(t, http.StatusGone, w.Code)
		assert.Contains(t, w.Body.String(), string(ErrFlowExpired))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		HandleError(c, errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), string(ErrInternal))
	})
}

func TestIsErrorCodeAndStatus(t *testing.T) {
	err := FlowValidationFailed("bad")
	assert.True(t, IsErrorCode(err, ErrFlowValidation))
	assert.False(t, IsErrorCode(err, ErrFlowExpired))
	assert.False(t, IsErrorCode(errors.New("x"), ErrFlowExpired))

	assert.Equal(t, http.StatusBadRequest, GetStatusCode(err))
	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(errors.New("x")))
}
