package http_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sagarc03/mediareceiver"
	mrhttp "github.com/sagarc03/mediareceiver/http"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"not found", mediareceiver.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("get upload: %w", mediareceiver.ErrNotFound), http.StatusNotFound, "not_found"},
		{"invalid input", mediareceiver.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{"ledger disabled", fmt.Errorf("list uploads: %w", mediareceiver.ErrLedgerDisabled), http.StatusNotFound, "ledger_disabled"},
		{"joined", errors.Join(errors.New("context"), mediareceiver.ErrNotFound), http.StatusNotFound, "not_found"},
		{"internal", errors.New("some unexpected error"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			mrhttp.HandleError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"`+tt.wantBody+`"`)
		})
	}
}

func TestWriteError_Success(t *testing.T) {
	rec := httptest.NewRecorder()

	mrhttp.WriteError(rec, http.StatusBadRequest, "bad_request", "Invalid request")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"error":"bad_request"`)
	assert.Contains(t, rec.Body.String(), `"message":"Invalid request"`)
}

func TestWriteJSON_Success(t *testing.T) {
	rec := httptest.NewRecorder()

	err := mrhttp.WriteJSON(rec, http.StatusOK, map[string]string{"key": "value"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"key":"value"`)
}

func TestWriteJSON_EncodingError(t *testing.T) {
	rec := httptest.NewRecorder()

	// Channels cannot be JSON encoded
	err := mrhttp.WriteJSON(rec, http.StatusOK, make(chan int))

	assert.Error(t, err)
}
