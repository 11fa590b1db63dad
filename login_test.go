package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateState(t *testing.T) {
	a, err := generateState()
	require.NoError(t, err)
	assert.Len(t, a, stateTokenBytes*2)

	b, err := generateState()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHandleOAuthCallback(t *testing.T) {
	const state = "expected-state"

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
		wantErr    bool
	}{
		{"valid code", "?state=expected-state&code=auth-code-1", http.StatusOK, "auth-code-1", false},
		{"state mismatch", "?state=wrong&code=auth-code-1", http.StatusBadRequest, "", true},
		{"provider error", "?state=expected-state&error=access_denied", http.StatusBadRequest, "", true},
		{"missing code", "?state=expected-state", http.StatusBadRequest, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resultCh := make(chan callbackResult, 1)

			r := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			w := httptest.NewRecorder()

			handleOAuthCallback(w, r, state, resultCh)

			assert.Equal(t, tt.wantStatus, w.Code)

			result := <-resultCh
			if tt.wantErr {
				assert.Error(t, result.err)
			} else {
				require.NoError(t, result.err)
				assert.Equal(t, tt.wantCode, result.code)
			}
		})
	}
}

func TestWaitForCallback_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := waitForCallback(ctx, make(chan callbackResult))
	assert.ErrorIs(t, err, context.Canceled)
}
