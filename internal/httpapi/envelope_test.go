package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shortlyhq/shortly/internal/apierr"
)

func TestWriteOKEnvelopeShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeOK(w, map[string]string{"code": "abc1234"})

	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Equal(t, http.StatusOK, env.Status)
	require.NotEmpty(t, env.Time)
}

func TestWriteOKMessageIncludesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeOKMessage(w, "signed out", nil)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "signed out", env.Message)
}

func TestWriteErrorMapsKindToStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, apierr.Unauthorizedf("invalid credentials"))

	require.Equal(t, http.StatusUnauthorized, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Equal(t, "invalid credentials", env.Message)
}

func TestWriteErrorDefaultsUnknownErrorToInternal(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("some internal store failure"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
