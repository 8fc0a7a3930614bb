package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, "created", map[string]string{"id": "1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(201), body["code"])
	assert.Equal(t, "created", body["message"])
	assert.Equal(t, map[string]any{"id": "1"}, body["data"])
}

func TestError_OmitsData(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusForbidden, "forbidden")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"code":403,"message":"forbidden"}`, rec.Body.String())
}

func TestUnauthorized_SetsBearerChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	Unauthorized(rec, "unauthorized")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, BearerChallenge, rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"code":401,"message":"unauthorized"}`, rec.Body.String())
}

func TestJSON_UnencodableDataIsInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, "ok", map[string]any{"ch": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal server error"}`, rec.Body.String())
}
