package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/service"
)

func TestWriteAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{Logger: zerolog.Nop()}

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("team_id", "is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{apperr.NotFound("person", 4), http.StatusNotFound, "NOT_FOUND"},
		{apperr.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{apperr.Conflict("suggestion %d is already %s", 1, "approved"), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("insert: %w", apperr.ErrDuplicate), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("%w: timeout", service.ErrExtraction), http.StatusBadGateway, "AI_ERROR"},
		{apperr.Storage("list rules", errors.New("connection reset")), http.StatusInternalServerError, "DB_ERROR"},
		{apperr.Storage("reread decision log", apperr.ErrNotFound), http.StatusInternalServerError, "DB_ERROR"},
		{fmt.Errorf("get rule: %w", apperr.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			h.writeAppError(c, tc.err, "Request failed")

			assert.Equal(t, tc.status, w.Code)
			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
					Details any    `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}
