package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	owner := uuid.New()

	tests := []struct {
		name          string
		status        int
		withOwner     bool
		expectLevel   string
		expectContain []string
	}{
		{
			name:        "success with owner",
			status:      http.StatusCreated,
			withOwner:   true,
			expectLevel: `"level":"INFO"`,
			expectContain: []string{
				`"route":"/accounts/:id"`,
				`"owner_id":"` + owner.String() + `"`,
				`"idempotency_key":"key-9"`,
			},
		},
		{
			name:          "ledger rejection",
			status:        http.StatusUnprocessableEntity,
			withOwner:     true,
			expectLevel:   `"level":"WARN"`,
			expectContain: []string{`"status":422`},
		},
		{
			name:          "server error without owner",
			status:        http.StatusInternalServerError,
			expectLevel:   `"level":"ERROR"`,
			expectContain: []string{`"status":500`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuffer bytes.Buffer
			testLogger := slog.New(slog.NewJSONHandler(&logBuffer, nil))

			router := gin.New()
			router.Use(CorrelationID(), Logger(testLogger))
			if tt.withOwner {
				router.Use(OwnerID())
			}
			router.POST("/accounts/:id", func(c *gin.Context) {
				c.Status(tt.status)
			})

			req := httptest.NewRequest(http.MethodPost, "/accounts/42", nil)
			req.Header.Set(CorrelationIDHeader, "corr-1")
			req.Header.Set("Idempotency-Key", "key-9")
			if tt.withOwner {
				req.Header.Set(OwnerIDHeader, owner.String())
			}
			router.ServeHTTP(httptest.NewRecorder(), req)

			logOutput := logBuffer.String()
			assert.Contains(t, logOutput, tt.expectLevel)
			assert.Contains(t, logOutput, `"msg":"HTTP request"`)
			assert.Contains(t, logOutput, `"correlation_id":"corr-1"`)
			assert.Contains(t, logOutput, `"path":"/accounts/42"`)
			for _, want := range tt.expectContain {
				assert.Contains(t, logOutput, want)
			}
			if !tt.withOwner {
				assert.NotContains(t, logOutput, `"owner_id"`)
			}
		})
	}
}
