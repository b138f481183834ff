package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atrium-works/pulse/internal/domain/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type stubSessionService struct {
	duration    int64
	durationErr error
}

func (s *stubSessionService) StartSession(ctx context.Context, userID uuid.UUID, client datatypes.JSON) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (s *stubSessionService) TickDuration(ctx context.Context, sessionID uuid.UUID, startAt time.Time) {
}

func (s *stubSessionService) EndSession(ctx context.Context, sessionID uuid.UUID, startAt time.Time, reason session.EndReason) error {
	return nil
}

func (s *stubSessionService) CurrentDuration(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.duration, s.durationErr
}

func (s *stubSessionService) ListSessionsSince(ctx context.Context, filter session.SessionFilter) ([]session.Session, error) {
	return nil, nil
}

func (s *stubSessionService) CloseOpenForUser(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func currentDurationRequest(svc session.Service) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/sessions/current/duration", nil)
	c.Set("user_id", uuid.New())

	NewSessionHandler(nil, svc, zap.NewNop()).CurrentDuration(c)
	return w
}

func TestCurrentDurationReadsStore(t *testing.T) {
	w := currentDurationRequest(&stubSessionService{duration: 75})
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			DurationSeconds int64 `json:"duration_seconds"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(75), body.Data.DurationSeconds)
}

func TestCurrentDurationWithoutStoredSession(t *testing.T) {
	// A login whose session creation failed soft still has a runtime; the
	// endpoint must answer from the store and report not found.
	w := currentDurationRequest(&stubSessionService{durationErr: session.ErrSessionNotFound})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
