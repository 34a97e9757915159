package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/pkg/serverutils"
	"ai-chat-be/internal/service"
	"ai-chat-be/pkg/chat/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	service.IChatService
	sendErr   error
	selectErr error
	lastSend  *dto.SendMessageRequest
	lastList  *dto.ListSessionsRequest
}

func (s *stubService) SendMessage(ctx context.Context, req *dto.SendMessageRequest) (*dto.TurnResponse, error) {
	s.lastSend = req
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return &dto.TurnResponse{Reply: &dto.MessageResponse{Role: "model", Content: "Hi there!"}}, nil
}

func (s *stubService) SelectSession(ctx context.Context, id uuid.UUID) (*dto.TimelineResponse, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	return &dto.TimelineResponse{SessionId: &id, Phase: "idle"}, nil
}

func (s *stubService) ListSessions(ctx context.Context, req *dto.ListSessionsRequest) []*dto.SessionGroupResponse {
	s.lastList = req
	return []*dto.SessionGroupResponse{{Label: session.LabelToday}}
}

func newTestApp(svc service.IChatService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewChatController(svc).RegisterRoutes(app.Group("/api"))
	return app
}

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestSendMessageRoute(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc)

	req := httptest.NewRequest("POST", "/api/chat/v1/messages", strings.NewReader(`{"text":"Hello","thinking":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decode(t, resp.Body)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Hi there!", data["reply"].(map[string]interface{})["content"])
	require.NotNil(t, svc.lastSend.Thinking)
	assert.True(t, *svc.lastSend.Thinking)
}

func TestSendMessageValidation(t *testing.T) {
	app := newTestApp(&stubService{})

	req := httptest.NewRequest("POST", "/api/chat/v1/messages", strings.NewReader(`{"text":""}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{service.ErrTurnInProgress, fiber.StatusConflict},
		{service.ErrHistoryLoading, fiber.StatusConflict},
		{service.ErrSessionDeleting, fiber.StatusConflict},
		{service.ErrEmptyMessage, fiber.StatusBadRequest},
		{fmt.Errorf("%w: upstream 503", service.ErrTurnFailed), fiber.StatusBadGateway},
		{fmt.Errorf("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		app := newTestApp(&stubService{sendErr: tt.err})
		req := httptest.NewRequest("POST", "/api/chat/v1/messages", strings.NewReader(`{"text":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tt.code, resp.StatusCode, tt.err.Error())
	}
}

func TestSelectSessionRoute(t *testing.T) {
	app := newTestApp(&stubService{selectErr: session.ErrSessionNotFound})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/chat/v1/sessions/not-a-uuid/select", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/chat/v1/sessions/"+uuid.NewString()+"/select", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestListSessionsRoute(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/chat/v1/sessions?q=go&grouping=monthly", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "go", svc.lastList.Query)
	assert.Equal(t, "monthly", svc.lastList.Grouping)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/chat/v1/sessions?grouping=weekly", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
