package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/repository"
	"github.com/xiaot623/supportdesk/internal/service"
	"github.com/xiaot623/supportdesk/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	svc, _ := helpers.NewMockService(t)
	h := NewHandler(svc, repository.DemoUserID, nil)
	e := echo.New()
	h.RegisterRoutes(e, nil, nil)
	return h, e
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSendMessage(t *testing.T) {
	_, e := newTestHandler(t)

	rec := do(e, http.MethodPost, "/v1/chat/messages", `{"content":"Where is my order ORD-9283?"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ConversationID)
	require.Len(t, resp.AgentMessages, 2)
	assert.Equal(t, "order", resp.AgentMessages[1].Role)
	require.NotNil(t, resp.AgentMessages[1].Data)

	// The raw body uses the {type, content} card encoding.
	var raw struct {
		AgentMessages []struct {
			Data *struct {
				Type    string          `json:"type"`
				Content json.RawMessage `json:"content"`
			} `json:"data"`
		} `json:"agentMessages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "order", raw.AgentMessages[1].Data.Type)
	assert.Contains(t, string(raw.AgentMessages[1].Data.Content), `"id":"ORD-9283"`)
}

func TestSendMessageErrors(t *testing.T) {
	_, e := newTestHandler(t)

	rec := do(e, http.MethodPost, "/v1/chat/messages", `{"content":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/v1/chat/messages", `{"conversationId":"nope","content":"hi"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/v1/chat/messages", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamMessage(t *testing.T) {
	_, e := newTestHandler(t)

	rec := do(e, http.MethodPost, "/v1/chat/messages/stream", `{"content":"Where is my order ORD-9283?"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: routing\n"), body)
	assert.Contains(t, body, "event: delta\n")
	assert.Contains(t, body, "event: data\n")
	assert.Contains(t, body, "event: done\n")
	assert.NotContains(t, body, "event: error\n")
}

func TestStreamMessageBadRequest(t *testing.T) {
	_, e := newTestHandler(t)

	rec := do(e, http.MethodPost, "/v1/chat/messages/stream", `{"content":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestConversationEndpoints(t *testing.T) {
	_, e := newTestHandler(t)

	rec := do(e, http.MethodGet, "/v1/chat/conversations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []domain.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 1)

	// Other users see nothing.
	rec = do(e, http.MethodGet, "/v1/chat/conversations", "", map[string]string{UserHeader: "stranger"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(e, http.MethodGet, "/v1/chat/conversations/"+convs[0].ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail domain.ConversationDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Len(t, detail.Messages, 3)

	rec = do(e, http.MethodGet, "/v1/chat/conversations/"+convs[0].ID, "", map[string]string{UserHeader: "stranger"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodDelete, "/v1/chat/conversations/"+convs[0].ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/v1/chat/conversations/"+convs[0].ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentEndpoints(t *testing.T) {
	_, e := newTestHandler(t)

	rec := do(e, http.MethodGet, "/v1/agents", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Agents []service.AgentInfo `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Agents, 4)

	rec = do(e, http.MethodGet, "/v1/agents/billing", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var billing service.AgentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &billing))
	assert.Equal(t, "Billing Agent", billing.Name)

	rec = do(e, http.MethodGet, "/v1/agents/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunEndpoints(t *testing.T) {
	_, e := newTestHandler(t)

	rec := do(e, http.MethodPost, "/v1/chat/messages", `{"content":"hello"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = do(e, http.MethodGet, "/v1/runs/"+resp.RunID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run domain.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, domain.RunStatusDone, run.Status)

	rec = do(e, http.MethodGet, "/v1/runs/"+resp.RunID+"/events?types=routed,run_done", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events.Events, 2)
	assert.ElementsMatch(t,
		[]domain.EventType{domain.EventTypeRouted, domain.EventTypeRunDone},
		[]domain.EventType{events.Events[0].Type, events.Events[1].Type})

	rec = do(e, http.MethodGet, "/v1/runs/r1/events", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListModels(t *testing.T) {
	_, e := newTestHandler(t)

	rec := do(e, http.MethodGet, "/v1/models", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mock-support-model")
}
