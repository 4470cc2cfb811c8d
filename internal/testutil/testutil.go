// Package testutil provides common test utilities and helpers for ServiceText
// tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmirchev92/servicetext/internal/analyzer"
	"github.com/dmirchev92/servicetext/internal/api"
	"github.com/dmirchev92/servicetext/internal/engine"
	"github.com/dmirchev92/servicetext/internal/flow"
	"github.com/dmirchev92/servicetext/internal/messaging"
	"github.com/dmirchev92/servicetext/internal/models"
	"github.com/dmirchev92/servicetext/internal/nlp"
	"github.com/dmirchev92/servicetext/internal/response"
	"github.com/dmirchev92/servicetext/internal/scheduler"
	"github.com/dmirchev92/servicetext/internal/store"
)

// TestBusinessContext is the fixed business context used across tests.
var TestBusinessContext = models.BusinessContext{
	AgentName:        "Иван Петров",
	Profession:       "електротехник",
	ExperienceYears:  12,
	WorkingHours:     "9:00-18:00",
	EmergencyContact: "+359888000111",
}

// Env bundles a fully wired engine over in-memory dependencies.
type Env struct {
	Engine     *engine.Engine
	Store      *store.InMemoryStore
	MsgService *messaging.MockService
	Dispatcher *messaging.Dispatcher
	Timer      *scheduler.SimpleTimer
}

// NewTestEngine creates an engine with in-memory store, mock messaging and a
// running dispatcher. The dispatcher is stopped via t.Cleanup.
func NewTestEngine(t *testing.T) *Env {
	t.Helper()

	st := store.NewInMemoryStore()
	msgService := messaging.NewMockService()
	dispatcher := messaging.NewDispatcher(msgService)
	dispatcher.Start(context.Background())
	t.Cleanup(dispatcher.Stop)

	timer := scheduler.NewSimpleTimer()
	t.Cleanup(timer.Stop)

	processor := nlp.NewProcessor(nlp.DefaultLexicon())
	fm := flow.NewManager(st, processor, analyzer.NewAnalyzer())
	contexts := engine.NewStaticContextProvider(TestBusinessContext)

	eng := engine.New(fm, st, response.NewGenerator(), dispatcher, timer, contexts)
	return &Env{Engine: eng, Store: st, MsgService: msgService, Dispatcher: dispatcher, Timer: timer}
}

// NewTestServer creates a test API server on top of NewTestEngine.
func NewTestServer(t *testing.T) (*api.Server, *Env) {
	t.Helper()
	env := NewTestEngine(t)
	return api.NewServer(env.Engine, env.MsgService), env
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// StartConversation creates a conversation for the given phone and fails the
// test on error.
func StartConversation(t *testing.T, env *Env, phone string) *models.Conversation {
	t.Helper()
	conv, err := env.Engine.HandleMissedCall(context.Background(), models.CallEvent{
		PhoneNumber: phone,
		Channel:     models.ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("failed to start conversation: %v", err)
	}
	return conv
}

// MustMarshalJSON marshals an object to JSON and fails the test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}
