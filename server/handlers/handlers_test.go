package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/fitpipe/server/cache"
	"github.com/san-kum/fitpipe/server/engine/enginetest"
	"github.com/san-kum/fitpipe/server/middleware"
	"github.com/san-kum/fitpipe/server/models"
	"github.com/san-kum/fitpipe/server/processor"
	"github.com/san-kum/fitpipe/server/storage"
)

const testAPIKey = "test-admin-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type acceptingScorer struct{}

func (acceptingScorer) Submit(_ context.Context, request *models.SubmissionRequest) (*models.SubmissionResponse, error) {
	return &models.SubmissionResponse{
		Status:   true,
		Feedback: models.SubmissionFeedback{Landmarks: "aligned", Angles: request.PoseKey + " ok"},
	}, nil
}

type testServer struct {
	router    *gin.Engine
	journal   *storage.Journal
	processor *processor.FrameProcessor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLogger(t, zap.NewNop())
}

func newTestServerWithLogger(t *testing.T, logger *zap.Logger) *testServer {
	t.Helper()

	journal, err := storage.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	sessions := cache.NewMemoryCache[*processor.Session](10, time.Minute, logger)
	t.Cleanup(func() { sessions.Close() })

	fp := processor.NewFrameProcessor(acceptingScorer{}, journal, sessions, &processor.ProcessorConfig{
		QueueSize:      8,
		Workers:        1,
		SubmitTimeout:  time.Second,
		ScoringEnabled: true,
	}, logger)
	sessions.OnEvict(fp.SessionEvicted)
	t.Cleanup(func() { fp.Shutdown(time.Second) })

	limiter := middleware.NewRateLimiter(1000, 1000, logger)
	t.Cleanup(limiter.Shutdown)

	router := NewRouter(
		NewSessionHandler(fp, journal, logger),
		NewWebSocketHandler(fp, nil, logger),
		limiter,
		nil,
		RouterConfig{
			MaxRequestSize: 1 << 20,
			RequestTimeout: 5 * time.Second,
			AdminAPIKey:    testAPIKey,
		},
		logger,
	)
	return &testServer{router: router, journal: journal, processor: fp}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func (s *testServer) createSession(t *testing.T, exercise string) models.SessionInfo {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{Exercise: exercise})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session = %d %s", w.Code, w.Body.String())
	}
	return decode[models.SessionInfo](t, w)
}

type attemptList struct {
	SessionID string                 `json:"session_id"`
	Attempts  []models.AttemptRecord `json:"attempts"`
}

func (s *testServer) waitForAttempts(t *testing.T, sessionID string, n int) attemptList {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		w := s.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/attempts", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list attempts = %d %s", w.Code, w.Body.String())
		}
		list := decode[attemptList](t, w)
		if len(list.Attempts) >= n {
			return list
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d attempts, want %d", len(list.Attempts), n)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSessionRepetitionFlow(t *testing.T) {
	s := newTestServer(t)
	info := s.createSession(t, "push_up")
	if info.ID == "" || info.Exercise != "push_up" || info.Phase != "waiting_to_start" {
		t.Fatalf("session = %+v", info)
	}

	var result models.FrameResult
	for _, f := range enginetest.PushUpRep() {
		w := s.do(t, http.MethodPost, "/api/v1/sessions/"+info.ID+"/frames", enginetest.Payload(f))
		if w.Code != http.StatusOK {
			t.Fatalf("frame = %d %s", w.Code, w.Body.String())
		}
		result = decode[models.FrameResult](t, w)
	}
	if result.Outcome != "completed" || result.RepCount != 1 || result.AttemptID == "" {
		t.Fatalf("last frame result = %+v", result)
	}

	list := s.waitForAttempts(t, info.ID, 1)
	rec := list.Attempts[0]
	if rec.ID != result.AttemptID || !rec.Scored || !rec.Accepted || rec.FrameCount != 4 {
		t.Errorf("attempt = %+v", rec)
	}
	if rec.AngleFeedback != "push_up ok" {
		t.Errorf("angle feedback = %q", rec.AngleFeedback)
	}

	w := s.do(t, http.MethodGet, "/api/v1/sessions/"+info.ID, nil)
	if got := decode[models.SessionInfo](t, w); got.RepCount != 1 {
		t.Errorf("snapshot rep_count = %d, want 1", got.RepCount)
	}
}

func TestSwitchExerciseResetsSession(t *testing.T) {
	s := newTestServer(t)
	info := s.createSession(t, "push_up")

	for _, f := range enginetest.PushUpRep() {
		s.do(t, http.MethodPost, "/api/v1/sessions/"+info.ID+"/frames", enginetest.Payload(f))
	}

	w := s.do(t, http.MethodPut, "/api/v1/sessions/"+info.ID+"/exercise", SwitchExerciseRequest{Exercise: "squat"})
	if w.Code != http.StatusOK {
		t.Fatalf("switch = %d %s", w.Code, w.Body.String())
	}
	got := decode[models.SessionInfo](t, w)
	if got.Exercise != "squat" || got.RepCount != 0 || got.Phase != "waiting_to_start" {
		t.Errorf("after switch = %+v", got)
	}

	w = s.do(t, http.MethodPut, "/api/v1/sessions/"+info.ID+"/exercise", SwitchExerciseRequest{Exercise: "burpee"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown exercise = %d, want 400", w.Code)
	}
}

func TestSessionErrors(t *testing.T) {
	s := newTestServer(t)
	info := s.createSession(t, "squat")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown exercise", http.MethodPost, "/api/v1/sessions", CreateSessionRequest{Exercise: "burpee"}, http.StatusBadRequest},
		{"missing exercise", http.MethodPost, "/api/v1/sessions", gin.H{}, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/v1/sessions/nope", nil, http.StatusNotFound},
		{"frame for unknown session", http.MethodPost, "/api/v1/sessions/nope/frames", enginetest.Payload(enginetest.PushUp(180)), http.StatusNotFound},
		{"short frame", http.MethodPost, "/api/v1/sessions/" + info.ID + "/frames",
			models.FramePayload{Keypoints: make([]models.Keypoint, 5)}, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/sessions/" + info.ID + "/attempts?limit=-1", nil, http.StatusBadRequest},
		{"delete", http.MethodDelete, "/api/v1/sessions/" + info.ID, nil, http.StatusNoContent},
		{"delete twice", http.MethodDelete, "/api/v1/sessions/" + info.ID, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(t, tt.method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAdminStatsRequiresKey(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/admin/stats", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no key = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with key = %d %s", rec.Code, rec.Body.String())
	}
	for _, section := range []string{`"processor"`, `"journal"`, `"queue"`, `"cache"`} {
		if !strings.Contains(rec.Body.String(), section) {
			t.Errorf("stats missing %s: %s", section, rec.Body.String())
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestWebSocketRepetition(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?exercise=push_up"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first wireMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Type != "state" {
		t.Fatalf("first message = %q, want state", first.Type)
	}

	for _, f := range enginetest.PushUpRep() {
		if err := conn.WriteJSON(ClientMessage{Type: "frame", Frame: enginetest.Payload(f)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var completed, feedback bool
	for !(completed && feedback) {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read (completed=%v feedback=%v): %v", completed, feedback, err)
		}
		switch msg.Type {
		case "rep_completed":
			completed = true
		case "feedback":
			var rec models.AttemptRecord
			if err := json.Unmarshal(msg.Data, &rec); err != nil {
				t.Fatal(err)
			}
			if !rec.Accepted || rec.Outcome != models.AttemptCompleted {
				t.Errorf("feedback = %+v", rec)
			}
			feedback = true
		case "error":
			t.Fatalf("server error: %s", msg.Data)
		}
	}

	if err := conn.WriteJSON(ClientMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	var pong wireMessage
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != "pong" {
		t.Errorf("ping reply = %q, %v", pong.Type, err)
	}
}

func TestWebSocketRejectsUnknownExercise(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?exercise=burpee"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response = %v", resp)
	}
}

func TestWebSocketReportsSessionFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := newTestServerWithLogger(t, zap.New(core))
	server := httptest.NewServer(s.router)
	defer server.Close()

	if err := s.processor.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?exercise=squat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" || !strings.Contains(string(msg.Data), "shutting down") {
		t.Errorf("message = %q %s, want a shutdown error", msg.Type, msg.Data)
	}
	if n := logs.FilterMessage("Failed to create websocket session").Len(); n != 1 {
		t.Errorf("logged %d session failures, want 1", n)
	}
}
