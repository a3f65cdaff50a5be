package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clinic-messaging/backend/internal/authz"
	"clinic-messaging/backend/internal/messaging/domain"
	"clinic-messaging/backend/internal/messaging/service"
	"clinic-messaging/backend/internal/realtime"
	"clinic-messaging/backend/internal/server/middleware"
)

type memRepo struct {
	mu       sync.Mutex
	threads  map[string]*domain.Thread
	messages []*domain.Message
}

func newMemRepo() *memRepo {
	return &memRepo{threads: map[string]*domain.Thread{}}
}

func (r *memRepo) GetThread(ctx context.Context, id string) (*domain.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[id], nil
}

func (r *memRepo) GetThreadByParticipants(ctx context.Context, doctorID, patientID string) (*domain.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.threads {
		if t.DoctorID == doctorID && t.PatientID == patientID {
			return t, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateThread(ctx context.Context, t *domain.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[t.ID] = t
	return nil
}

func (r *memRepo) ListThreadsByUser(ctx context.Context, userID string) ([]*domain.ThreadPreview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ThreadPreview
	for _, t := range r.threads {
		if t.DoctorID == userID || t.PatientID == userID {
			out = append(out, &domain.ThreadPreview{Thread: *t})
		}
	}
	return out, nil
}

func (r *memRepo) CreateMessage(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return nil
}

func (r *memRepo) ListMessages(ctx context.Context, threadID string, limit int, before time.Time) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) MarkThreadRead(ctx context.Context, threadID, readerID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.ThreadID == threadID && m.SenderID != readerID && m.ReadAt == nil {
			t := at
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

type nopNotifier struct{}

func (nopNotifier) SendToUser(ctx context.Context, userID string, ev realtime.Event)    {}
func (nopNotifier) BroadcastToThread(ctx context.Context, t string, ev realtime.Event, x string) {}

type participantEval struct{}

func (participantEval) CanAccessThread(ctx context.Context, in authz.ThreadInput) (bool, error) {
	switch in.Role {
	case "doctor":
		return in.UserID == in.DoctorID, nil
	case "patient":
		return in.UserID == in.PatientID, nil
	}
	return false, nil
}

// identityStub injects a fixed identity the way the auth middleware would.
func identityStub(userID, role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.WithIdentity(r.Context(), userID, role, "jti-"+userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newFixture(t *testing.T, userID, role string) (*httptest.Server, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc := service.NewMessagingService(repo, nopNotifier{}, participantEval{}, nil, zerolog.Nop())
	mux := http.NewServeMux()
	NewHTTP(svc, zerolog.Nop()).Register(mux)
	srv := httptest.NewServer(identityStub(userID, role, mux))
	t.Cleanup(srv.Close)
	return srv, repo
}

func seedThread(t *testing.T, repo *memRepo, id, doctorID, patientID string) {
	t.Helper()
	err := repo.CreateThread(context.Background(), &domain.Thread{
		ID: id, DoctorID: doctorID, PatientID: patientID, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed thread: %v", err)
	}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestCreateAndListThreads(t *testing.T) {
	srv, _ := newFixture(t, "doc-1", "doctor")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/threads", createThreadRequest{
		DoctorID: "doc-1", PatientID: "pat-1",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var thread domain.Thread
	if err := json.NewDecoder(resp.Body).Decode(&thread); err != nil {
		t.Fatalf("decode thread: %v", err)
	}

	resp2 := doJSON(t, http.MethodGet, srv.URL+"/api/threads", nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
	var previews []*domain.ThreadPreview
	if err := json.NewDecoder(resp2.Body).Decode(&previews); err != nil {
		t.Fatalf("decode previews: %v", err)
	}
	if len(previews) != 1 || previews[0].ID != thread.ID {
		t.Fatalf("unexpected previews: %+v", previews)
	}
}

func TestSendAndHistory(t *testing.T) {
	srv, repo := newFixture(t, "doc-1", "doctor")
	seedThread(t, repo, "th-1", "doc-1", "pat-1")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/threads/th-1/messages", sendMessageRequest{Body: "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var msg domain.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Body != "hello" || msg.SenderID != "doc-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	resp2 := doJSON(t, http.MethodGet, srv.URL+"/api/threads/th-1/messages", nil)
	defer resp2.Body.Close()
	var msgs []*domain.Message
	if err := json.NewDecoder(resp2.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}

func TestSendValidationErrors(t *testing.T) {
	srv, repo := newFixture(t, "doc-1", "doctor")
	seedThread(t, repo, "th-1", "doc-1", "pat-1")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/threads/th-1/messages", sendMessageRequest{Body: "  "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", resp.StatusCode)
	}

	resp2 := doJSON(t, http.MethodPost, srv.URL+"/api/threads/missing/messages", sendMessageRequest{Body: "hi"})
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing thread, got %d", resp2.StatusCode)
	}
}

func TestForbiddenForNonParticipant(t *testing.T) {
	srv, repo := newFixture(t, "doc-2", "doctor")
	seedThread(t, repo, "th-1", "doc-1", "pat-1")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/threads/th-1/messages", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestMarkRead(t *testing.T) {
	srv, repo := newFixture(t, "pat-1", "patient")
	seedThread(t, repo, "th-1", "doc-1", "pat-1")
	err := repo.CreateMessage(context.Background(), &domain.Message{
		ID: "m-1", ThreadID: "th-1", SenderID: "doc-1", Body: "hi", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/threads/th-1/read", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out markReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.MarkedRead != 1 {
		t.Fatalf("expected 1 marked read, got %d", out.MarkedRead)
	}
}

func TestInvalidQueryParams(t *testing.T) {
	srv, repo := newFixture(t, "doc-1", "doctor")
	seedThread(t, repo, "th-1", "doc-1", "pat-1")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/threads/th-1/messages?limit=0", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}

	resp2 := doJSON(t, http.MethodGet, srv.URL+"/api/threads/th-1/messages?before=yesterday", nil)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad before, got %d", resp2.StatusCode)
	}
}
