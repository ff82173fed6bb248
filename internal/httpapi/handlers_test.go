package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/config"
	"callbridge/internal/identity"
	"callbridge/internal/session"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePresence struct {
	online map[int64]bool
	busy   map[int64]bool
}

func (p *fakePresence) OnlineSet(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = p.online[id]
	}
	return out, nil
}

func (p *fakePresence) InCall(ctx context.Context, userID int64) (bool, error) {
	return p.busy[userID], nil
}

type apiFixture struct {
	router   *gin.Engine
	users    *identity.MemoryRepo
	sessions *session.Service
	manager  *auth.Manager
	presence *fakePresence
	auditLog *audit.MemoryRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	manager, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	userRepo := identity.NewMemoryRepo()
	users := identity.NewService(userRepo)
	store := session.NewMemoryStore()
	sessions := session.NewService(store, users)
	presence := &fakePresence{online: map[int64]bool{}, busy: map[int64]bool{}}
	auditRepo := audit.NewMemoryRepo()

	h := Handlers{
		Users:    users,
		Sessions: sessions,
		Auth:     manager,
		Presence: presence,
		Audit:    audit.NewService(auditRepo),
	}

	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(auth.RequireAccessToken(manager))
	{
		api.GET("/users", h.ListUsers)
		api.POST("/call/:callee_id", h.InitiateCall)
		api.GET("/call-status/:session_id", h.CallStatus)
		api.POST("/answer-call/:session_id", h.AnswerCall)
		api.POST("/reject-call/:session_id", h.RejectCall)
	}

	return &apiFixture{
		router:   r,
		users:    userRepo,
		sessions: sessions,
		manager:  manager,
		presence: presence,
		auditLog: auditRepo,
	}
}

// seedUser inserts an account directly, skipping the expensive registration
// path. The returned token authenticates as that user.
func (f *apiFixture) seedUser(t *testing.T, username string) (identity.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u, err := f.users.Insert(context.Background(), identity.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	pair, err := f.manager.IssuePair(time.Now(), auth.FormatUserID(u.ID), u.Username)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	return u, pair.AccessToken
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestRegisterAndLogin(t *testing.T) {
	if testing.Short() {
		t.Skip("registration generates an RSA key pair")
	}
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "s3cret",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["public_key"] == "" {
		t.Fatalf("expected public key in response")
	}

	// Duplicate username is a conflict.
	w = f.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "s3cret",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["access_token"] == "" || body["refresh_token"] == "" {
		t.Fatalf("missing tokens: %v", body)
	}

	w = f.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/register", "", map[string]string{"username": "", "email": "", "password": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty register: %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)
	if w := f.do(t, http.MethodGet, "/api/users", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/users", "not-a-jwt", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", w.Code)
	}
}

func TestListUsersExcludesSelfAndDecoratesPresence(t *testing.T) {
	f := newAPIFixture(t)
	_, aliceTok := f.seedUser(t, "alice")
	bob, _ := f.seedUser(t, "bob")
	f.seedUser(t, "carol")
	f.presence.online[bob.ID] = true

	w := f.do(t, http.MethodGet, "/api/users", aliceTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Users []identity.Listing `json:"users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Users) != 2 {
		t.Fatalf("expected 2 users, got %v", resp.Users)
	}
	for _, u := range resp.Users {
		if u.Username == "alice" {
			t.Fatalf("requester must be excluded")
		}
		if u.Username == "bob" && !u.Online {
			t.Fatalf("bob should be online")
		}
		if u.Username == "carol" && u.Online {
			t.Fatalf("carol should be offline")
		}
	}
}

func TestInitiateCall(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.seedUser(t, "alice")
	bob, _ := f.seedUser(t, "bob")

	w := f.do(t, http.MethodPost, "/api/call/"+auth.FormatUserID(bob.ID), aliceTok, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("call: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "pending" || body["session_id"] == "" {
		t.Fatalf("unexpected session: %v", body)
	}
	if body["caller_id"] != float64(alice.ID) || body["callee_id"] != float64(bob.ID) {
		t.Fatalf("participants wrong: %v", body)
	}

	// Self-call is invalid.
	if w := f.do(t, http.MethodPost, "/api/call/"+auth.FormatUserID(alice.ID), aliceTok, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("self call: %d", w.Code)
	}

	// Unknown callee.
	if w := f.do(t, http.MethodPost, "/api/call/9999", aliceTok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown callee: %d", w.Code)
	}

	// Busy callee is refused before a session is created.
	f.presence.busy[bob.ID] = true
	if w := f.do(t, http.MethodPost, "/api/call/"+auth.FormatUserID(bob.ID), aliceTok, nil); w.Code != http.StatusConflict {
		t.Fatalf("busy callee: %d", w.Code)
	}
}

func TestAnswerCall(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.seedUser(t, "alice")
	bob, bobTok := f.seedUser(t, "bob")

	cs, err := f.sessions.Create(context.Background(), alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The caller cannot answer their own call.
	w := f.do(t, http.MethodPost, "/api/answer-call/"+cs.SessionID, aliceTok, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("caller answer: %d", w.Code)
	}
	if events := f.auditLog.Events(); len(events) != 1 || events[0].Type != audit.EventTypeUnauthorizedTransition {
		t.Fatalf("expected unauthorized transition audit, got %+v", events)
	}

	w = f.do(t, http.MethodPost, "/api/answer-call/"+cs.SessionID, bobTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("callee answer: %d %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["status"] != "active" {
		t.Fatalf("expected active, got %v", body)
	}

	// Answering twice conflicts.
	if w := f.do(t, http.MethodPost, "/api/answer-call/"+cs.SessionID, bobTok, nil); w.Code != http.StatusConflict {
		t.Fatalf("double answer: %d", w.Code)
	}
}

func TestRejectCall(t *testing.T) {
	f := newAPIFixture(t)
	alice, _ := f.seedUser(t, "alice")
	bob, bobTok := f.seedUser(t, "bob")

	cs, _ := f.sessions.Create(context.Background(), alice.ID, bob.ID)

	w := f.do(t, http.MethodPost, "/api/reject-call/"+cs.SessionID, bobTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: %d %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["status"] != "rejected" {
		t.Fatalf("expected rejected, got %v", body)
	}

	got, err := f.sessions.Get(context.Background(), cs.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EndedAt == nil {
		t.Fatalf("reject must set EndedAt")
	}
}

func TestCallStatus(t *testing.T) {
	f := newAPIFixture(t)
	alice, aliceTok := f.seedUser(t, "alice")
	bob, _ := f.seedUser(t, "bob")
	_, carolTok := f.seedUser(t, "carol")

	cs, _ := f.sessions.Create(context.Background(), alice.ID, bob.ID)

	w := f.do(t, http.MethodGet, "/api/call-status/"+cs.SessionID, aliceTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["caller_name"] != "alice" || body["callee_name"] != "bob" {
		t.Fatalf("names missing: %v", body)
	}
	if body["status"] != "pending" {
		t.Fatalf("unexpected status: %v", body)
	}

	// Outsiders get nothing.
	if w := f.do(t, http.MethodGet, "/api/call-status/"+cs.SessionID, carolTok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("outsider status: %d", w.Code)
	}

	// Unknown session.
	if w := f.do(t, http.MethodGet, "/api/call-status/does-not-exist", aliceTok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown session: %d", w.Code)
	}
}
