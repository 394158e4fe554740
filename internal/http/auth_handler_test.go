package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"cosmic-auth/internal/domain"
	"cosmic-auth/internal/email"
	"cosmic-auth/internal/repository"
	"cosmic-auth/internal/service"
	"cosmic-auth/internal/sysapi"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryUserRepo struct {
	byID       map[string]domain.User
	byUsername map[string]string
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		byID:       make(map[string]domain.User),
		byUsername: make(map[string]string),
	}
}

func (m *memoryUserRepo) Create(_ context.Context, user domain.User) error {
	if _, taken := m.byUsername[user.Username]; taken {
		return repository.ErrDuplicate
	}
	m.byID[user.ID] = user
	m.byUsername[user.Username] = user.ID
	return nil
}

func (m *memoryUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *memoryUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	id, ok := m.byUsername[username]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.byID[id], nil
}

func (m *memoryUserRepo) ExistsIdentity(_ context.Context, username, displayName, personalEmail, systemEmail, secondaryID string) (bool, error) {
	for _, u := range m.byID {
		if u.Username == username || u.DisplayName == displayName ||
			u.PersonalEmail == personalEmail || u.SystemEmail == systemEmail {
			return true, nil
		}
		if secondaryID != "" && u.SecondaryID == secondaryID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUserRepo) UpdateStatus(_ context.Context, id string, status domain.Status, details domain.StatusDetails) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.RegistrationStatus = status
	user.StatusDetails = details
	m.byID[id] = user
	return nil
}

func (m *memoryUserRepo) SetVerificationToken(_ context.Context, id, token string, expires time.Time) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.VerificationToken = token
	user.VerificationExpires = &expires
	m.byID[id] = user
	return nil
}

func (m *memoryUserRepo) MarkVerified(_ context.Context, id string, verifiedAt time.Time) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.IsVerified = true
	user.VerificationToken = ""
	user.VerificationExpires = nil
	user.VerifiedAt = &verifiedAt
	m.byID[id] = user
	return nil
}

func (m *memoryUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.LastLoginAt = &at
	m.byID[id] = user
	return nil
}

type stubProvisioner struct{}

func (stubProvisioner) CreateSystemUser(_ context.Context, username, email, _ string) (sysapi.SystemUser, error) {
	return sysapi.SystemUser{Username: username, Email: email}, nil
}

func (stubProvisioner) CheckSystemUser(context.Context, string, string) (sysapi.SystemUserStatus, error) {
	return sysapi.SystemUserStatus{Exists: true, Maildir: true}, nil
}

func (stubProvisioner) RemoveSystemUser(context.Context, string, string) error { return nil }

type captureSender struct {
	lastToken string
}

func (s *captureSender) SendVerification(_ context.Context, msg email.VerificationEmail) error {
	s.lastToken = msg.Token
	return nil
}

type testEnv struct {
	router  *gin.Engine
	repo    *memoryUserRepo
	regServ *service.RegistrationService
	jwtServ *service.JWTService
	sender  *captureSender
}

func newTestEnv(t *testing.T, limiter service.RegisterRateLimiter) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	repo := newMemoryUserRepo()
	sender := &captureSender{}

	statusServ := service.NewStatusService(logger, repo, false)
	jwtServ := service.NewJWTService("test-secret", 15*time.Minute, time.Hour)
	regServ := service.NewRegistrationService(logger, repo, statusServ, jwtServ, stubProvisioner{}, sender, service.RegistrationConfig{})

	authH := NewAuthHandler(logger, regServ, jwtServ, limiter, true)
	statusH := NewStatusHandler(logger, regServ, statusServ, true)
	router := NewRouter(logger, authH, statusH, jwtServ)

	return &testEnv{router: router, repo: repo, regServ: regServ, jwtServ: jwtServ, sender: sender}
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, parsed
}

func registerPayload() map[string]string {
	return map[string]string{
		"username":       "alice",
		"display_name":   "Alice Liddell",
		"personal_email": "alice@example.com",
		"password":       "wonderland1",
		"secondary_id":   "+12025550143",
	}
}

func TestRegisterEndpoint_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.doJSON(t, http.MethodPost, "/register", registerPayload(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body)
	}
	if data["username"] != "alice" || data["system_email"] != "alice@ld-csmlmail.test" {
		t.Fatalf("unexpected profile %v", data)
	}
	if data["registration_status"] != string(domain.StatusVerificationSent) {
		t.Fatalf("expected VERIFICATION_SENT, got %v", data["registration_status"])
	}
	if _, leaked := data["password_hash"]; leaked {
		t.Fatalf("password hash leaked in response")
	}
	if _, leaked := data["verification_token"]; leaked {
		t.Fatalf("verification token leaked in response")
	}
}

func TestRegisterEndpoint_Duplicate(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.doJSON(t, http.MethodPost, "/register", registerPayload(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register: got %d", rec.Code)
	}

	payload := registerPayload()
	payload["display_name"] = "Other Person"
	payload["personal_email"] = "other@example.com"
	payload["secondary_id"] = "+12025550199"
	rec, body := env.doJSON(t, http.MethodPost, "/register", payload, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["success"] != false || body["message"] != "Username, display name, or email already in use" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRegisterEndpoint_InvalidPayload(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []func(map[string]string){
		func(p map[string]string) { p["username"] = "Not Valid" },
		func(p map[string]string) { p["personal_email"] = "not-an-email" },
		func(p map[string]string) { p["password"] = "short" },
		func(p map[string]string) { delete(p, "secondary_id") },
	}
	for i, mutate := range cases {
		payload := registerPayload()
		mutate(payload)
		rec, body := env.doJSON(t, http.MethodPost, "/register", payload, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, rec.Code)
		}
		if body["success"] != false {
			t.Fatalf("case %d: expected error envelope, got %v", i, body)
		}
	}
}

func TestRegisterEndpoint_RateLimited(t *testing.T) {
	env := newTestEnv(t, service.NewRegisterRateLimiter(time.Minute, 1))

	rec, _ := env.doJSON(t, http.MethodPost, "/register", registerPayload(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register: got %d", rec.Code)
	}

	payload := registerPayload()
	payload["username"] = "bob"
	payload["display_name"] = "Bob Builder"
	payload["personal_email"] = "bob@example.com"
	payload["secondary_id"] = "+12025550188"
	rec, body := env.doJSON(t, http.MethodPost, "/register", payload, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if body["message"] != "too many registration attempts" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestVerifyEmailEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec, _ := env.doJSON(t, http.MethodPost, "/register", registerPayload(), nil); rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d", rec.Code)
	}

	rec, body := env.doJSON(t, http.MethodPost, "/verify-email", map[string]string{"token": "garbage"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for garbage token, got %d", rec.Code)
	}
	if body["message"] != "Invalid or expired verification token" {
		t.Fatalf("unexpected body %v", body)
	}

	rec, body = env.doJSON(t, http.MethodPost, "/verify-email", map[string]string{"token": env.sender.lastToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]any)
	if data["message"] != "Email verified successfully" {
		t.Fatalf("unexpected body %v", body)
	}
	user := data["user"].(map[string]any)
	if user["registration_status"] != string(domain.StatusVerified) {
		t.Fatalf("unexpected user %v", user)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec, _ := env.doJSON(t, http.MethodPost, "/register", registerPayload(), nil); rec.Code != http.StatusCreated {
		t.Fatalf("register failed")
	}

	// Sin verificar el email, el login se rechaza con 403.
	rec, body := env.doJSON(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "wonderland1"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if body["message"] != "Please verify your email before logging in" {
		t.Fatalf("unexpected body %v", body)
	}

	if rec, _ := env.doJSON(t, http.MethodPost, "/verify-email", map[string]string{"token": env.sender.lastToken}, nil); rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d", rec.Code)
	}

	rec, body = env.doJSON(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "wrong-password"}, nil)
	if rec.Code != http.StatusUnauthorized || body["message"] != "Invalid credentials" {
		t.Fatalf("expected 401 Invalid credentials, got %d %v", rec.Code, body)
	}

	rec, body = env.doJSON(t, http.MethodPost, "/login", map[string]string{"username": "nobody", "password": "whatever1"}, nil)
	if rec.Code != http.StatusUnauthorized || body["message"] != "Invalid credentials" {
		t.Fatalf("expected identical response for unknown user, got %d %v", rec.Code, body)
	}

	rec, body = env.doJSON(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "wonderland1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]any)
	tokens := data["tokens"].(map[string]any)
	if tokens["access_token"] == "" || tokens["refresh_token"] == "" {
		t.Fatalf("expected token pair, got %v", tokens)
	}
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec, _ := env.doJSON(t, http.MethodPost, "/register", registerPayload(), nil); rec.Code != http.StatusCreated {
		t.Fatalf("register failed")
	}
	if rec, _ := env.doJSON(t, http.MethodPost, "/verify-email", map[string]string{"token": env.sender.lastToken}, nil); rec.Code != http.StatusOK {
		t.Fatalf("verify failed")
	}
	_, body := env.doJSON(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "wonderland1"}, nil)
	tokens := body["data"].(map[string]any)["tokens"].(map[string]any)
	refresh := tokens["refresh_token"].(string)

	rec, body := env.doJSON(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rotated := body["data"].(map[string]any)["tokens"].(map[string]any)
	newRefresh := rotated["refresh_token"].(string)

	// El token anterior quedo revocado por la rotacion.
	rec, _ = env.doJSON(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected old refresh rejected, got %d", rec.Code)
	}

	rec, body = env.doJSON(t, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": newRefresh}, nil)
	if rec.Code != http.StatusOK || body["message"] != "Logged out successfully" {
		t.Fatalf("logout: got %d %v", rec.Code, body)
	}
	rec, _ = env.doJSON(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": newRefresh}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected logged-out refresh rejected, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, body := env.doJSON(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" || body["service"] != "auth" {
		t.Fatalf("unexpected body %v", body)
	}
}
