package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiceperfect/api/internal/logging"
)

// fakeRateLimiter reports canned limiter decisions and records the keys the
// handler throttles on.
type fakeRateLimiter struct {
	mu sync.Mutex

	ipExceeded      bool
	onCooldown      bool
	attemptsBlocked bool

	ipRequests     []string
	cooldownEmails []string
	attemptEmails  []string
	clearedEmails  []string
}

func (f *fakeRateLimiter) CheckIPRateLimit(_ context.Context, _, _ string) (bool, error) {
	return f.ipExceeded, nil
}

func (f *fakeRateLimiter) RecordIPRequest(_ context.Context, ip, purpose string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ipRequests = append(f.ipRequests, purpose+":"+ip)
	return nil
}

func (f *fakeRateLimiter) CheckEmailCooldown(_ context.Context, _ string) (bool, error) {
	return f.onCooldown, nil
}

func (f *fakeRateLimiter) SetEmailCooldown(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cooldownEmails = append(f.cooldownEmails, email)
	return nil
}

func (f *fakeRateLimiter) CheckEmailAttempts(_ context.Context, _ string) (bool, error) {
	return f.attemptsBlocked, nil
}

func (f *fakeRateLimiter) RecordEmailAttempt(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attemptEmails = append(f.attemptEmails, email)
	return nil
}

func (f *fakeRateLimiter) ClearEmailAttempts(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedEmails = append(f.clearedEmails, email)
	return nil
}

// newTestHandler builds a handler over in-memory fakes
func newTestHandler(t *testing.T) (*Handler, *serviceFixture, *fakeRateLimiter) {
	t.Helper()

	fx := newServiceFixture(t, 15*time.Minute)
	limiter := &fakeRateLimiter{}
	h := NewHandler(fx.service, limiter, logging.NewLogger(true), false, 30*24*time.Hour)
	return h, fx, limiter
}

func requestLoginEmail(t *testing.T, fx *serviceFixture, email string) sentLoginEmail {
	t.Helper()

	require.NoError(t, fx.service.RequestLogin(context.Background(), email))
	return fx.emails.waitForEmail(t)
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginHandler_Success(t *testing.T) {
	t.Parallel()

	h, fx, limiter := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Login(rec, postJSON("/auth/login", `{"email":"a@x.com"}`))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp["message"])

	sent := fx.emails.waitForEmail(t)
	assert.Equal(t, "a@x.com", sent.email)

	assert.Equal(t, []string{"a@x.com"}, limiter.cooldownEmails)
	assert.Len(t, limiter.ipRequests, 1)
}

func TestLoginHandler_SameResponseForAnyEmail(t *testing.T) {
	t.Parallel()

	h, fx, _ := newTestHandler(t)

	// Create an account, then request logins for it and for an address
	// nobody owns; the responses must be byte-identical.
	_, err := fx.users.CreateIfNotExists(context.Background(), "known@x.com", nil)
	require.NoError(t, err)

	known := httptest.NewRecorder()
	h.Login(known, postJSON("/auth/login", `{"email":"known@x.com"}`))

	unknown := httptest.NewRecorder()
	h.Login(unknown, postJSON("/auth/login", `{"email":"unknown@x.com"}`))

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
}

func TestLoginHandler_InvalidBody(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Login(rec, postJSON("/auth/login", `{"email":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler_EmailValidation(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	empty := httptest.NewRecorder()
	h.Login(empty, postJSON("/auth/login", `{"email":""}`))
	require.Equal(t, http.StatusBadRequest, empty.Code)
	assert.Contains(t, empty.Body.String(), "email_required")

	malformed := httptest.NewRecorder()
	h.Login(malformed, postJSON("/auth/login", `{"email":"not-an-email"}`))
	require.Equal(t, http.StatusBadRequest, malformed.Code)
	assert.Contains(t, malformed.Body.String(), "invalid_email_format")
}

func TestLoginHandler_IPRateLimited(t *testing.T) {
	t.Parallel()

	h, fx, limiter := newTestHandler(t)
	limiter.ipExceeded = true

	rec := httptest.NewRecorder()
	h.Login(rec, postJSON("/auth/login", `{"email":"a@x.com"}`))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 0, fx.tokens.count())
}

func TestLoginHandler_EmailOnCooldown(t *testing.T) {
	t.Parallel()

	h, fx, limiter := newTestHandler(t)
	limiter.onCooldown = true

	rec := httptest.NewRecorder()
	h.Login(rec, postJSON("/auth/login", `{"email":"a@x.com"}`))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "cooldown_active")
	assert.Equal(t, 0, fx.tokens.count())
}

func TestLoginHandler_CooldownKeyIsNormalized(t *testing.T) {
	t.Parallel()

	h, _, limiter := newTestHandler(t)

	// Padding and case must not mint a distinct cooldown key
	rec := httptest.NewRecorder()
	h.Login(rec, postJSON("/auth/login", `{"email":"  A@X.com "}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a@x.com"}, limiter.cooldownEmails)
}

func TestVerifyCodeHandler_Success(t *testing.T) {
	t.Parallel()

	h, fx, limiter := newTestHandler(t)
	sent := requestLoginEmail(t, fx, "a@x.com")

	rec := httptest.NewRecorder()
	h.VerifyCode(rec, postJSON("/auth/verify-code", `{"email":"a@x.com","code":"`+sent.code+`"}`))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)

	assert.Equal(t, []string{"a@x.com"}, limiter.attemptEmails)
	assert.Equal(t, []string{"a@x.com"}, limiter.clearedEmails)
}

func TestVerifyCodeHandler_WrongCode(t *testing.T) {
	t.Parallel()

	h, fx, limiter := newTestHandler(t)
	requestLoginEmail(t, fx, "a@x.com")

	rec := httptest.NewRecorder()
	h.VerifyCode(rec, postJSON("/auth/verify-code", `{"email":"a@x.com","code":"000000"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	// The failed attempt counts; nothing is cleared
	assert.Equal(t, []string{"a@x.com"}, limiter.attemptEmails)
	assert.Empty(t, limiter.clearedEmails)
}

func TestVerifyCodeHandler_AttemptsExhausted(t *testing.T) {
	t.Parallel()

	h, fx, limiter := newTestHandler(t)
	sent := requestLoginEmail(t, fx, "a@x.com")
	limiter.attemptsBlocked = true

	rec := httptest.NewRecorder()
	h.VerifyCode(rec, postJSON("/auth/verify-code", `{"email":"a@x.com","code":"`+sent.code+`"}`))

	// Even the right code is rejected once the attempt window is spent
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, fx.tokens.count())
}

func TestVerifyCodeHandler_IPRateLimited(t *testing.T) {
	t.Parallel()

	h, _, limiter := newTestHandler(t)
	limiter.ipExceeded = true

	rec := httptest.NewRecorder()
	h.VerifyCode(rec, postJSON("/auth/verify-code", `{"email":"a@x.com","code":"123456"}`))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVerifyTokenHandler_Success(t *testing.T) {
	t.Parallel()

	h, fx, _ := newTestHandler(t)
	sent := requestLoginEmail(t, fx, "a@x.com")

	req := httptest.NewRequest(http.MethodGet, "/auth/verify?token="+sent.token, nil)
	rec := httptest.NewRecorder()
	h.VerifyToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)
}

func TestVerifyTokenHandler_InvalidToken(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify?token=never-issued", nil)
	rec := httptest.NewRecorder()
	h.VerifyToken(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// No cookie on failure
	assert.Empty(t, rec.Result().Cookies())
}

func TestVerifyTokenHandler_MissingTokenMatchesInvalidShape(t *testing.T) {
	t.Parallel()

	h, fx, _ := newTestHandler(t)
	sent := requestLoginEmail(t, fx, "a@x.com")

	// Expired, wrong, and missing all produce the same status and shape
	consume := httptest.NewRecorder()
	h.VerifyToken(consume, httptest.NewRequest(http.MethodGet, "/auth/verify?token="+sent.token, nil))
	require.Equal(t, http.StatusOK, consume.Code)

	replay := httptest.NewRecorder()
	h.VerifyToken(replay, httptest.NewRequest(http.MethodGet, "/auth/verify?token="+sent.token, nil))

	missing := httptest.NewRecorder()
	h.VerifyToken(missing, httptest.NewRequest(http.MethodGet, "/auth/verify", nil))

	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.JSONEq(t, replay.Body.String(), missing.Body.String())
}

func TestLogoutHandler_ClearsCookie(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp["success"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestMeHandler_AnonymousReturnsNullUser(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":null}`, rec.Body.String())
}

func TestMeHandler_AuthenticatedReturnsUser(t *testing.T) {
	t.Parallel()

	h, fx, _ := newTestHandler(t)

	name := "Ada"
	u, err := fx.users.CreateIfNotExists(context.Background(), "a@x.com", &name)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	ctx := context.WithValue(req.Context(), UserIDContextKey, u.ID)
	rec := httptest.NewRecorder()
	h.Me(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp MeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.User)
	assert.Equal(t, u.ID, resp.User.ID)
	assert.Equal(t, "a@x.com", resp.User.Email)
	require.NotNil(t, resp.User.DisplayName)
	assert.Equal(t, "Ada", *resp.User.DisplayName)
}

func TestMeHandler_StaleCredentialReturnsNullUser(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	// Identity in context but no matching account
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	ctx := context.WithValue(req.Context(), UserIDContextKey, uuid.New())
	rec := httptest.NewRecorder()
	h.Me(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":null}`, rec.Body.String())
}

func TestUpdateProfileHandler(t *testing.T) {
	t.Parallel()

	h, fx, _ := newTestHandler(t)

	u, err := fx.users.CreateIfNotExists(context.Background(), "a@x.com", nil)
	require.NoError(t, err)

	body := strings.NewReader(`{"display_name":"New Name"}`)
	req := httptest.NewRequest(http.MethodPatch, "/me", body)
	ctx := context.WithValue(req.Context(), UserIDContextKey, u.ID)
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.DisplayName)
	assert.Equal(t, "New Name", *resp.DisplayName)
}

func TestUpdateProfileHandler_EmptyNameRejected(t *testing.T) {
	t.Parallel()

	h, fx, _ := newTestHandler(t)

	u, err := fx.users.CreateIfNotExists(context.Background(), "a@x.com", nil)
	require.NoError(t, err)

	body := strings.NewReader(`{"display_name":"  "}`)
	req := httptest.NewRequest(http.MethodPatch, "/me", body)
	ctx := context.WithValue(req.Context(), UserIDContextKey, u.ID)
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
