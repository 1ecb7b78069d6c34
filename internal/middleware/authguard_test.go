package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/csaccess/internal/metrics"
	"github.com/hitoshi/csaccess/internal/model"
	"github.com/hitoshi/csaccess/internal/token"
)

// --- モック定義 ---

type mockRevocationChecker struct {
	isRevokedFn func(ctx context.Context, sessionID string) (bool, error)
	calls       int
}

func (m *mockRevocationChecker) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	m.calls++
	if m.isRevokedFn != nil {
		return m.isRevokedFn(ctx, sessionID)
	}
	return false, nil
}

type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type recordingGuardMetrics struct {
	metrics.Nop
	verifications []string
	rejections    []string
}

func (r *recordingGuardMetrics) RecordTokenVerification(status string) {
	r.verifications = append(r.verifications, status)
}

func (r *recordingGuardMetrics) RecordGuardRejection(reason string) {
	r.rejections = append(r.rejections, reason)
}

// --- compile-time interface checks ---
var _ RevocationChecker = (*mockRevocationChecker)(nil)
var _ RevocationChecker = (*SessionRevocationChecker)(nil)
var _ TokenVerifier = (*token.Service)(nil)

// --- テストヘルパー ---

type guardClock struct{ now time.Time }

func (c *guardClock) Now() time.Time { return c.now }

func newTestTokenService(t *testing.T, clock *guardClock) *token.Service {
	t.Helper()
	svc, err := token.NewService(token.Config{
		Secret: "guard-test-secret",
		Issuer: "csaccess",
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("token.NewService returned error: %v", err)
	}
	return svc
}

func issueTestToken(t *testing.T, svc *token.Service, role model.Role, ttl time.Duration) string {
	t.Helper()
	signed, _, err := svc.Issue(token.Claims{
		UserID:    "user-1",
		Email:     "a@b.com",
		Role:      role,
		SessionID: "session-1",
	}, ttl)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	return signed
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func bearerRequest(tok string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req
}

// --- Required ---

func TestRequired_Outcomes(t *testing.T) {
	clock := &guardClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(t, clock)

	valid := issueTestToken(t, svc, model.RoleUser, time.Hour)
	expired := issueTestToken(t, svc, model.RoleUser, time.Minute)
	clock.now = clock.now.Add(2 * time.Minute)

	parts := strings.Split(valid, ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("failed to decode signature: %v", err)
	}
	sig[0] ^= 0x01
	tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(sig)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"トークンなし", "", http.StatusUnauthorized, model.ErrCodeTokenRequired},
		{"Bearer以外のスキーム", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, model.ErrCodeTokenRequired},
		{"トークン値が空", "Bearer ", http.StatusUnauthorized, model.ErrCodeTokenRequired},
		{"期限切れ", "Bearer " + expired, http.StatusUnauthorized, model.ErrCodeTokenExpired},
		{"署名改ざん", "Bearer " + tampered, http.StatusForbidden, model.ErrCodeInvalidToken},
		{"形式不正", "Bearer not.a.jwt", http.StatusForbidden, model.ErrCodeInvalidToken},
		{"有効", "Bearer " + valid, http.StatusOK, ""},
		{"スキームの大文字小文字を区別しない", "bearer " + valid, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewAuthGuard(svc, nil, nil)

			var gotClaims *token.Claims
			handler := guard.Required()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotClaims, _ = ClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode == "" {
				if gotClaims == nil || gotClaims.UserID != "user-1" || gotClaims.Email != "a@b.com" || gotClaims.Role != model.RoleUser {
					t.Errorf("claims = %+v, want identity of the token", gotClaims)
				}
				return
			}
			if gotClaims != nil {
				t.Error("next handler must not run on rejection")
			}
			if body := decodeErrorBody(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestRequired_TokenRequiredMessage(t *testing.T) {
	guard := NewAuthGuard(newTestTokenService(t, &guardClock{now: time.Now()}), nil, nil)
	handler := guard.Required()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, bearerRequest(""))

	if body := decodeErrorBody(t, w); body.Message != "Access token required" {
		t.Errorf("message = %q, want %q", body.Message, "Access token required")
	}
}

func TestRequired_RevokedSessionRejected(t *testing.T) {
	clock := &guardClock{now: time.Now()}
	svc := newTestTokenService(t, clock)
	tok := issueTestToken(t, svc, model.RoleUser, time.Hour)

	checker := &mockRevocationChecker{
		isRevokedFn: func(_ context.Context, sessionID string) (bool, error) {
			return sessionID == "session-1", nil
		},
	}
	guard := NewAuthGuard(svc, checker, nil)
	handler := guard.Required()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, bearerRequest(tok))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeTokenRevoked {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeTokenRevoked)
	}
}

func TestRequired_RevocationStoreFailureAllows(t *testing.T) {
	svc := newTestTokenService(t, &guardClock{now: time.Now()})
	tok := issueTestToken(t, svc, model.RoleUser, time.Hour)

	checker := &mockRevocationChecker{
		isRevokedFn: func(_ context.Context, _ string) (bool, error) {
			return false, errors.New("db down")
		},
	}
	guard := NewAuthGuard(svc, checker, nil)
	called := false
	handler := guard.Required()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, bearerRequest(tok))

	if !called {
		t.Errorf("handler should be called when the session ledger is unavailable, status = %d", w.Code)
	}
}

func TestRequired_InvalidTokenSkipsRevocationCheck(t *testing.T) {
	svc := newTestTokenService(t, &guardClock{now: time.Now()})
	checker := &mockRevocationChecker{}
	guard := NewAuthGuard(svc, checker, nil)
	handler := guard.Required()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), bearerRequest("garbage"))

	if checker.calls != 0 {
		t.Errorf("revocation checks = %d, want 0", checker.calls)
	}
}

func TestRequired_RecordsMetrics(t *testing.T) {
	svc := newTestTokenService(t, &guardClock{now: time.Now()})
	rec := &recordingGuardMetrics{}
	guard := NewAuthGuard(svc, nil, rec)
	handler := guard.Required()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), bearerRequest(""))
	handler.ServeHTTP(httptest.NewRecorder(), bearerRequest("garbage"))

	if len(rec.rejections) != 2 || rec.rejections[0] != RejectTokenRequired || rec.rejections[1] != RejectTokenInvalid {
		t.Errorf("rejections = %v", rec.rejections)
	}
	if len(rec.verifications) != 1 || rec.verifications[0] != token.StatusInvalid.String() {
		t.Errorf("verifications = %v", rec.verifications)
	}
}

// --- Optional ---

func TestOptional_ProceedsAnonymouslyOnFailure(t *testing.T) {
	clock := &guardClock{now: time.Now()}
	svc := newTestTokenService(t, clock)
	valid := issueTestToken(t, svc, model.RoleAdmin, time.Hour)
	expired := issueTestToken(t, svc, model.RoleUser, time.Second)
	clock.now = clock.now.Add(time.Minute)

	checker := &mockRevocationChecker{}
	guard := NewAuthGuard(svc, checker, nil)

	tests := []struct {
		name         string
		token        string
		wantIdentity bool
	}{
		{"トークンなし", "", false},
		{"期限切れ", expired, false},
		{"形式不正", "garbage", false},
		{"有効", valid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			var claims *token.Claims
			handler := guard.Optional()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				claims, _ = ClaimsFromContext(r.Context())
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, bearerRequest(tt.token))

			if !called {
				t.Fatal("optional guard must always call the next handler")
			}
			if (claims != nil) != tt.wantIdentity {
				t.Errorf("identity attached = %v, want %v", claims != nil, tt.wantIdentity)
			}
		})
	}

	if checker.calls != 0 {
		t.Errorf("optional guard must not consult the session ledger, calls = %d", checker.calls)
	}
}

// --- Role Guard ---

func TestRequireRole(t *testing.T) {
	guard := NewAuthGuard(nil, nil, nil)

	tests := []struct {
		name       string
		claims     *token.Claims
		required   model.Role
		wantStatus int
		wantMsg    string
	}{
		{"認証情報なし", nil, model.RoleUser, http.StatusUnauthorized, "Authentication required"},
		{"同じロール", &token.Claims{UserID: "u", Role: model.RoleUser}, model.RoleUser, http.StatusOK, ""},
		{"adminはuser要求を通過", &token.Claims{UserID: "u", Role: model.RoleAdmin}, model.RoleUser, http.StatusOK, ""},
		{"userはadmin要求を拒否", &token.Claims{UserID: "u", Role: model.RoleUser}, model.RoleAdmin, http.StatusForbidden, "Insufficient permissions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := guard.RequireRole(tt.required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.claims != nil {
				req = req.WithContext(ContextWithClaims(req.Context(), tt.claims))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantMsg != "" {
				if body := decodeErrorBody(t, w); body.Message != tt.wantMsg {
					t.Errorf("message = %q, want %q", body.Message, tt.wantMsg)
				}
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	guard := NewAuthGuard(nil, nil, nil)
	handler := guard.RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithClaims(req.Context(), &token.Claims{UserID: "u", Role: model.RoleUser}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := decodeErrorBody(t, w); body.Message != "Admin access required" {
		t.Errorf("message = %q, want %q", body.Message, "Admin access required")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithClaims(req.Context(), &token.Claims{UserID: "u", Role: model.RoleAdmin}))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("admin status = %d, want %d", w.Code, http.StatusOK)
	}
}

// --- Bearer / context ---

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"BEARER abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearerabc", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(req)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
	ctx := ContextWithClaims(context.Background(), &token.Claims{UserID: "user-9"})
	got, err := UserIDFromContext(ctx)
	if err != nil || got != "user-9" {
		t.Errorf("UserIDFromContext = (%q, %v), want (%q, nil)", got, err, "user-9")
	}
}

// --- SessionRevocationChecker ---

func TestSessionRevocationChecker(t *testing.T) {
	revokedAt := time.Now()
	finder := &mockSessionFinder{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			switch id {
			case "active":
				return &model.Session{ID: id}, nil
			case "revoked":
				return &model.Session{ID: id, RevokedAt: &revokedAt}, nil
			case "broken":
				return nil, errors.New("db down")
			}
			return nil, nil
		},
	}
	checker := NewSessionRevocationChecker(finder)
	ctx := context.Background()

	if revoked, err := checker.IsRevoked(ctx, "active"); err != nil || revoked {
		t.Errorf("active = (%v, %v), want (false, nil)", revoked, err)
	}
	if revoked, err := checker.IsRevoked(ctx, "revoked"); err != nil || !revoked {
		t.Errorf("revoked = (%v, %v), want (true, nil)", revoked, err)
	}
	if revoked, err := checker.IsRevoked(ctx, "missing"); err != nil || revoked {
		t.Errorf("missing = (%v, %v), want (false, nil)", revoked, err)
	}
	if _, err := checker.IsRevoked(ctx, "broken"); err == nil {
		t.Error("expected store error to propagate")
	}
}
