package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flavien-hugs/apikey-hub/internal/audit"
	"github.com/flavien-hugs/apikey-hub/internal/authgw"
	"github.com/flavien-hugs/apikey-hub/internal/config"
	"github.com/flavien-hugs/apikey-hub/internal/handler"
	"github.com/flavien-hugs/apikey-hub/internal/keys"
	"github.com/flavien-hugs/apikey-hub/internal/model"
	"github.com/flavien-hugs/apikey-hub/internal/store"
)

var allPerms = []string{
	handler.PermCreate,
	handler.PermRead,
	handler.PermRegenerate,
	handler.PermToggle,
	handler.PermDelete,
}

type testEnv struct {
	srv *Server
	gw  *authgw.LocalGateway

	ownerToken string // user-1, Member role, all permissions
	otherToken string // user-2, Member role, all permissions
	adminToken string // admin-1, Super Admin role, all permissions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keysCfg := config.KeysConfig{
		AppTag:       "fhs",
		SecretLength: 32,
		ServerSecret: "server-test-secret",
	}
	gwCfg := config.GatewayConfig{SuperAdminRole: "Super Admin"}
	svc := keys.NewService(keysCfg, gwCfg, st, logger)

	gw := authgw.NewLocalGateway("local-test-secret")

	srv := New(config.ServerConfig{
		Host:        "127.0.0.1",
		Port:        0,
		CORSOrigins: []string{"*"},
	}, Deps{
		Service: svc,
		Gateway: gw,
		Store:   st,
		Trail:   audit.Nop{},
		Version: "test",
	}, logger)

	env := &testEnv{srv: srv, gw: gw}
	env.ownerToken = issueToken(t, gw, "user-1", "Member")
	env.otherToken = issueToken(t, gw, "user-2", "Member")
	env.adminToken = issueToken(t, gw, "admin-1", "Super Admin")
	return env
}

func issueToken(t *testing.T, gw *authgw.LocalGateway, userID, role string) string {
	t.Helper()
	token, err := gw.IssueToken(userID, role, allPerms, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return out
}

type keyResponse struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	Key        string     `json:"api_key"`
}

func (e *testEnv) createKey(t *testing.T, token string) keyResponse {
	t.Helper()
	rec := e.do(t, "POST", "/keys", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	return decodeBody[keyResponse](t, rec)
}

func (e *testEnv) verify(t *testing.T, rawKey string) bool {
	t.Helper()
	rec := e.do(t, "GET", "/verify-api-key", "", map[string]string{"X-API-Key": rawKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	return decodeBody[model.VerificationResult](t, rec).Verified
}

// ---------------------------------------------------------------------------
// System endpoints
// ---------------------------------------------------------------------------

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/@ping", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ping: status = %d", rec.Code)
	}
	if got := decodeBody[map[string]string](t, rec); got["message"] != "pong !" {
		t.Errorf("ping body = %v", got)
	}

	rec = env.do(t, "GET", "/openapi.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("openapi: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/verify-api-key") {
		t.Error("openapi document missing the verify path")
	}
}

// ---------------------------------------------------------------------------
// Authentication boundary
// ---------------------------------------------------------------------------

func TestLifecycleRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "null", "undefined", "not-a-jwt"} {
		rec := env.do(t, "POST", "/keys", token, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("create with token %q: status = %d, want 403", token, rec.Code)
		}
		body := decodeBody[model.ErrorResponse](t, rec)
		if body.CodeError != model.CodeAccessDenied {
			t.Errorf("code_error = %q, want %q", body.CodeError, model.CodeAccessDenied)
		}
	}
}

func TestVerifyNeedsNoToken(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(t, env.ownerToken)

	// Verification is token-free: only the X-API-Key header matters.
	if !env.verify(t, key.Key) {
		t.Error("verify rejected a valid key without a bearer token")
	}
}

// ---------------------------------------------------------------------------
// Key lifecycle
// ---------------------------------------------------------------------------

func TestCreateAndVerifyFlow(t *testing.T) {
	env := newTestEnv(t)

	key := env.createKey(t, env.ownerToken)
	if key.ID == "" {
		t.Error("created key has no id")
	}
	if key.OwnerID != "user-1" {
		t.Errorf("owner_id = %q, want user-1", key.OwnerID)
	}
	if !key.IsActive {
		t.Error("created key is not active")
	}
	if !strings.HasPrefix(key.Key, "fhs_test_") {
		t.Errorf("raw key %q missing prefix", key.Key)
	}
	if !strings.HasSuffix(key.Key, "user-1") {
		t.Errorf("raw key %q missing owner tail", key.Key)
	}

	if !env.verify(t, key.Key) {
		t.Error("fresh key does not verify")
	}
	if env.verify(t, "fhs_test_garbage") {
		t.Error("garbage key verifies")
	}
}

func TestResponseNeverLeaksDigest(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(t, env.ownerToken)

	for _, path := range []string{"/keys", "/keys/" + key.ID} {
		rec := env.do(t, "GET", path, env.ownerToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: status = %d", path, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "digest") {
			t.Errorf("GET %s leaks the digest field", path)
		}
	}
}

func TestVerifyMissingHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/verify-api-key", "", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing header: status = %d, want 422", rec.Code)
	}
	body := decodeBody[model.ErrorResponse](t, rec)
	if body.CodeError != model.CodeValidationError {
		t.Errorf("code_error = %q, want %q", body.CodeError, model.CodeValidationError)
	}

	// An empty header value is present, so it gets the usual false verdict.
	rec = env.do(t, "GET", "/verify-api-key", "", map[string]string{"X-API-Key": ""})
	if rec.Code != http.StatusOK {
		t.Errorf("empty header: status = %d, want 200", rec.Code)
	}
	if decodeBody[model.VerificationResult](t, rec).Verified {
		t.Error("empty key verified")
	}
}

func TestGetAndList(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(t, env.ownerToken)
	env.createKey(t, env.otherToken)

	rec := env.do(t, "GET", "/keys/"+key.ID, env.ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	got := decodeBody[keyResponse](t, rec)
	if got.ID != key.ID || got.Key != "" {
		t.Errorf("get = %+v; api_key must be absent after creation", got)
	}

	rec = env.do(t, "GET", "/keys/does-not-exist", env.ownerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get unknown: status = %d, want 404", rec.Code)
	}
	if body := decodeBody[model.ErrorResponse](t, rec); body.CodeError != model.CodeDocumentNotFound {
		t.Errorf("code_error = %q, want %q", body.CodeError, model.CodeDocumentNotFound)
	}

	rec = env.do(t, "GET", "/keys?owner_id=user-1", env.ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	list := decodeBody[model.ListResponse](t, rec)
	if list.Meta.Total != 1 || len(list.Resource) != 1 {
		t.Errorf("list meta = %+v, len = %d", list.Meta, len(list.Resource))
	}
	if list.Resource[0].OwnerID != "user-1" {
		t.Errorf("owner filter leaked record for %q", list.Resource[0].OwnerID)
	}

	rec = env.do(t, "GET", "/keys?sort=sideways", env.ownerToken, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad sort: status = %d, want 422", rec.Code)
	}
}

func TestRegenerate(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(t, env.ownerToken)

	rec := env.do(t, "PUT", "/keys/"+key.ID, env.ownerToken, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("regenerate: status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	regenerated := decodeBody[keyResponse](t, rec)
	if regenerated.ID != key.ID {
		t.Errorf("regenerate changed the id: %q -> %q", key.ID, regenerated.ID)
	}
	if regenerated.Key == "" || regenerated.Key == key.Key {
		t.Error("regenerate did not mint a fresh raw key")
	}

	if env.verify(t, key.Key) {
		t.Error("old raw key still verifies after regeneration")
	}
	if !env.verify(t, regenerated.Key) {
		t.Error("new raw key does not verify")
	}

	rec = env.do(t, "PUT", "/keys/does-not-exist", env.ownerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("regenerate unknown: status = %d, want 404", rec.Code)
	}
}

func TestOwnershipEnforcedOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(t, env.ownerToken)

	// Another member, even with the permission, cannot touch the record.
	rec := env.do(t, "PUT", "/keys/"+key.ID, env.otherToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("regenerate by stranger: status = %d, want 403", rec.Code)
	}
	if body := decodeBody[model.ErrorResponse](t, rec); body.CodeError != model.CodeCannotAccessResource {
		t.Errorf("code_error = %q, want %q", body.CodeError, model.CodeCannotAccessResource)
	}

	rec = env.do(t, "PUT", "/keys/"+key.ID+"/action?action=deactivate", env.otherToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("toggle by stranger: status = %d, want 403", rec.Code)
	}

	// The super admin role can.
	rec = env.do(t, "PUT", "/keys/"+key.ID+"/action?action=deactivate", env.adminToken, nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("toggle by super admin: status = %d, want 202", rec.Code)
	}
}

func TestActivateDeactivate(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(t, env.ownerToken)

	rec := env.do(t, "PUT", "/keys/"+key.ID+"/action?action=deactivate", env.ownerToken, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("deactivate: status = %d", rec.Code)
	}
	if decodeBody[keyResponse](t, rec).IsActive {
		t.Error("record still active after deactivation")
	}
	if env.verify(t, key.Key) {
		t.Error("deactivated key verifies")
	}

	rec = env.do(t, "PUT", "/keys/"+key.ID+"/action?action=activate", env.ownerToken, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("activate: status = %d", rec.Code)
	}
	if !env.verify(t, key.Key) {
		t.Error("reactivated key does not verify")
	}

	rec = env.do(t, "PUT", "/keys/"+key.ID+"/action?action=explode", env.ownerToken, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad action: status = %d, want 422", rec.Code)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(t, env.ownerToken)

	rec := env.do(t, "DELETE", "/keys/"+key.ID, env.ownerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if env.verify(t, key.Key) {
		t.Error("deleted key still verifies")
	}

	// Again: still 204.
	rec = env.do(t, "DELETE", "/keys/"+key.ID, env.ownerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("repeat delete: status = %d, want 204", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Verify rate limiting
// ---------------------------------------------------------------------------

func TestVerifyRateLimited(t *testing.T) {
	st, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := keys.NewService(config.KeysConfig{
		AppTag:       "fhs",
		SecretLength: 32,
		ServerSecret: "server-test-secret",
	}, config.GatewayConfig{}, st, logger)

	srv := New(config.ServerConfig{
		Host:             "127.0.0.1",
		CORSOrigins:      []string{"*"},
		VerifyRatePerMin: 2,
	}, Deps{
		Service: svc,
		Gateway: authgw.NewLocalGateway("s"),
		Store:   st,
		Trail:   audit.Nop{},
		Version: "test",
	}, logger)

	do := func() int {
		req := httptest.NewRequest("GET", "/verify-api-key", nil)
		req.Header.Set("X-API-Key", "fhs_test_whatever")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec.Code
	}

	if do() != http.StatusOK || do() != http.StatusOK {
		t.Fatal("requests under the limit were rejected")
	}
	if do() != http.StatusTooManyRequests {
		t.Error("request over the limit was not rejected")
	}
}
