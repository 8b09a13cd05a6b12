package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homescript-labs/homescriptd/pkg/config"
	"github.com/homescript-labs/homescriptd/pkg/models"
	"github.com/homescript-labs/homescriptd/pkg/ratelimit"
	"github.com/homescript-labs/homescriptd/pkg/runner"
	"github.com/homescript-labs/homescriptd/pkg/services"
)

const testJWTSecret = "test-secret"

// memScripts is an in-memory ScriptStore for handler tests.
type memScripts struct {
	mu   sync.Mutex
	byID map[string]*models.Script
	next int
}

func newMemScripts() *memScripts {
	return &memScripts{byID: map[string]*models.Script{}}
}

func (m *memScripts) Create(_ context.Context, req models.CreateScriptRequest) (*models.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !models.EndpointPattern.MatchString(req.Endpoint) {
		return nil, services.NewValidationError("endpoint", "must match [a-z0-9-]+")
	}
	for _, s := range m.byID {
		if s.Endpoint == req.Endpoint {
			return nil, services.ErrAlreadyExists
		}
	}
	m.next++
	script := &models.Script{
		ID:            fmt.Sprintf("script-%d", m.next),
		Name:          req.Name,
		Endpoint:      req.Endpoint,
		Code:          req.Code,
		TestParams:    req.TestParams,
		TriggerConfig: req.TriggerConfig,
	}
	if req.DebugEnabled != nil {
		script.DebugEnabled = *req.DebugEnabled
	}
	if req.DebugCode != nil {
		script.DebugCode = *req.DebugCode
	}
	m.byID[script.ID] = script
	return script, nil
}

func (m *memScripts) Get(_ context.Context, id string) (*models.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, services.ErrNotFound
}

func (m *memScripts) GetByEndpoint(_ context.Context, endpoint string) (*models.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.Endpoint == endpoint {
			cp := *s
			return &cp, nil
		}
	}
	return nil, services.ErrNotFound
}

func (m *memScripts) List(context.Context) ([]models.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Script{}
	for _, s := range m.byID {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memScripts) Update(_ context.Context, id string, req models.UpdateScriptRequest) (*models.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	if req.Name != nil {
		s.Name = *req.Name
	}
	if req.Code != nil {
		s.Code = *req.Code
	}
	if req.DebugCode != nil {
		s.DebugCode = *req.DebugCode
	}
	if req.DebugEnabled != nil {
		s.DebugEnabled = *req.DebugEnabled
	}
	cp := *s
	return &cp, nil
}

func (m *memScripts) UpdateDebugDraft(ctx context.Context, id string, req models.UpdateDebugDraftRequest) (*models.Script, error) {
	return m.Update(ctx, id, models.UpdateScriptRequest{
		DebugCode:    req.DebugCode,
		DebugEnabled: req.DebugEnabled,
	})
}

func (m *memScripts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return services.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// memAccounts is an in-memory AccountStore.
type memAccounts struct {
	secrets map[string]string // id → plaintext secret
}

func (m *memAccounts) Create(_ context.Context, req models.CreateServiceAccountRequest) (*models.ServiceAccount, string, error) {
	return &models.ServiceAccount{ID: "acct-1", Name: req.Name}, "plaintext-secret", nil
}

func (m *memAccounts) List(context.Context) ([]models.ServiceAccount, error) {
	return []models.ServiceAccount{}, nil
}

func (m *memAccounts) Delete(context.Context, string) error { return nil }

func (m *memAccounts) Verify(_ context.Context, id, secret string) (*models.ServiceAccount, error) {
	if want, ok := m.secrets[id]; ok && want == secret {
		return &models.ServiceAccount{ID: id}, nil
	}
	return nil, services.ErrNotFound
}

// memDebug is an in-memory DebugAccessStore.
type memDebug struct {
	access models.DebugAccess
}

func (m *memDebug) Get(context.Context) (*models.DebugAccess, error) {
	cp := m.access
	return &cp, nil
}

func (m *memDebug) Update(_ context.Context, req models.UpdateDebugAccessRequest) (*models.DebugAccess, error) {
	m.access = models.DebugAccess{Enabled: req.Enabled, CIDRs: req.CIDRs, ServiceID: req.ServiceID}
	return m.Get(context.Background())
}

type testEnv struct {
	server   *Server
	scripts  *memScripts
	accounts *memAccounts
	debug    *memDebug
}

func newTestEnv() *testEnv {
	cfg := &config.Config{
		JWTSecret:      testJWTSecret,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	scripts := newMemScripts()
	accounts := &memAccounts{secrets: map[string]string{"svc-1": "svc-secret"}}
	debug := &memDebug{}
	r := runner.New(runner.MockHost{}, models.HAModeMock, nil)
	return &testEnv{
		server:   NewServer(cfg, nil, scripts, accounts, debug, r, nil),
		scripts:  scripts,
		accounts: accounts,
		debug:    debug,
	}
}

func signToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{"sub": "tester"}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, env *testEnv, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestConfigHandler(t *testing.T) {
	env := newTestEnv()

	rec := doJSON(t, env, http.MethodGet, "/api/config", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["mock"])
	assert.Equal(t, false, body["haConfigured"])
}

func TestHealthz(t *testing.T) {
	env := newTestEnv()

	rec := doJSON(t, env, http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAdminRequiresAuth(t *testing.T) {
	env := newTestEnv()

	rec := doJSON(t, env, http.MethodGet, "/api/scripts", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/scripts", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceCredentialAuth(t *testing.T) {
	env := newTestEnv()

	rec := doJSON(t, env, http.MethodGet, "/api/scripts", "", nil, map[string]string{
		"X-Service-ID":  "svc-1",
		"X-Service-Key": "svc-secret",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/scripts", "", nil, map[string]string{
		"X-Service-ID":  "svc-1",
		"X-Service-Key": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScriptCRUD(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name:     "Bedtime",
		Endpoint: "bedtime",
		Code:     `PRINT "night"`,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Script
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)

	// Duplicate endpoint conflicts.
	rec = doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name: "Copy", Endpoint: "bedtime",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Invalid endpoint is a 400.
	rec = doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name: "Bad", Endpoint: "Not Valid!",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/scripts/"+created.ID, token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bedtime")

	rec = doJSON(t, env, http.MethodGet, "/api/scripts/missing", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, env, http.MethodDelete, "/api/scripts/"+created.ID, token, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDebugDraftUpdate(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name: "Draft", Endpoint: "draft", Code: `PRINT "main"`,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Script
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	enabled := true
	draft := `PRINT "draft"`
	rec = doJSON(t, env, http.MethodPut, "/api/scripts/"+created.ID+"/debug", token,
		models.UpdateDebugDraftRequest{DebugCode: &draft, DebugEnabled: &enabled}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Script
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.True(t, updated.DebugEnabled)
	assert.Equal(t, draft, updated.DebugCode)
	// The main source is untouched.
	assert.Equal(t, `PRINT "main"`, updated.Code)
}

func TestRunHandlerMergesParams(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name:     "Mode",
		Endpoint: "mode",
		Code:     "REQUIRED $mode\nPRINT \"mode=$mode\"",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The JSON body wins over the query string.
	rec = doJSON(t, env, http.MethodPost, "/api/run/mode?mode=day", token,
		map[string]any{"mode": "night"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Output []string                `json:"output"`
		Report *models.ExecutionReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"mode=night"}, body.Output)
	require.NotNil(t, body.Report)
	assert.True(t, body.Report.Success)
	assert.Equal(t, models.AuthModeJWT, body.Report.Meta.AuthMode)
}

func TestRunHandlerParamsReachScope(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	// No REQUIRED/OPTIONAL declaration: the merged parameters must still be
	// visible as scope variables.
	rec := doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name:     "Scoped",
		Endpoint: "scoped",
		Code:     `PRINT "m=$mode"`,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/run/scoped?mode=day", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Output []string `json:"output"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"m=day"}, body.Output)
}

func TestRunHandlerInterpreterFailure(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name: "Broken", Endpoint: "broken", Code: "REQUIRED $missing",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/run/broken", token, nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error  string                  `json:"error"`
		Report *models.ExecutionReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "Missing required query variable")
	require.NotNil(t, body.Report)
	assert.False(t, body.Report.Success)
}

func TestRunHandlerUnknownEndpoint(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodGet, "/api/run/nope", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandlerRateLimit(t *testing.T) {
	env := newTestEnv()
	env.server.limiter = ratelimit.New(0, 1)
	token := signToken(t)

	rec := doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name: "Limited", Endpoint: "limited", Code: `PRINT "ok"`,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/run/limited", token, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, env, http.MethodGet, "/api/run/limited", token, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestWebhookHandler(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name:     "Hook",
		Endpoint: "hook",
		Code:     "SET $v = $webhook_data.level\nPRINT \"level=$v source=$src\"",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// No credentials required on the webhook path.
	rec = doJSON(t, env, http.MethodPost, "/api/webhook/hook?src=cam", "",
		map[string]any{"level": 7}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Output []string `json:"output"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"level=7 source=cam"}, body.Output)
}

func TestDebugRunHandler(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	enabled := true
	draft := `PRINT "from draft"`
	rec := doJSON(t, env, http.MethodPost, "/api/scripts", token, models.CreateScriptRequest{
		Name:         "Debuggable",
		Endpoint:     "debuggable",
		Code:         `PRINT "from main"`,
		DebugEnabled: &enabled,
		DebugCode:    &draft,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	env.debug.access = models.DebugAccess{
		Enabled:   true,
		CIDRs:     []string{"192.168.1.0/24"},
		ServiceID: "svc-1",
	}

	lanHeaders := map[string]string{
		"X-Forwarded-For": "192.168.1.50",
		"X-Service-ID":    "svc-1",
	}

	rec = doJSON(t, env, http.MethodPost, "/api/debug-access/run/debuggable", "", nil, lanHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "from draft")

	// Wrong network is rejected.
	rec = doJSON(t, env, http.MethodPost, "/api/debug-access/run/debuggable", "", nil, map[string]string{
		"X-Forwarded-For": "10.9.9.9",
		"X-Service-ID":    "svc-1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Wrong service ID is rejected.
	rec = doJSON(t, env, http.MethodPost, "/api/debug-access/run/debuggable", "", nil, map[string]string{
		"X-Forwarded-For": "192.168.1.50",
		"X-Service-ID":    "svc-other",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDebugAccessPublicHandler(t *testing.T) {
	env := newTestEnv()
	env.debug.access = models.DebugAccess{Enabled: true, CIDRs: []string{"192.168.1.0/24"}}

	rec := doJSON(t, env, http.MethodGet, "/api/debug-access/public", "", nil, map[string]string{
		"X-Forwarded-For": "192.168.1.50",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, true, body["allowed"])
}

func TestValidateScriptHandler(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodPost, "/api/scripts/validate", token,
		map[string]any{"code": "IF $x > 1\nPRINT \"hi\""}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Valid       bool `json:"valid"`
		Diagnostics []struct {
			Line    int    `json:"line"`
			Message string `json:"message"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Valid)
	require.NotEmpty(t, body.Diagnostics)
}

func TestHistoryHandlerMockMode(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodGet, "/api/history?entityId=sensor.temp&hours=12", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mock":true`)

	rec = doJSON(t, env, http.MethodGet, "/api/history", token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/api/history?entityId=x&hours=-1", token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceAccountEndpoints(t *testing.T) {
	env := newTestEnv()
	token := signToken(t)

	rec := doJSON(t, env, http.MethodPost, "/api/service-accounts", token,
		models.CreateServiceAccountRequest{Name: "automation"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "plaintext-secret")

	rec = doJSON(t, env, http.MethodGet, "/api/service-accounts", token, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
