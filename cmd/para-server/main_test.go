package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/JalalSordo/para/app"
	"github.com/JalalSordo/para/config"
	"github.com/JalalSordo/para/routes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInitLogger(t *testing.T) {
	t.Run("default json logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "info")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("development console logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "console")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "invalid")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("defaults when not set", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("LOG_FORMAT", "")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})
}

const adminKey = "test-admin-key"

// githubStub serves a profile per bearer token
func githubStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tok != "gh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":42,"name":"Ada","email":"ada@example.com","avatar_url":"https://example.com/a.png"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(githubURL string) *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Store: config.StoreConfig{Backend: config.StoreBackendMemory},
		Cache: config.CacheConfig{
			Backend:    config.CacheBackendMemory,
			MaxEntries: 100,
			SecretTTL:  time.Minute,
		},
		Auth: config.AuthConfig{
			ManagementPath:      "/jwt_auth",
			ProtectedPrefix:     "/api/",
			SessionTimeout:      time.Hour,
			CredentialSeparator: ":",
			AdminAPIKey:         adminKey,
			IssueRateLimit:      100,
			IssueRateBurst:      100,
		},
		Providers: config.ProvidersConfig{
			Timeout: 5 * time.Second,
			GitHub:  config.ProfileProviderConfig{Enabled: true, ProfileURL: githubURL},
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, testConfig(githubStub(t).URL), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(ctx) })

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, header map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "healthy", body["data"].(map[string]interface{})["status"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	admin := map[string]string{"X-Admin-Key": adminKey}

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/apps", `{"name":"My App"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "admin routes need the key")

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/apps", `{"name":"My App"}`, admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// issue
	resp, body := do(t, http.MethodPost, ts.URL+"/jwt_auth", `{"provider":"github","appid":"myapp","token":"gh-token"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "app:myapp", user["appid"])
	assert.Equal(t, "github:42", user["identifier"])
	jwt := body["token"].(map[string]interface{})["access_token"].(string)
	bearer := map[string]string{"Authorization": "Bearer " + jwt}

	// wrong provider credential
	resp, body = do(t, http.MethodPost, ts.URL+"/jwt_auth", `{"provider":"github","appid":"myapp","token":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Failed to authenticate user with github", body["message"])

	// unknown app
	resp, body = do(t, http.MethodPost, ts.URL+"/jwt_auth", `{"provider":"github","appid":"ghost","token":"gh-token"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User belongs to an app that does not exist.", body["message"])

	// passive authentication
	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/me", "", bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "app:myapp", body["data"].(map[string]interface{})["appid"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	// refresh of a valid token returns it unchanged
	resp, body = do(t, http.MethodGet, ts.URL+"/jwt_auth", "", bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, jwt, body["token"].(map[string]interface{})["access_token"])

	// revoke with a cutover in the future
	future := time.Now().Add(time.Minute).UnixMilli()
	resp, body = do(t, http.MethodDelete, ts.URL+"/jwt_auth?revokeTokensAt="+itoa(future), "", bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(future), body["revokeTokensAt"])
	assert.True(t, strings.HasPrefix(body["message"].(string), "All tokens will be revoked at "))

	resp, body = do(t, http.MethodGet, ts.URL+"/jwt_auth", "", bearer)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Bearer error="invalid_token"`, resp.Header.Get("WWW-Authenticate"))
	assert.Equal(t, "User must reauthenticate.", body["message"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/me", "", bearer)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Bearer error="invalid_token"`, resp.Header.Get("WWW-Authenticate"))

	resp, _ = do(t, http.MethodPut, ts.URL+"/jwt_auth", "", bearer)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	_, _ = do(t, http.MethodGet, ts.URL+"/jwt_auth", "", map[string]string{"Authorization": "Bearer garbage"})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `para_token_operations_total{operation="refresh"`)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/jwt_auth", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMain(m *testing.M) {
	os.Setenv("ENVIRONMENT", "test")
	os.Exit(m.Run())
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
