package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"trading-core/internal/balance"
	"trading-core/internal/events"
	"trading-core/internal/ledger"
	"trading-core/internal/notifier"
	"trading-core/internal/ratelimit"
	"trading-core/internal/wallet"
	"trading-core/pkg/crypto"
	"trading-core/pkg/db"
	"trading-core/pkg/solrpc"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	database := &db.Database{DB: raw}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	queries := db.NewUserQueries(raw)

	keys, err := crypto.NewKeyManagerFromSecret("test-operator-secret", t.TempDir()+"/salt")
	if err != nil {
		t.Fatalf("key manager: %v", err)
	}
	wallets, err := wallet.New(database, keys, t.TempDir())
	if err != nil {
		t.Fatalf("wallet store: %v", err)
	}

	bus := events.NewBus()
	fake := solrpc.NewFake()
	gate := ratelimit.New(1000, 100)
	balances := balance.New(fake, gate, bus, time.Minute, 10)
	led := ledger.New(queries)
	sockets := notifier.NewWebSocketSink()

	return NewServer(bus, database, queries, wallets, balances, led, sockets, 1_000_000, "test-jwt-secret")
}

func registerAndLogin(t *testing.T, s *Server, email, password string) string {
	t.Helper()

	body, _ := json.Marshal(gin.H{"username": "tester", "email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
	}

	body, _ = json.Marshal(gin.H{"email": email, "password": password})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatalf("login response missing token: %s", w.Body.String())
	}
	return token
}

func authedRequest(method, path, token string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestCreateWalletThenExportRoundTrips(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "alice@example.com", "hunter2pass")

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(http.MethodPost, "/api/v1/wallet", token, nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("createWallet failed: %d %s", w.Code, w.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode createWallet response: %v", err)
	}
	if created["mnemonic"] == "" || created["public_key"] == "" {
		t.Fatalf("createWallet response missing fields: %v", created)
	}

	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(http.MethodPost, "/api/v1/wallet/export", token, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("exportKey failed: %d %s", w.Code, w.Body.String())
	}
	var exported map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &exported); err != nil {
		t.Fatalf("decode exportKey response: %v", err)
	}
	if exported["mnemonic"] != created["mnemonic"] {
		t.Fatalf("exported mnemonic does not match created mnemonic")
	}
}

func TestCreateWalletTwiceReturnsAlreadyExists(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "bob@example.com", "hunter2pass")

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(http.MethodPost, "/api/v1/wallet", token, nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("first createWallet failed: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(http.MethodPost, "/api/v1/wallet", token, nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected conflict on second createWallet, got %d %s", w.Code, w.Body.String())
	}
}

func TestWalletRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without a token, got %d", w.Code)
	}
}

func TestGetBalanceWithoutWalletReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "carol@example.com", "hunter2pass")

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(http.MethodGet, "/api/v1/balance", token, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected not found before a wallet exists, got %d %s", w.Code, w.Body.String())
	}
}

func TestGetMetricsForNewUserIsZeroed(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "dave@example.com", "hunter2pass")

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(http.MethodGet, "/api/v1/metrics", token, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("getMetrics failed: %d %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode getMetrics response: %v", err)
	}
	if resp["trade_count"].(float64) != 0 {
		t.Fatalf("expected zero trades for a new user, got %v", resp["trade_count"])
	}
}

func TestGetLeaderboardIsUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("leaderboard should be reachable without auth, got %d %s", w.Code, w.Body.String())
	}
}

func TestUpdatePreferencesPersists(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "erin@example.com", "hunter2pass")

	body, _ := json.Marshal(gin.H{"enabled_strategies": []string{"arbitrage"}, "notifications_enabled": false})
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, authedRequest(http.MethodPut, "/api/v1/preferences", token, body))
	if w.Code != http.StatusOK {
		t.Fatalf("updatePreferences failed: %d %s", w.Code, w.Body.String())
	}

	userID, err := parseToken(token, "test-jwt-secret")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	prefs, err := s.Queries.GetPreferences(context.Background(), userID)
	if err != nil {
		t.Fatalf("read back preferences: %v", err)
	}
	if len(prefs.EnabledStrategies) != 1 || prefs.EnabledStrategies[0] != "arbitrage" || prefs.NotificationsEnabled {
		t.Fatalf("preferences not persisted as sent, got %+v", prefs)
	}
}
