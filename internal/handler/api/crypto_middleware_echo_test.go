package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/usecase"
)

type fakeSignals struct {
	mu         sync.Mutex
	runResp    models.SignalsResponse
	runErr     error
	runSymbols []string
	latest     models.SignalsResponse
	histSymbol string
	histLimit  int
	feed       *usecase.SignalFeed
}

func (f *fakeSignals) Run(_ context.Context, symbols []string) (models.SignalsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runSymbols = symbols
	return f.runResp, f.runErr
}

func (f *fakeSignals) Latest(context.Context) (models.SignalsResponse, error) { return f.latest, nil }

func (f *fakeSignals) History(_ context.Context, symbol string, limit int) ([]models.NormalizedSignal, error) {
	f.histSymbol, f.histLimit = symbol, limit
	return []models.NormalizedSignal{{ID: "BTCUSDT-x", Symbol: "BTCUSDT"}}, nil
}

func (f *fakeSignals) Live(context.Context) (models.LiveResponse, error) {
	return models.LiveResponse{GeneratedAt: "t", Symbols: map[string]models.NormalizedSignal{}}, nil
}

func (f *fakeSignals) Macro(context.Context) (models.MacroResponse, error) {
	return models.MacroResponse{MacroContext: models.MacroContext{Badge: models.BadgeRiskOn, MacroScore: 70}}, nil
}

func (f *fakeSignals) Feed() *usecase.SignalFeed { return f.feed }

type fakeRefresh struct {
	running bool
	err     error
}

func (f *fakeRefresh) Start(context.Context) (bool, models.RefreshRunState, error) {
	if f.err != nil {
		return false, models.RefreshRunState{Message: "failed to start refresh: " + f.err.Error()}, f.err
	}
	if f.running {
		return false, models.RefreshRunState{Running: true, Message: "running signal generation..."}, nil
	}
	f.running = true
	return true, models.RefreshRunState{RunID: "r1", Running: true, Message: "running signal generation..."}, nil
}

func (f *fakeRefresh) Status() models.RefreshRunState {
	return models.RefreshRunState{Running: f.running, Message: "idle"}
}

type fakeTrades struct {
	symbol  string
	limit   int
	summary json.RawMessage
}

func (f *fakeTrades) RecentTrades(_ context.Context, symbol string, limit int) (models.RecentTradesResponse, error) {
	f.symbol, f.limit = symbol, limit
	return models.RecentTradesResponse{Symbol: "ALL", Trades: []models.TradeRecord{}}, nil
}

func (f *fakeTrades) BacktestSummary(context.Context) (json.RawMessage, error) {
	if f.summary == nil {
		return nil, fmt.Errorf("backtest_summary.json: %w", models.ErrNotFound)
	}
	return f.summary, nil
}

func (f *fakeTrades) BacktestTrades(_ context.Context, symbol string, limit int) (models.BacktestTradesResponse, error) {
	f.symbol, f.limit = symbol, limit
	return models.BacktestTradesResponse{Symbol: symbol, Trades: []json.RawMessage{}}, nil
}

// fakeGate grants "viewer" the view tier and "runner" both tiers.
type fakeGate struct{}

func (fakeGate) Require(_ context.Context, token string, capability usecase.Capability) (*drepo.User, error) {
	switch token {
	case "runner":
		return &drepo.User{ID: 1}, nil
	case "viewer":
		if capability == usecase.CapabilityView {
			return &drepo.User{ID: 2}, nil
		}
		return nil, models.ErrForbidden
	default:
		return nil, models.ErrUnauthenticated
	}
}

type countingLimiter struct {
	budget int
	seen   map[string]int
}

func (l *countingLimiter) Allow(key string) bool {
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[key]++
	return l.seen[key] <= l.budget
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEcho(sig *fakeSignals, ref *fakeRefresh, lim RateLimiter) *echo.Echo {
	e := echo.New()
	NewCryptoMiddlewareHandler(nil, sig, ref, &fakeTrades{}, fakeGate{}, lim, "").RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestAuthTiers(t *testing.T) {
	e := newTestEcho(&fakeSignals{}, &fakeRefresh{}, nil)

	rec, _ := do(t, e, http.MethodGet, "/api/crypto-middleware/latest", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/crypto-middleware/latest", "viewer", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, e, http.MethodPost, "/api/crypto-middleware/run", "viewer", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_FORBIDDEN")

	rec, _ = do(t, e, http.MethodGet, "/api/crypto-middleware/refresh-status", "viewer", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionCookie(t *testing.T) {
	e := newTestEcho(&fakeSignals{}, &fakeRefresh{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/crypto-middleware/macro", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "viewer"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"badge":"risk_on"`)
}

func TestRun(t *testing.T) {
	sig := &fakeSignals{runResp: models.SignalsResponse{
		GeneratedAt: "2024-01-01T00:00:00.000Z",
		Signals:     []models.NormalizedSignal{{ID: "BTCUSDT-2024-01-01T00:00:00.000Z", Symbol: "BTCUSDT", Stage: models.StageFull}},
	}}
	e := newTestEcho(sig, &fakeRefresh{}, nil)

	rec, env := do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", `{"symbols":["btcusdt","ETHUSDT"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"btcusdt", "ETHUSDT"}, sig.runSymbols)

	var got models.SignalsResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, sig.runResp, got)

	rec, _ = do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sig.runSymbols)
}

func TestRunValidation(t *testing.T) {
	e := newTestEcho(&fakeSignals{}, &fakeRefresh{}, nil)

	rec, env := do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", `{"symbols":["BT"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_MIN")

	rec, env = do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", `{"symbols":["ABCDEFGHIJKLMNOPQRSTU"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_MAX")

	rec, _ = do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", `{"symbols":"BTCUSDT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunLeavesSymbolFilteringToEngine(t *testing.T) {
	sig := &fakeSignals{}
	e := newTestEcho(sig, &fakeRefresh{}, nil)

	bodies := map[string][]string{
		`{"symbols":["DOGE-USD"]}`: {"DOGE-USD"},
		`{"symbols":[" ethusdt"]}`: {" ethusdt"},
		`{"symbols":["BTCUSDT","ETHUSDT","XRPUSDT","AAA","BBB","CCC","DDD","EEE","FFF","GGG","HHH"]}`: {
			"BTCUSDT", "ETHUSDT", "XRPUSDT", "AAA", "BBB", "CCC", "DDD", "EEE", "FFF", "GGG", "HHH",
		},
	}
	for body, want := range bodies {
		rec, _ := do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", body)
		assert.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, want, sig.runSymbols, body)
	}

	rec, _ := do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", `{"symbols":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sig.runSymbols)
	assert.Empty(t, sig.runSymbols)
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&models.UpstreamError{Provider: "kraken", Op: "ohlc", Status: 502}, http.StatusServiceUnavailable},
		{&models.InsufficientDataError{Symbol: "BTCUSDT", Series: "1w", Have: 10, Need: 60}, http.StatusUnprocessableEntity},
		{&models.PersistenceError{Op: "write", Path: "data/x", Err: assert.AnError}, http.StatusInternalServerError},
		{&models.ValidationError{Field: "symbols", Reason: "bad"}, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := newTestEcho(&fakeSignals{runErr: tc.err}, &fakeRefresh{}, nil)
		rec, env := do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", "")
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.NotContains(t, string(env.Data), "signals", tc.err.Error())
	}
}

func TestHistoryLimitClamp(t *testing.T) {
	sig := &fakeSignals{}
	e := newTestEcho(sig, &fakeRefresh{}, nil)

	cases := map[string]int{
		"":            50,
		"?limit=10":   10,
		"?limit=9999": 500,
		"?limit=-3":   1,
	}
	for query, want := range cases {
		rec, _ := do(t, e, http.MethodGet, "/api/crypto-middleware/history"+query, "viewer", "")
		require.Equal(t, http.StatusOK, rec.Code, query)
		assert.Equal(t, want, sig.histLimit, query)
	}

	rec, env := do(t, e, http.MethodGet, "/api/crypto-middleware/history?symbol=ethusdt", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ETHUSDT", sig.histSymbol)
	assert.Contains(t, string(env.Data), `"total":1`)
}

func TestRefreshRunAndConflict(t *testing.T) {
	ref := &fakeRefresh{}
	e := newTestEcho(&fakeSignals{}, ref, nil)

	rec, env := do(t, e, http.MethodPost, "/api/crypto-middleware/refresh-run", "runner", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started models.RefreshStartResponse
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.True(t, started.Started)
	assert.Equal(t, "r1", started.Status.RunID)

	rec, env = do(t, e, http.MethodPost, "/api/crypto-middleware/refresh-run", "runner", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict models.RefreshStartResponse
	require.NoError(t, json.Unmarshal(env.Data, &conflict))
	assert.False(t, conflict.Started)
	assert.Equal(t, "refresh already in progress", conflict.Message)

	rec, env = do(t, e, http.MethodGet, "/api/crypto-middleware/refresh-status", "runner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"running":true`)
}

func TestRefreshLaunchFailure(t *testing.T) {
	e := newTestEcho(&fakeSignals{}, &fakeRefresh{err: assert.AnError}, nil)
	rec, env := do(t, e, http.MethodPost, "/api/crypto-middleware/refresh-run", "runner", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, string(env.Data), "failed to start refresh")
}

func TestRunThrottledPerUser(t *testing.T) {
	lim := &countingLimiter{budget: 1}
	e := newTestEcho(&fakeSignals{}, &fakeRefresh{}, lim)

	rec, _ := do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env := do(t, e, http.MethodPost, "/api/crypto-middleware/run", "runner", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_RATE_LIMITED")
	assert.Equal(t, 2, lim.seen["user:1"])

	// reads are not throttled
	rec, _ = do(t, e, http.MethodGet, "/api/crypto-middleware/latest", "runner", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamDisabled(t *testing.T) {
	e := newTestEcho(&fakeSignals{}, &fakeRefresh{}, nil)
	rec, _ := do(t, e, http.MethodGet, "/api/crypto-middleware/stream", "viewer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamSendsInitialThenPublished(t *testing.T) {
	feed := usecase.NewSignalFeed(4)
	defer feed.Close()
	sig := &fakeSignals{
		feed:   feed,
		latest: models.SignalsResponse{GeneratedAt: "first", Signals: []models.NormalizedSignal{}},
	}
	srv := httptest.NewServer(newTestEcho(sig, &fakeRefresh{}, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/crypto-middleware/stream"
	header := http.Header{}
	header.Set(echo.HeaderAuthorization, "Bearer viewer")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev usecase.FeedEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.True(t, ev.Initial)
	assert.Equal(t, "first", ev.Snapshot.GeneratedAt)

	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	feed.Publish(models.SignalsResponse{GeneratedAt: "second", Signals: []models.NormalizedSignal{}})

	var next usecase.FeedEvent
	require.NoError(t, conn.ReadJSON(&next))
	assert.False(t, next.Initial)
	assert.Equal(t, int64(1), next.Seq)
	assert.Equal(t, "second", next.Snapshot.GeneratedAt)
}

func TestStreamRejectsAnonymous(t *testing.T) {
	feed := usecase.NewSignalFeed(1)
	defer feed.Close()
	srv := httptest.NewServer(newTestEcho(&fakeSignals{feed: feed}, &fakeRefresh{}, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/crypto-middleware/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamOriginCheck(t *testing.T) {
	h := NewCryptoMiddlewareHandler(nil, &fakeSignals{}, &fakeRefresh{}, &fakeTrades{}, fakeGate{}, nil, "").
		AllowStreamOrigins([]string{"*", "https://desk.example.com/"})

	cases := []struct {
		name   string
		origin string
		bearer bool
		want   bool
	}{
		{"no origin", "", false, true},
		{"same host", "http://signals.local:8080", false, true},
		{"allowed", "https://desk.example.com", false, true},
		{"cross site cookie", "https://evil.example", false, false},
		{"cross site bearer", "https://evil.example", true, true},
		{"malformed", "://", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://signals.local:8080/api/crypto-middleware/stream", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.bearer {
				req.Header.Set(echo.HeaderAuthorization, "Bearer viewer")
			}
			assert.Equal(t, tc.want, h.checkStreamOrigin(req))
		})
	}
}

func TestStreamRejectsCrossSiteCookie(t *testing.T) {
	feed := usecase.NewSignalFeed(1)
	defer feed.Close()
	srv := httptest.NewServer(newTestEcho(&fakeSignals{feed: feed}, &fakeRefresh{}, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/crypto-middleware/stream"
	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	header.Set("Cookie", DefaultSessionCookie+"=viewer")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, feed.Subscribers())
}

func TestTradeEndpoints(t *testing.T) {
	trades := &fakeTrades{}
	e := echo.New()
	NewCryptoMiddlewareHandler(nil, &fakeSignals{}, &fakeRefresh{}, trades, fakeGate{}, nil, "").RegisterRoutes(e)

	limits := map[string]int{
		"/api/crypto-middleware/recent-trades":                   50,
		"/api/crypto-middleware/recent-trades?limit=0":           50,
		"/api/crypto-middleware/recent-trades?limit=abc":         50,
		"/api/crypto-middleware/recent-trades?limit=-4":          1,
		"/api/crypto-middleware/recent-trades?limit=9999":        500,
		"/api/crypto-middleware/trades?symbol=btcusdt":           20,
		"/api/crypto-middleware/trades?symbol=btcusdt&limit=900": 200,
	}
	for target, want := range limits {
		rec, _ := do(t, e, http.MethodGet, target, "viewer", "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, want, trades.limit, target)
	}

	rec, _ := do(t, e, http.MethodGet, "/api/crypto-middleware/trades?symbol=ethusdt", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ethusdt", trades.symbol)

	rec, _ = do(t, e, http.MethodGet, "/api/crypto-middleware/recent-trades", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBacktestSummary(t *testing.T) {
	trades := &fakeTrades{}
	e := echo.New()
	NewCryptoMiddlewareHandler(nil, &fakeSignals{}, &fakeRefresh{}, trades, fakeGate{}, nil, "").RegisterRoutes(e)

	rec, env := do(t, e, http.MethodGet, "/api/crypto-middleware/backtest-summary", "viewer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, string(env.Data), "backtest_summary.json")

	trades.summary = json.RawMessage(`{"symbols":{"BTCUSDT":{"trades":[]}}}`)
	rec, env = do(t, e, http.MethodGet, "/api/crypto-middleware/backtest-summary", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"symbols":{"BTCUSDT":{"trades":[]}}}`, string(env.Data))
}
