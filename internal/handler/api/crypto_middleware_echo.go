package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	historyDefaultLimit = 50
	historyMaxLimit     = 500
	tradesDefaultLimit  = 50
	tradesMaxLimit      = 500
	backtestDefault     = 20
	backtestMaxLimit    = 200
)

// SignalAPI is the signal invocation surface served over HTTP.
type SignalAPI interface {
	Run(ctx context.Context, symbols []string) (models.SignalsResponse, error)
	Latest(ctx context.Context) (models.SignalsResponse, error)
	History(ctx context.Context, symbol string, limit int) ([]models.NormalizedSignal, error)
	Live(ctx context.Context) (models.LiveResponse, error)
	Macro(ctx context.Context) (models.MacroResponse, error)
	Feed() *usecase.SignalFeed
}

// RefreshAPI controls the background generation job.
type RefreshAPI interface {
	Start(ctx context.Context) (bool, models.RefreshRunState, error)
	Status() models.RefreshRunState
}

// TradeAPI serves the trade journal and backtest output.
type TradeAPI interface {
	RecentTrades(ctx context.Context, symbol string, limit int) (models.RecentTradesResponse, error)
	BacktestSummary(ctx context.Context) (json.RawMessage, error)
	BacktestTrades(ctx context.Context, symbol string, limit int) (models.BacktestTradesResponse, error)
}

// CryptoMiddlewareHandler serves /api/crypto-middleware.
type CryptoMiddlewareHandler struct {
	logger     *applogger.Logger
	signals    SignalAPI
	refresh    RefreshAPI
	trades     TradeAPI
	gate       Authorizer
	limiter    RateLimiter
	cookieName string
	origins    []string
	upgrader   websocket.Upgrader
}

func NewCryptoMiddlewareHandler(
	logger *applogger.Logger,
	signals SignalAPI,
	refresh RefreshAPI,
	trades TradeAPI,
	gate Authorizer,
	limiter RateLimiter,
	cookieName string,
) *CryptoMiddlewareHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	h := &CryptoMiddlewareHandler{
		logger:     logger.Component("crypto_middleware_api"),
		signals:    signals,
		refresh:    refresh,
		trades:     trades,
		gate:       gate,
		limiter:    limiter,
		cookieName: cookieName,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:       h.checkStreamOrigin,
		EnableCompression: true,
	}
	return h
}

// AllowStreamOrigins lists cross-site origins that may open the stream with
// the session cookie. "*" is ignored here.
func (h *CryptoMiddlewareHandler) AllowStreamOrigins(origins []string) *CryptoMiddlewareHandler {
	h.origins = h.origins[:0]
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			h.origins = append(h.origins, strings.TrimRight(o, "/"))
		}
	}
	return h
}

func (h *CryptoMiddlewareHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/crypto-middleware")
	view := RequireCapability(h.gate, h.cookieName, usecase.CapabilityView)
	run := RequireCapability(h.gate, h.cookieName, usecase.CapabilityRun)
	throttle := Throttle(h.limiter)

	g.POST("/run", h.Run, run, throttle)
	g.GET("/latest", h.Latest, view)
	g.GET("/history", h.History, view)
	g.GET("/live", h.Live, view)
	g.GET("/macro", h.Macro, view)
	g.GET("/stream", h.Stream, view)
	g.GET("/recent-trades", h.RecentTrades, view)
	g.GET("/trades", h.BacktestTrades, view)
	g.GET("/backtest-summary", h.BacktestSummary, view)
	g.POST("/refresh-run", h.RefreshRun, run, throttle)
	g.GET("/refresh-status", h.RefreshStatus, run)
}

// Run computes and saves signals for the requested symbols.
func (h *CryptoMiddlewareHandler) Run(c echo.Context) error {
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.signals.Run(c.Request().Context(), req.Symbols)
	if err != nil {
		return h.fail(c, "signal run failed", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CryptoMiddlewareHandler) Latest(c echo.Context) error {
	res, err := h.signals.Latest(c.Request().Context())
	if err != nil {
		return h.fail(c, "read latest failed", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, no-cache")
	return xhttp.SuccessResponse(c, res)
}

// History returns stored signals newest-first. limit is clamped to 1..500.
func (h *CryptoMiddlewareHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	limit := req.Limit
	if limit == 0 {
		limit = historyDefaultLimit
	}
	limit = util.ClampInt(limit, 1, historyMaxLimit)

	rows, err := h.signals.History(c.Request().Context(), strings.ToUpper(req.Symbol), limit)
	if err != nil {
		return h.fail(c, "read history failed", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// RecentTrades returns journal entries newest-first. limit is clamped to 1..500.
func (h *CryptoMiddlewareHandler) RecentTrades(c echo.Context) error {
	limit := xhttp.QueryLimit(c.QueryParam("limit"), tradesDefaultLimit, 1, tradesMaxLimit)
	res, err := h.trades.RecentTrades(c.Request().Context(), c.QueryParam("symbol"), limit)
	if err != nil {
		return h.fail(c, "read trades failed", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// BacktestTrades returns the tail of a symbol's backtest trades. limit is
// clamped to 1..200.
func (h *CryptoMiddlewareHandler) BacktestTrades(c echo.Context) error {
	limit := xhttp.QueryLimit(c.QueryParam("limit"), backtestDefault, 1, backtestMaxLimit)
	res, err := h.trades.BacktestTrades(c.Request().Context(), c.QueryParam("symbol"), limit)
	if err != nil {
		return h.fail(c, "read backtest trades failed", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CryptoMiddlewareHandler) BacktestSummary(c echo.Context) error {
	res, err := h.trades.BacktestSummary(c.Request().Context())
	if err != nil {
		return h.fail(c, "read backtest summary failed", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CryptoMiddlewareHandler) Live(c echo.Context) error {
	res, err := h.signals.Live(c.Request().Context())
	if err != nil {
		return h.fail(c, "read live failed", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CryptoMiddlewareHandler) Macro(c echo.Context) error {
	res, err := h.signals.Macro(c.Request().Context())
	if err != nil {
		return h.fail(c, "macro context failed", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// RefreshRun starts the background job: 202 when started, 409 when one is
// already running.
func (h *CryptoMiddlewareHandler) RefreshRun(c echo.Context) error {
	started, state, err := h.refresh.Start(c.Request().Context())
	if err != nil {
		h.logger.Error("refresh launch failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c,
			xhttp.InternalError(state.Message).WithParam("status", state).WithError(err))
	}
	if !started {
		return xhttp.ConflictResponse(c, models.RefreshStartResponse{
			Started: false,
			Status:  state,
			Message: models.ErrRefreshRunning.Error(),
		})
	}
	return xhttp.AcceptedResponse(c, models.RefreshStartResponse{Started: true, Status: state})
}

func (h *CryptoMiddlewareHandler) RefreshStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.refresh.Status())
}

func (h *CryptoMiddlewareHandler) fail(c echo.Context, msg string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(msg, applogger.Error(err))
	} else {
		h.logger.Warn(msg, applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
