package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	applogger "SignalDesk/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
	streamReadLimit  = 512
)

// Stream upgrades to a websocket, sends the stored snapshot, then every
// snapshot saved while the connection is open.
func (h *CryptoMiddlewareHandler) Stream(c echo.Context) error {
	feed := h.signals.Feed()
	if feed == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("live stream is disabled"))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already replied
		h.logger.Debug("websocket upgrade failed", applogger.Error(err))
		return nil
	}

	// subscribe before reading latest so no save falls in between
	events, cancel := feed.Subscribe()
	initial := usecase.FeedEvent{Initial: true}
	if latest, err := h.signals.Latest(c.Request().Context()); err == nil {
		initial.Snapshot = latest
	} else {
		h.logger.Warn("stream initial snapshot failed", applogger.Error(err))
	}

	go h.streamRead(conn, cancel)
	h.streamWrite(conn, initial, events)
	return nil
}

// checkStreamOrigin accepts non-browser clients, bearer-authenticated
// clients, same-host pages and explicitly allowed origins. Cookie sessions
// from any other site are rejected.
func (h *CryptoMiddlewareHandler) checkStreamOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if strings.HasPrefix(strings.ToLower(r.Header.Get(echo.HeaderAuthorization)), "bearer ") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range h.origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (h *CryptoMiddlewareHandler) streamWrite(conn *websocket.Conn, initial usecase.FeedEvent, events <-chan usecase.FeedEvent) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	if err := writeEvent(conn, initial); err != nil {
		return
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				h.logger.Debug("stream write failed", applogger.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamRead drains client frames so pongs and close frames are processed.
func (h *CryptoMiddlewareHandler) streamRead(conn *websocket.Conn, cancel func()) {
	defer cancel()

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev usecase.FeedEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
