package coingecko

import (
	"context"
	"errors"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	xhttp "SignalDesk/pkg/http"
	applogger "SignalDesk/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const providerName = "coingecko"

// Client reads market-wide statistics from CoinGecko.
type Client struct {
	baseURL      string
	http         *xhttp.Client
	priceTimeout time.Duration
	metrics      drepo.Metrics
	log          *applogger.Logger
}

// New creates a CoinGecko macro source. priceTimeout bounds the BTC price
// lookup; when it fires the BTC change is reported as 0.
func New(baseURL string, httpClient *xhttp.Client, priceTimeout time.Duration, metrics drepo.Metrics, l *applogger.Logger) *Client {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         httpClient,
		priceTimeout: priceTimeout,
		metrics:      metrics,
		log:          l.Component(providerName),
	}
}

type globalResponse struct {
	Data *struct {
		MarketCapChange24hUSD *float64 `json:"market_cap_change_percentage_24h_usd"`
	} `json:"data"`
}

type marketRow struct {
	PriceChange24h *float64 `json:"price_change_percentage_24h"`
}

// FetchMacroStats runs the global and BTC market calls concurrently.
func (c *Client) FetchMacroStats(ctx context.Context) (models.MacroStats, error) {
	var stats models.MacroStats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := c.fetchGlobal(gctx)
		if err != nil {
			return err
		}
		stats.TotalMarketCap24hChangePct = v
		return nil
	})
	g.Go(func() error {
		v, err := c.fetchBTCChange(gctx)
		if err != nil {
			return err
		}
		stats.BTC24hChangePct = v
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.MacroStats{}, err
	}
	return stats, nil
}

func (c *Client) fetchGlobal(ctx context.Context) (float64, error) {
	var resp globalResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/api/v3/global",
	}, &resp)
	c.metrics.RecordUpstream(providerName, err == nil)
	if err != nil {
		return 0, upstreamError("global", err)
	}
	if resp.Data == nil || resp.Data.MarketCapChange24hUSD == nil {
		return 0, nil
	}
	return *resp.Data.MarketCapChange24hUSD, nil
}

func (c *Client) fetchBTCChange(ctx context.Context) (float64, error) {
	pctx := ctx
	if c.priceTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.priceTimeout)
		defer cancel()
	}

	var rows []marketRow
	err := c.http.SendAndParse(pctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/api/v3/coins/markets",
		QueryParams: map[string][]string{
			"vs_currency": {"usd"},
			"ids":         {"bitcoin"},
			"sparkline":   {"false"},
		},
	}, &rows)
	if err != nil {
		if ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
			c.log.Warn("btc price lookup timed out, treating change as unavailable",
				applogger.Duration("timeout", c.priceTimeout))
			c.metrics.RecordError("macro_price_timeout")
			return 0, nil
		}
		c.metrics.RecordUpstream(providerName, false)
		return 0, upstreamError("coins/markets", err)
	}
	c.metrics.RecordUpstream(providerName, true)

	if len(rows) == 0 || rows[0].PriceChange24h == nil {
		return 0, nil
	}
	return *rows[0].PriceChange24h, nil
}

func upstreamError(op string, err error) error {
	ue := &models.UpstreamError{Provider: providerName, Op: op, Err: err}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		ue.Status = se.StatusCode
	}
	return ue
}

var _ drepo.MacroSource = (*Client)(nil)
