package binance

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"

	binance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"
)

const (
	providerName = "binance"
	klineLimit   = 720
)

// KlinesFetcher is the slice of the Binance SDK the candle source needs.
type KlinesFetcher interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]*binance.Kline, error)
}

type sdkFetcher struct {
	client *binance.Client
}

func (f *sdkFetcher) Klines(ctx context.Context, symbol, interval string, limit int) ([]*binance.Kline, error) {
	return f.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
}

// Client fetches candles from Binance public klines.
type Client struct {
	fetcher KlinesFetcher
	limiter *rate.Limiter
	timeout time.Duration
	metrics drepo.Metrics
	log     *applogger.Logger
}

// New creates a Binance candle source. An empty baseURL keeps the SDK default.
func New(baseURL string, timeout time.Duration, ratePerSec float64, burst int, metrics drepo.Metrics, l *applogger.Logger) *Client {
	sdk := binance.NewClient("", "")
	if baseURL != "" {
		sdk.BaseURL = baseURL
	}
	return NewWithFetcher(&sdkFetcher{client: sdk}, timeout, ratePerSec, burst, metrics, l)
}

// NewWithFetcher builds a client around any KlinesFetcher.
func NewWithFetcher(f KlinesFetcher, timeout time.Duration, ratePerSec float64, burst int, metrics drepo.Metrics, l *applogger.Logger) *Client {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	c := &Client{
		fetcher: f,
		timeout: timeout,
		metrics: metrics,
		log:     l.Component(providerName),
	}
	if ratePerSec > 0 {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return c
}

func (c *Client) Name() string { return providerName }

// FetchCandles returns up to 720 klines, dropping rows with a non-numeric close.
func (c *Client) FetchCandles(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error) {
	iv, err := binanceInterval(interval)
	if err != nil {
		return nil, &models.UpstreamError{Provider: providerName, Op: "klines", Err: err}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &models.UpstreamError{Provider: providerName, Op: "klines " + iv, Err: err}
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	klines, err := c.fetcher.Klines(ctx, symbol, iv, klineLimit)
	if err != nil {
		c.metrics.RecordUpstream(providerName, false)
		return nil, &models.UpstreamError{Provider: providerName, Op: "klines " + iv, Err: err}
	}
	c.metrics.RecordUpstream(providerName, true)

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		cl := parse(k.Close)
		if math.IsNaN(cl) || math.IsInf(cl, 0) {
			continue
		}
		candles = append(candles, models.Candle{
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   parse(k.Open),
			High:   parse(k.High),
			Low:    parse(k.Low),
			Close:  cl,
			Volume: parse(k.Volume),
		})
	}
	c.log.Debug("klines fetched",
		applogger.String("symbol", symbol),
		applogger.String("interval", iv),
		applogger.Int("count", len(candles)))
	return candles, nil
}

func binanceInterval(i models.Interval) (string, error) {
	switch i {
	case models.Interval1H:
		return "1h", nil
	case models.Interval4H:
		return "4h", nil
	case models.Interval1W:
		return "1w", nil
	default:
		return "", fmt.Errorf("unsupported interval %d", i)
	}
}

func parse(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

var _ drepo.CandleSource = (*Client)(nil)
