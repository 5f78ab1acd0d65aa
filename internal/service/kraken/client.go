package kraken

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	xhttp "SignalDesk/pkg/http"
	applogger "SignalDesk/pkg/logger"
)

const providerName = "kraken"

// pairs maps exchange-neutral symbols to Kraken pair names.
var pairs = map[string]string{
	"BTCUSDT": "XBTUSD",
	"ETHUSDT": "ETHUSD",
	"XRPUSDT": "XRPUSD",
}

// Client fetches OHLC candles from the Kraken public API.
type Client struct {
	baseURL string
	http    *xhttp.Client
	metrics drepo.Metrics
	log     *applogger.Logger
}

// New creates a Kraken candle source.
func New(baseURL string, httpClient *xhttp.Client, metrics drepo.Metrics, l *applogger.Logger) *Client {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		metrics: metrics,
		log:     l.Component(providerName),
	}
}

func (c *Client) Name() string { return providerName }

// Pair returns the Kraken pair for symbol, passing unknown symbols through.
func Pair(symbol string) string {
	if p, ok := pairs[symbol]; ok {
		return p
	}
	return symbol
}

type ohlcResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// FetchCandles returns the candle series for symbol at interval. A response
// without usable rows yields an empty slice.
func (c *Client) FetchCandles(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error) {
	start := time.Now()
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/0/public/OHLC",
		QueryParams: map[string][]string{
			"pair":     {Pair(symbol)},
			"interval": {strconv.Itoa(interval.Minutes())},
		},
	}, &body)
	if err != nil {
		c.metrics.RecordUpstream(providerName, false)
		return nil, upstreamError("ohlc "+interval.Label(), err)
	}

	var resp ohlcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.metrics.RecordUpstream(providerName, false)
		return nil, upstreamError("ohlc "+interval.Label(), fmt.Errorf("decode: %w", err))
	}
	if len(resp.Error) > 0 {
		c.metrics.RecordUpstream(providerName, false)
		return nil, &models.UpstreamError{
			Provider: providerName,
			Op:       "ohlc " + interval.Label(),
			Err:      fmt.Errorf("kraken returned error for %s: %s", symbol, strings.Join(resp.Error, ",")),
		}
	}
	c.metrics.RecordUpstream(providerName, true)

	candles, err := ParseOHLC(resp.Result)
	if err != nil {
		return nil, upstreamError("ohlc "+interval.Label(), err)
	}

	c.log.Debug("candles fetched",
		applogger.String("symbol", symbol),
		applogger.String("interval", interval.Label()),
		applogger.Int("count", len(candles)),
		applogger.Duration("took", time.Since(start)))
	return candles, nil
}

func upstreamError(op string, err error) error {
	ue := &models.UpstreamError{Provider: providerName, Op: op, Err: err}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		ue.Status = se.StatusCode
	}
	return ue
}

// ParseOHLC extracts candles from the result object. The series lives under
// an opaque pair key; the first key other than "last" is used.
func ParseOHLC(result json.RawMessage) ([]models.Candle, error) {
	if len(bytes.TrimSpace(result)) == 0 || bytes.Equal(bytes.TrimSpace(result), []byte("null")) {
		return []models.Candle{}, nil
	}

	rowsRaw, err := firstSeries(result)
	if err != nil {
		return nil, err
	}
	if rowsRaw == nil {
		return []models.Candle{}, nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(rowsRaw, &rows); err != nil {
		// not an array: no usable rows
		return []models.Candle{}, nil
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, raw := range rows {
		var row []interface{}
		if err := json.Unmarshal(raw, &row); err != nil || len(row) < 7 {
			continue
		}
		cl := number(row[4])
		if math.IsNaN(cl) || math.IsInf(cl, 0) {
			continue
		}
		sec := number(row[0])
		var ts time.Time
		if !math.IsNaN(sec) && !math.IsInf(sec, 0) {
			ts = time.Unix(int64(sec), 0).UTC()
		}
		candles = append(candles, models.Candle{
			Time:   ts,
			Open:   number(row[1]),
			High:   number(row[2]),
			Low:    number(row[3]),
			Close:  cl,
			Volume: number(row[6]),
		})
	}
	return candles, nil
}

// firstSeries walks the object keys in document order.
func firstSeries(result json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(result))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode result key: %w", err)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode result value: %w", err)
		}
		if key, _ := keyTok.(string); key != "last" {
			return value, nil
		}
	}
	return nil, nil
}

// number converts a JSON number or numeric string; anything else is NaN.
func number(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

var _ drepo.CandleSource = (*Client)(nil)
