package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/tradeflow/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the binance spot api base url.
	BaseURL = "https://api.binance.com"
	// klinesPath is the candlestick data endpoint.
	klinesPath = "/api/v3/klines"
)

var (
	// binanceCadences are the kline intervals advertised by binance.
	binanceCadences = []string{"1s", "1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h",
		"8h", "12h", "1d", "3d", "1w", "1M"}

	nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// BinanceConfig represents the configuration for the binance client.
type BinanceConfig struct {
	// BaseURL is the binance api base url.
	BaseURL string
	// Timeout is the http request timeout.
	Timeout time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *BinanceConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("base url cannot be an empty string"))
	}

	return errs
}

// BinanceClient represents the binance market data api client.
type BinanceClient struct {
	cfg   *BinanceConfig
	httpc *http.Client
	buf   *bytes.Buffer
}

// Ensure the BinanceClient implements the MarketFetcher interface.
var _ shared.MarketFetcher = (*BinanceClient)(nil)

// NewBinanceClient instantiates a new binance client.
func NewBinanceClient(cfg *BinanceConfig) (*BinanceClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating binance config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Second * 5
	}

	return &BinanceClient{
		cfg:   cfg,
		httpc: &http.Client{Timeout: timeout},
		buf:   bytes.NewBuffer(make([]byte, 0, 512)),
	}, nil
}

// formURL creates full urls including paramters for the api.
func (c *BinanceClient) formURL(path string, params string) string {
	c.buf.WriteString(strings.TrimRight(c.cfg.BaseURL, "/"))
	c.buf.WriteString(path)
	c.buf.WriteString("?")
	c.buf.WriteString(params)
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// NormalizeMarket strips all non-alphanumeric characters from the market and upper cases it,
// e.g. BTC/USDT becomes BTCUSDT.
func NormalizeMarket(market string) string {
	return strings.ToUpper(nonAlphanumeric.ReplaceAllString(market, ""))
}

// Cadences returns the kline intervals supported by binance.
func (c *BinanceClient) Cadences() []string {
	return binanceCadences
}

// ParseCandles parses candles from the provided kline json data.
func ParseCandles(data []gjson.Result) ([]shared.Candle, error) {
	candles := make([]shared.Candle, 0, len(data))

	for idx := range data {
		fields := data[idx].Array()
		if len(fields) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", idx, len(fields))
		}

		candles = append(candles, shared.Candle{
			Date:   time.UnixMilli(fields[0].Int()).UTC(),
			Open:   fields[1].Float(),
			High:   fields[2].Float(),
			Low:    fields[3].Float(),
			Close:  fields[4].Float(),
			Volume: fields[5].Float(),
		})
	}

	return candles, nil
}

// FetchOHLCV fetches up to limit candles for the market at the provided cadence, starting at since.
func (c *BinanceClient) FetchOHLCV(ctx context.Context, market string, cadence shared.Cadence, since time.Time, limit int) ([]shared.Candle, error) {
	params := url.Values{}
	params.Add("symbol", NormalizeMarket(market))
	params.Add("interval", cadence.String())
	params.Add("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	if limit > 0 {
		params.Add("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(klinesPath, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating klines request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching klines (%s) for %s: %w", cadence.String(), market, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "msg").String()
		if msg == "" {
			msg = string(body)
		}
		return nil, fmt.Errorf("fetching klines (%s) for %s: status %d: %s",
			cadence.String(), market, resp.StatusCode, msg)
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("unexpected klines payload: %s", string(body))
	}

	return ParseCandles(parsed.Array())
}
