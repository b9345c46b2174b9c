package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
)

// Client talks to the OKX v5 REST API
type Client struct {
	baseURL       string
	apiKey        string
	apiSecret     string
	passphrase    string
	quoteCurrency string
	client        *http.Client
	log           zerolog.Logger
	now           func() time.Time
}

// Config holds OKX client configuration
type Config struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	Passphrase    string
	QuoteCurrency string
	Log           zerolog.Logger
}

// NewClient creates a new OKX REST client
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		apiSecret:     cfg.APISecret,
		passphrase:    cfg.Passphrase,
		quoteCurrency: cfg.QuoteCurrency,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: cfg.Log.With().Str("client", "okx").Logger(),
		now: time.Now,
	}
}

// apiResponse is the OKX v5 envelope; code "0" means success
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get makes a GET request; signed requests carry the OKX auth headers
func (c *Client) get(ctx context.Context, path string, signed bool) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if signed {
		c.sign(req, http.MethodGet, path, "")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// sign adds the OK-ACCESS-* headers. The signature is the base64 HMAC-SHA256
// of timestamp + method + path + body.
func (c *Client) sign(req *http.Request, method, path, body string) {
	timestamp := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	prehash := timestamp + strings.ToUpper(method) + path + body

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(prehash))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", signature)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("Content-Type", "application/json")
}

// parseResponse parses the OKX envelope
func (c *Client) parseResponse(resp *http.Response) (*apiResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Code != "0" {
		return nil, fmt.Errorf("okx api error: code=%s msg=%s", result.Code, result.Msg)
	}

	return &result, nil
}

// balanceDetail is one currency entry in the account balance response
type balanceDetail struct {
	Currency string `json:"ccy"`
	Equity   string `json:"eq"`
}

type balanceData struct {
	Details []balanceDetail `json:"details"`
}

// FetchBalances reads the account balance and returns held quantities per
// asset. Zero and negative equities are dropped.
func (c *Client) FetchBalances(ctx context.Context) (domain.BalanceSnapshot, error) {
	resp, err := c.get(ctx, "/api/v5/account/balance", true)
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("failed to fetch balances: %w", err)
	}

	var data []balanceData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("failed to parse balance data: %w", err)
	}
	if len(data) == 0 {
		return domain.BalanceSnapshot{}, fmt.Errorf("empty balance data")
	}

	quantities := make(map[string]float64)
	for _, d := range data[0].Details {
		amount, err := strconv.ParseFloat(d.Equity, 64)
		if err != nil {
			c.log.Warn().Str("ccy", d.Currency).Str("eq", d.Equity).Msg("Unparseable equity, skipping")
			continue
		}
		if amount > 0 {
			quantities[d.Currency] = amount
		}
	}

	return domain.BalanceSnapshot{
		AsOf:       c.now(),
		Quantities: quantities,
	}, nil
}

// ticker is one instrument in the market tickers response
type ticker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	VolCcy24h string `json:"volCcy24h"`
}

// FetchQuotes reads spot tickers and returns quotes for instruments settled
// in the configured quote currency, keyed by instrument ID (e.g. BTC-USDT).
func (c *Client) FetchQuotes(ctx context.Context) (map[string]domain.PriceQuote, error) {
	resp, err := c.get(ctx, "/api/v5/market/tickers?instType=SPOT", false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickers: %w", err)
	}

	var tickers []ticker
	if err := json.Unmarshal(resp.Data, &tickers); err != nil {
		return nil, fmt.Errorf("failed to parse tickers: %w", err)
	}

	suffix := "-" + c.quoteCurrency
	quotes := make(map[string]domain.PriceQuote)
	for _, t := range tickers {
		if !strings.HasSuffix(t.InstID, suffix) {
			continue
		}

		last, err := strconv.ParseFloat(t.Last, 64)
		if err != nil || last <= 0 {
			continue
		}
		open, _ := strconv.ParseFloat(t.Open24h, 64)
		vol, _ := strconv.ParseFloat(t.VolCcy24h, 64)

		change := 0.0
		if open > 0 {
			change = (last - open) / open
		}

		quotes[t.InstID] = domain.PriceQuote{
			InstID:    t.InstID,
			LastPrice: last,
			Open24h:   open,
			Change24h: change,
			Volume24h: vol,
		}
	}

	return quotes, nil
}
