package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
)

const (
	AlpacaPaperURL = "https://paper-api.alpaca.markets"
	AlpacaDataURL  = "https://data.alpaca.markets"
)

// AlpacaAdapter trades whole shares. Market data and trading live on separate hosts.
type AlpacaAdapter struct {
	keyID     string
	secretKey string
	trading   *restClient
	data      *restClient
}

func NewAlpacaAdapter(keyID, secretKey, tradingURL, dataURL string, rps float64) *AlpacaAdapter {
	if tradingURL == "" {
		tradingURL = AlpacaPaperURL
	}
	if dataURL == "" {
		dataURL = AlpacaDataURL
	}
	return &AlpacaAdapter{
		keyID:     keyID,
		secretKey: secretKey,
		trading:   newRESTClient("alpaca", tradingURL, rps, 2),
		data:      newRESTClient("alpaca", dataURL, rps, 2),
	}
}

func (a *AlpacaAdapter) Name() string                  { return "alpaca" }
func (a *AlpacaAdapter) Class() domain.InstrumentClass { return domain.ClassShare }

func (a *AlpacaAdapter) send(ctx context.Context, c *restClient, method, path, op string, payload interface{}) ([]byte, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}
	req, err := c.newRequest(ctx, method, path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", a.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op)
}

func alpacaTimeframe(tf string) string {
	switch m := timeframeMinutes(tf); {
	case m >= 1440:
		return "1Day"
	case m >= 60:
		return strconv.Itoa(m/60) + "Hour"
	default:
		return strconv.Itoa(m) + "Min"
	}
}

func (a *AlpacaAdapter) FetchCandles(ctx context.Context, instrument, timeframe string, count int) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("timeframe", alpacaTimeframe(timeframe))
	q.Set("limit", strconv.Itoa(count))
	path := fmt.Sprintf("/v2/stocks/%s/bars?%s", AlpacaSymbol(instrument), q.Encode())

	resp, err := a.send(ctx, a.data, "GET", path, "candles", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Bars []struct {
			T time.Time `json:"t"`
			O float64   `json:"o"`
			H float64   `json:"h"`
			L float64   `json:"l"`
			C float64   `json:"c"`
			V float64   `json:"v"`
		} `json:"bars"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("%w: alpaca bars: %v", domain.ErrMalformedInput, err)
	}

	candles := make([]domain.Candle, 0, len(result.Bars))
	for _, b := range result.Bars {
		candles = append(candles, domain.Candle{Time: b.T.Unix(), Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V})
	}
	return candles, nil
}

func (a *AlpacaAdapter) PlaceOrder(ctx context.Context, d domain.TradeDecision) (domain.TradeResult, error) {
	order := map[string]string{
		"symbol":        AlpacaSymbol(d.Instrument),
		"qty":           strconv.FormatFloat(d.Size, 'f', -1, 64),
		"side":          string(d.Side),
		"type":          "market",
		"time_in_force": "day",
	}
	resp, err := a.send(ctx, a.trading, "POST", "/v2/orders", "place_order", order)
	if err != nil {
		return domain.TradeResult{}, err
	}

	var result struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		FilledAvgPrice string `json:"filled_avg_price"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return domain.TradeResult{}, domain.NewBrokerError("alpaca", "place_order", 0, err)
	}
	switch result.Status {
	case "rejected", "canceled", "expired":
		return domain.TradeResult{}, domain.NewBrokerError("alpaca", "place_order", 0, fmt.Errorf("order %s", result.Status))
	}

	price, err := strconv.ParseFloat(result.FilledAvgPrice, 64)
	if err != nil {
		price = d.ReferencePrice
	}
	return domain.TradeResult{
		ID:         "alpaca-" + result.ID,
		Instrument: d.Instrument,
		Broker:     "alpaca",
		Side:       d.Side,
		Size:       d.Size,
		Price:      price,
		Status:     domain.StatusFilled,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// GetBalance reports account equity.
func (a *AlpacaAdapter) GetBalance(ctx context.Context) (float64, error) {
	resp, err := a.send(ctx, a.trading, "GET", "/v2/account", "balance", nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		Equity string `json:"equity"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, domain.NewBrokerError("alpaca", "balance", 0, err)
	}
	return strconv.ParseFloat(result.Equity, 64)
}

func (a *AlpacaAdapter) Ping(ctx context.Context) bool {
	_, err := a.send(ctx, a.trading, "GET", "/v2/clock", "ping", nil)
	return err == nil
}
