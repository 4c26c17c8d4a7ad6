package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/signal_trader/internal/domain"
)

const (
	KrakenBaseURL = "https://api.kraken.com"
	KrakenWSURL   = "wss://ws.kraken.com"
)

type KrakenAdapter struct {
	apiKey    string
	apiSecret []byte
	secretErr error
	wsURL     string
	rest      *restClient

	mu        sync.Mutex
	lastNonce int64
}

func NewKrakenAdapter(apiKey, apiSecret, baseURL, wsURL string, rps float64) *KrakenAdapter {
	if baseURL == "" {
		baseURL = KrakenBaseURL
	}
	if wsURL == "" {
		wsURL = KrakenWSURL
	}
	secret, err := base64.StdEncoding.DecodeString(apiSecret)
	return &KrakenAdapter{
		apiKey:    apiKey,
		apiSecret: secret,
		secretErr: err,
		wsURL:     wsURL,
		rest:      newRESTClient("kraken", baseURL, rps, 1),
	}
}

func (k *KrakenAdapter) Name() string                  { return "kraken" }
func (k *KrakenAdapter) Class() domain.InstrumentClass { return domain.ClassCrypto }

// --- REST API ---

// krakenSign computes API-Sign: HMAC-SHA512 of path + SHA256(nonce + body), keyed by the decoded secret.
func krakenSign(path string, form url.Values, secret []byte) string {
	sha := sha256.New()
	sha.Write([]byte(form.Get("nonce") + form.Encode()))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha.Sum(nil))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (k *KrakenAdapter) nonce() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := time.Now().UnixMilli()
	if n <= k.lastNonce {
		n = k.lastNonce + 1
	}
	k.lastNonce = n
	return strconv.FormatInt(n, 10)
}

type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (k *KrakenAdapter) decode(body []byte, op string, out interface{}) error {
	var env krakenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.NewBrokerError("kraken", op, 0, err)
	}
	if len(env.Error) > 0 {
		return domain.NewBrokerError("kraken", op, 0, errors.New(strings.Join(env.Error, "; ")))
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return domain.NewBrokerError("kraken", op, 0, err)
	}
	return nil
}

func (k *KrakenAdapter) public(ctx context.Context, path string, q url.Values, op string, out interface{}) error {
	req, err := k.rest.newRequest(ctx, "GET", path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	body, err := k.rest.do(req, op)
	if err != nil {
		return err
	}
	return k.decode(body, op, out)
}

func (k *KrakenAdapter) private(ctx context.Context, path string, form url.Values, op string, out interface{}) error {
	if k.secretErr != nil {
		return domain.NewBrokerError("kraken", op, 0, fmt.Errorf("api secret: %w", k.secretErr))
	}
	form.Set("nonce", k.nonce())

	req, err := k.rest.newRequest(ctx, "POST", path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", krakenSign(path, form, k.apiSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	body, err := k.rest.do(req, op)
	if err != nil {
		return err
	}
	return k.decode(body, op, out)
}

func (k *KrakenAdapter) FetchCandles(ctx context.Context, instrument, timeframe string, count int) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("pair", KrakenPair(instrument))
	q.Set("interval", strconv.Itoa(timeframeMinutes(timeframe)))

	var result map[string]json.RawMessage
	if err := k.public(ctx, "/0/public/OHLC", q, "candles", &result); err != nil {
		return nil, err
	}

	var candles []domain.Candle
	for name, raw := range result {
		if name == "last" {
			continue
		}
		// [time, open, high, low, close, vwap, volume, count]
		var rows [][]interface{}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("%w: kraken ohlc: %v", domain.ErrMalformedInput, err)
		}
		for _, r := range rows {
			if len(r) < 7 {
				continue
			}
			ts, _ := r[0].(float64)
			candles = append(candles, domain.Candle{
				Time:   int64(ts),
				Open:   parseAny(r[1]),
				High:   parseAny(r[2]),
				Low:    parseAny(r[3]),
				Close:  parseAny(r[4]),
				Volume: parseAny(r[6]),
			})
		}
		break
	}

	if count > 0 && len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

func parseAny(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func (k *KrakenAdapter) PlaceOrder(ctx context.Context, d domain.TradeDecision) (domain.TradeResult, error) {
	form := url.Values{}
	form.Set("pair", KrakenPair(d.Instrument))
	form.Set("type", string(d.Side))
	form.Set("ordertype", "market")
	form.Set("volume", strconv.FormatFloat(d.Size, 'f', -1, 64))

	var result struct {
		Descr struct {
			Order string `json:"order"`
		} `json:"descr"`
		TxID []string `json:"txid"`
	}
	if err := k.private(ctx, "/0/private/AddOrder", form, "place_order", &result); err != nil {
		return domain.TradeResult{}, err
	}
	if len(result.TxID) == 0 {
		return domain.TradeResult{}, domain.NewBrokerError("kraken", "place_order", 0, errors.New("no txid in response"))
	}

	return domain.TradeResult{
		ID:         "kraken-" + result.TxID[0],
		Instrument: d.Instrument,
		Broker:     "kraken",
		Side:       d.Side,
		Size:       d.Size,
		Price:      d.ReferencePrice,
		Status:     domain.StatusFilled,
		Reason:     result.Descr.Order,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// GetBalance returns the USD cash balance.
func (k *KrakenAdapter) GetBalance(ctx context.Context) (float64, error) {
	var result map[string]string
	if err := k.private(ctx, "/0/private/Balance", url.Values{}, "balance", &result); err != nil {
		return 0, err
	}
	for _, asset := range []string{"ZUSD", "USD"} {
		if v, ok := result[asset]; ok {
			return strconv.ParseFloat(v, 64)
		}
	}
	return 0, domain.NewBrokerError("kraken", "balance", 0, errors.New("no USD balance"))
}

// --- WebSocket ---

// Ping dials the public websocket and waits for a pong to {"event":"ping"}.
func (k *KrakenAdapter) Ping(ctx context.Context) bool {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	c, _, err := dialer.DialContext(ctx, k.wsURL, nil)
	if err != nil {
		return false
	}
	defer c.Close()

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.SetReadDeadline(deadline)

	reqID := time.Now().UnixNano() % 1_000_000
	if err := c.WriteJSON(map[string]interface{}{"event": "ping", "reqid": reqID}); err != nil {
		return false
	}

	for {
		var msg struct {
			Event string `json:"event"`
		}
		_, data, err := c.ReadMessage()
		if err != nil {
			return false
		}
		// heartbeats, systemStatus and channel arrays are skipped
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Event == "pong" {
			return true
		}
	}
}
