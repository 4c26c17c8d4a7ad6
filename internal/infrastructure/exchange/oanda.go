package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
)

const (
	OANDAPracticeURL = "https://api-fxpractice.oanda.com"
	OANDALiveURL     = "https://api-fxtrade.oanda.com"

	// one lot is sent as 1000 units
	oandaUnitsPerLot = 1000
)

type OANDAAdapter struct {
	token     string
	accountID string
	rest      *restClient
}

func NewOANDAAdapter(token, accountID, baseURL string, rps float64) *OANDAAdapter {
	if baseURL == "" {
		baseURL = OANDAPracticeURL
	}
	return &OANDAAdapter{
		token:     token,
		accountID: accountID,
		rest:      newRESTClient("oanda", baseURL, rps, 2),
	}
}

func (o *OANDAAdapter) Name() string                  { return "oanda" }
func (o *OANDAAdapter) Class() domain.InstrumentClass { return domain.ClassLot }

func (o *OANDAAdapter) send(ctx context.Context, method, path, op string, payload interface{}) ([]byte, error) {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := o.rest.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Datetime-Format", "UNIX")
	return o.rest.do(req, op)
}

func (o *OANDAAdapter) FetchCandles(ctx context.Context, instrument, timeframe string, count int) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("granularity", timeframe)
	q.Set("count", strconv.Itoa(count))
	q.Set("price", "M")
	path := fmt.Sprintf("/v3/instruments/%s/candles?%s", OANDAInstrument(instrument), q.Encode())

	resp, err := o.send(ctx, "GET", path, "candles", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Candles []struct {
			Time     string `json:"time"`
			Volume   int64  `json:"volume"`
			Complete bool   `json:"complete"`
			Mid      struct {
				O string `json:"o"`
				H string `json:"h"`
				L string `json:"l"`
				C string `json:"c"`
			} `json:"mid"`
		} `json:"candles"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("%w: oanda candles: %v", domain.ErrMalformedInput, err)
	}

	candles := make([]domain.Candle, 0, len(result.Candles))
	for _, raw := range result.Candles {
		ts, _ := strconv.ParseFloat(raw.Time, 64)
		open, _ := strconv.ParseFloat(raw.Mid.O, 64)
		high, _ := strconv.ParseFloat(raw.Mid.H, 64)
		low, _ := strconv.ParseFloat(raw.Mid.L, 64)
		closePrice, _ := strconv.ParseFloat(raw.Mid.C, 64)
		candles = append(candles, domain.Candle{
			Time:   int64(ts),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: float64(raw.Volume),
		})
	}
	return candles, nil
}

func (o *OANDAAdapter) PlaceOrder(ctx context.Context, d domain.TradeDecision) (domain.TradeResult, error) {
	units := int64(math.Round(d.Size * oandaUnitsPerLot))
	if units == 0 {
		return domain.TradeResult{}, domain.NewBrokerError("oanda", "place_order", 0, fmt.Errorf("size %v rounds to zero units", d.Size))
	}
	if d.Side == domain.SideSell {
		units = -units
	}

	order := map[string]interface{}{
		"instrument":   OANDAInstrument(d.Instrument),
		"units":        strconv.FormatInt(units, 10),
		"type":         "MARKET",
		"positionFill": "DEFAULT",
	}
	if d.StopLoss > 0 {
		order["stopLossOnFill"] = map[string]string{"price": formatPrice(d.Instrument, d.StopLoss)}
	}
	if d.TakeProfit > 0 {
		order["takeProfitOnFill"] = map[string]string{"price": formatPrice(d.Instrument, d.TakeProfit)}
	}

	path := fmt.Sprintf("/v3/accounts/%s/orders", o.accountID)
	resp, err := o.send(ctx, "POST", path, "place_order", map[string]interface{}{"order": order})
	if err != nil {
		return domain.TradeResult{}, err
	}

	var result struct {
		OrderFillTransaction *struct {
			ID    string `json:"id"`
			Price string `json:"price"`
			Units string `json:"units"`
			PL    string `json:"pl"`
		} `json:"orderFillTransaction"`
		OrderCancelTransaction *struct {
			Reason string `json:"reason"`
		} `json:"orderCancelTransaction"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return domain.TradeResult{}, domain.NewBrokerError("oanda", "place_order", 0, err)
	}
	if result.OrderFillTransaction == nil {
		reason := "no fill transaction"
		if result.OrderCancelTransaction != nil {
			reason = "cancelled: " + result.OrderCancelTransaction.Reason
		}
		return domain.TradeResult{}, domain.NewBrokerError("oanda", "place_order", 0, errors.New(reason))
	}

	fill := result.OrderFillTransaction
	price, _ := strconv.ParseFloat(fill.Price, 64)
	pl, _ := strconv.ParseFloat(fill.PL, 64)
	return domain.TradeResult{
		ID:          "oanda-" + fill.ID,
		Instrument:  d.Instrument,
		Broker:      "oanda",
		Side:        d.Side,
		Size:        d.Size,
		Price:       price,
		RealizedPnL: pl,
		Status:      domain.StatusFilled,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (o *OANDAAdapter) GetBalance(ctx context.Context) (float64, error) {
	resp, err := o.send(ctx, "GET", fmt.Sprintf("/v3/accounts/%s/summary", o.accountID), "balance", nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Account struct {
			Balance string `json:"balance"`
			NAV     string `json:"NAV"`
		} `json:"account"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, domain.NewBrokerError("oanda", "balance", 0, err)
	}
	balance, err := strconv.ParseFloat(result.Account.Balance, 64)
	if err != nil {
		return 0, domain.NewBrokerError("oanda", "balance", 0, fmt.Errorf("bad balance %q", result.Account.Balance))
	}
	return balance, nil
}

func (o *OANDAAdapter) Ping(ctx context.Context) bool {
	_, err := o.GetBalance(ctx)
	return err == nil
}

// formatPrice rounds to the precision OANDA accepts: 3 decimals on JPY
// crosses, 5 elsewhere.
func formatPrice(instrument string, p float64) string {
	decimals := 5
	if strings.HasSuffix(OANDAInstrument(instrument), "_JPY") {
		decimals = 3
	}
	return strconv.FormatFloat(p, 'f', decimals, 64)
}
