package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
)

// PaperBroker fills every order at the reference price. Candles come from
// the wrapped feed so dry runs see live data. It keeps a net position per
// instrument; fills that reduce a position realize PnL into the balance.
type PaperBroker struct {
	feed domain.Broker

	mu        sync.Mutex
	balance   float64
	orders    []domain.TradeDecision
	positions map[string]paperPosition
}

// paperPosition is signed: negative quantity is short.
type paperPosition struct {
	qty float64
	avg float64
}

func NewPaperBroker(feed domain.Broker, startingBalance float64) *PaperBroker {
	return &PaperBroker{feed: feed, balance: startingBalance, positions: make(map[string]paperPosition)}
}

// contractSize converts size times price difference into account currency.
func contractSize(class domain.InstrumentClass) float64 {
	if class == domain.ClassLot {
		return oandaUnitsPerLot
	}
	return 1
}

func (p *PaperBroker) Name() string { return "paper" }

func (p *PaperBroker) Class() domain.InstrumentClass {
	if p.feed == nil {
		return domain.ClassLot
	}
	return p.feed.Class()
}

func (p *PaperBroker) FetchCandles(ctx context.Context, instrument, timeframe string, count int) ([]domain.Candle, error) {
	if p.feed == nil {
		return nil, fmt.Errorf("%w: paper broker has no data feed", domain.ErrInsufficientData)
	}
	return p.feed.FetchCandles(ctx, instrument, timeframe, count)
}

func (p *PaperBroker) PlaceOrder(ctx context.Context, d domain.TradeDecision) (domain.TradeResult, error) {
	if d.Size <= 0 || d.ReferencePrice <= 0 {
		return domain.TradeResult{}, domain.NewBrokerError("paper", "place_order", 0, fmt.Errorf("invalid order size=%v price=%v", d.Size, d.ReferencePrice))
	}

	signed := d.Size
	if d.Side == domain.SideSell {
		signed = -signed
	}

	p.mu.Lock()
	p.orders = append(p.orders, d)
	pos, pnl := applyFill(p.positions[d.Instrument], signed, d.ReferencePrice, contractSize(p.Class()))
	if pos.qty == 0 {
		delete(p.positions, d.Instrument)
	} else {
		p.positions[d.Instrument] = pos
	}
	p.balance += pnl
	p.mu.Unlock()

	return domain.TradeResult{
		Instrument:  d.Instrument,
		Broker:      "paper",
		Side:        d.Side,
		Size:        d.Size,
		Price:       d.ReferencePrice,
		RealizedPnL: pnl,
		Status:      domain.StatusFilled,
		Reason:      "simulated",
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// applyFill nets a signed fill into pos and returns the PnL realized by the
// part of the fill that closed existing exposure.
func applyFill(pos paperPosition, signed, price, contract float64) (paperPosition, float64) {
	if pos.qty == 0 || (pos.qty > 0) == (signed > 0) {
		total := math.Abs(pos.qty) + math.Abs(signed)
		pos.avg = (math.Abs(pos.qty)*pos.avg + math.Abs(signed)*price) / total
		pos.qty += signed
		return pos, 0
	}

	closed := math.Min(math.Abs(pos.qty), math.Abs(signed))
	direction := 1.0
	if pos.qty < 0 {
		direction = -1
	}
	pnl := closed * (price - pos.avg) * direction * contract

	pos.qty += signed
	switch {
	case math.Abs(pos.qty) < 1e-12:
		pos = paperPosition{}
	case (pos.qty > 0) != (direction > 0):
		// flipped: the remainder opened at this price
		pos.avg = price
	}
	return pos, pnl
}

func (p *PaperBroker) GetBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *PaperBroker) Ping(ctx context.Context) bool { return true }

// Position returns the signed net quantity and average entry for instrument.
func (p *PaperBroker) Position(instrument string) (qty, avg float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.positions[instrument]
	return pos.qty, pos.avg
}

// Orders returns a copy of every simulated order.
func (p *PaperBroker) Orders() []domain.TradeDecision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TradeDecision(nil), p.orders...)
}
