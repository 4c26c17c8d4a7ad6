package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
	"go.uber.org/zap"
)

type Stage string

const (
	StageFetch     Stage = "fetch"
	StageSignal    Stage = "signal"
	StageThreshold Stage = "threshold"
	StageGate      Stage = "gate"
	StageSize      Stage = "size"
	StageReserve   Stage = "reserve"
	StageDispatch  Stage = "dispatch"
	StageRecorded  Stage = "recorded"
)

// PipelineConfig is fixed for a run.
type PipelineConfig struct {
	Timeframe   string
	CandleCount int
	Risk        domain.RiskConfig
	Threshold   domain.ThresholdConfig
	Sizing      domain.SizingConfig
	// SizingModes picks the sizing mode per broker name; tiered when absent.
	SizingModes map[string]domain.SizingMode
}

// CycleOutcome describes how far one instrument got through the pipeline.
type CycleOutcome struct {
	Target    domain.Target
	Stage     Stage
	Signal    *domain.ScoredSignal
	Threshold float64
	Decision  *domain.TradeDecision
	Result    *domain.TradeResult
	Err       error
}

// Rejected reports a normal decision-flow rejection as opposed to a fault.
func (o CycleOutcome) Rejected() bool {
	return domain.IsRejection(o.Err)
}

// Traded reports whether an order was filled.
func (o CycleOutcome) Traded() bool {
	return o.Result != nil && o.Result.Status == domain.StatusFilled
}

type Pipeline struct {
	cfg        PipelineConfig
	gate       *Gatekeeper
	dispatcher *Dispatcher
	sizer      *PositionSizer
	logger     *zap.Logger
	metrics    Metrics
	timeNow    func() time.Time
}

func NewPipeline(cfg PipelineConfig, gate *Gatekeeper, dispatcher *Dispatcher, logger *zap.Logger, metrics Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if cfg.CandleCount < MinCandles {
		cfg.CandleCount = 100
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "M5"
	}
	return &Pipeline{
		cfg:        cfg,
		gate:       gate,
		dispatcher: dispatcher,
		sizer:      NewPositionSizer(cfg.Risk, cfg.Sizing),
		logger:     logger,
		metrics:    metrics,
		timeNow:    time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.timeNow = now
}

// Process runs one instrument through fetch, score, gate, size, dispatch and record.
func (p *Pipeline) Process(ctx context.Context, target domain.Target) CycleOutcome {
	out := p.process(ctx, target)
	p.metrics.ObserveStage(target.Broker, string(out.Stage))

	fields := []zap.Field{
		zap.String("instrument", target.Instrument),
		zap.String("broker", target.Broker),
		zap.String("stage", string(out.Stage)),
	}
	if out.Signal != nil {
		fields = append(fields,
			zap.Float64("confidence", out.Signal.Confidence),
			zap.String("strength", string(out.Signal.Strength)),
			zap.Float64("threshold", out.Threshold))
	}

	switch {
	case out.Err == nil:
		p.logger.Info("Cycle completed", fields...)
	case out.Rejected():
		p.logger.Info("Trade rejected", append(fields, zap.String("reason", out.Err.Error()))...)
	case errors.Is(out.Err, domain.ErrCircuitBreaker):
		p.logger.Warn("Trade recorded, breaker tripped", append(fields, zap.Error(out.Err))...)
	default:
		p.logger.Error("Cycle failed", append(fields, zap.Error(out.Err))...)
	}
	return out
}

func (p *Pipeline) process(ctx context.Context, target domain.Target) CycleOutcome {
	out := CycleOutcome{Target: target, Stage: StageFetch}

	broker, ok := p.dispatcher.Broker(target.Broker)
	if !ok {
		out.Err = fmt.Errorf("%w: unknown broker %q", domain.ErrBroker, target.Broker)
		return out
	}

	candles, err := broker.FetchCandles(ctx, target.Instrument, p.cfg.Timeframe, p.cfg.CandleCount)
	if err != nil {
		out.Err = fmt.Errorf("fetch candles: %w", err)
		return out
	}

	now := p.timeNow()
	out.Stage = StageSignal
	sig, err := BuildSignal(target, candles, p.cfg.Risk, now)
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		// neutral indicators, scored conservatively
		p.logger.Warn("Malformed candle window, using neutral indicators",
			zap.String("instrument", target.Instrument),
			zap.String("broker", target.Broker),
			zap.Error(err))
	case err != nil:
		out.Err = err
		return out
	}
	scored := Score(sig)
	out.Signal = &scored
	p.metrics.ObserveConfidence(target.Broker, scored.Confidence)

	out.Stage = StageThreshold
	out.Threshold = AdaptiveThreshold(sig.Indicators.VolatilitySpike, now.UTC().Hour(), p.cfg.Threshold)
	if !Qualifies(scored.Confidence, out.Threshold) {
		out.Err = fmt.Errorf("%w: confidence %.2f < %.2f", domain.ErrBelowThreshold, scored.Confidence, out.Threshold)
		return out
	}

	key := target.Key()
	out.Stage = StageGate
	if err := p.gate.Check(key); err != nil {
		out.Err = err
		return out
	}

	out.Stage = StageSize
	mode := p.cfg.SizingModes[target.Broker]
	size := p.sizer.Size(mode, broker.Class(), scored.Confidence, sig.ReferencePrice, p.gate.Snapshot().CurrentBalance)
	if size <= 0 {
		out.Err = fmt.Errorf("%w: confidence %.2f at price %v", domain.ErrZeroSize, scored.Confidence, sig.ReferencePrice)
		return out
	}

	decision := domain.TradeDecision{
		Instrument:     target.Instrument,
		Broker:         target.Broker,
		Side:           sig.Side,
		Size:           size,
		ReferencePrice: sig.ReferencePrice,
		StopLoss:       sig.StopLoss,
		TakeProfit:     sig.TakeProfit,
		Confidence:     scored.Confidence,
	}
	out.Decision = &decision

	out.Stage = StageReserve
	res, err := p.gate.Reserve(key)
	if err != nil {
		out.Err = err
		return out
	}

	out.Stage = StageDispatch
	result := p.dispatcher.Dispatch(ctx, decision, target.Broker, target.Fallback)
	out.Result = &result

	out.Stage = StageRecorded
	// the trade already happened; recording must outlive a cancelled cycle
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.gate.RecordResult(recordCtx, res, result); err != nil {
		out.Err = err
		return out
	}
	if result.Status != domain.StatusFilled {
		out.Err = domain.NewBrokerError(result.Broker, "place_order", 0, errors.New(result.Reason))
	}
	return out
}
