package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/signal_trader/internal/domain"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore implements domain.Store. Timestamps are stored as RFC3339 text so a
// damaged row can be skipped instead of failing the whole load.
type SQLiteStore struct {
	db *sqlx.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// one writer; the gatekeeper already serialises writes
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cooldowns (
			broker TEXT NOT NULL,
			instrument TEXT NOT NULL,
			last_trade_at TEXT NOT NULL,
			PRIMARY KEY (broker, instrument)
		);`,
		`CREATE TABLE IF NOT EXISTS trade_results (
			id TEXT PRIMARY KEY,
			day TEXT NOT NULL,
			instrument TEXT NOT NULL,
			broker TEXT NOT NULL,
			side TEXT NOT NULL,
			size REAL NOT NULL,
			price REAL NOT NULL,
			realized_pnl REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_results_day ON trade_results(day);`,
		`CREATE TABLE IF NOT EXISTS risk_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			day TEXT NOT NULL,
			daily_start_balance REAL NOT NULL,
			current_balance REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			consecutive_losses INTEGER NOT NULL,
			tripped BOOLEAN NOT NULL DEFAULT 0,
			halt_reason TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// CooldownRepository Implementation

type cooldownRow struct {
	Broker      string `db:"broker"`
	Instrument  string `db:"instrument"`
	LastTradeAt string `db:"last_trade_at"`
}

func (s *SQLiteStore) LoadCooldowns(ctx context.Context) (map[domain.InstrumentKey]time.Time, error) {
	var rows []cooldownRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT broker, instrument, last_trade_at FROM cooldowns`); err != nil {
		return nil, fmt.Errorf("load cooldowns: %w", err)
	}

	out := make(map[domain.InstrumentKey]time.Time, len(rows))
	for _, r := range rows {
		at, err := time.Parse(timeLayout, r.LastTradeAt)
		if err != nil || r.Instrument == "" {
			continue
		}
		out[domain.NewInstrumentKey(r.Broker, r.Instrument)] = at
	}
	return out, nil
}

func (s *SQLiteStore) SaveCooldown(ctx context.Context, key domain.InstrumentKey, at time.Time) error {
	query := `INSERT INTO cooldowns (broker, instrument, last_trade_at)
			  VALUES (?, ?, ?)
			  ON CONFLICT(broker, instrument) DO UPDATE SET
			  last_trade_at=excluded.last_trade_at`
	_, err := s.db.ExecContext(ctx, query, key.Broker, key.Instrument, at.UTC().Format(timeLayout))
	return err
}

// LedgerRepository Implementation

type tradeRow struct {
	ID          string  `db:"id"`
	Day         string  `db:"day"`
	Instrument  string  `db:"instrument"`
	Broker      string  `db:"broker"`
	Side        string  `db:"side"`
	Size        float64 `db:"size"`
	Price       float64 `db:"price"`
	RealizedPnL float64 `db:"realized_pnl"`
	Status      string  `db:"status"`
	Reason      string  `db:"reason"`
	CreatedAt   string  `db:"created_at"`
}

func (s *SQLiteStore) AppendTradeResult(ctx context.Context, day string, r domain.TradeResult) error {
	if r.ID == "" {
		return errors.New("append trade result: empty id")
	}
	row := tradeRow{
		ID:          r.ID,
		Day:         day,
		Instrument:  r.Instrument,
		Broker:      r.Broker,
		Side:        string(r.Side),
		Size:        r.Size,
		Price:       r.Price,
		RealizedPnL: r.RealizedPnL,
		Status:      string(r.Status),
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt.UTC().Format(timeLayout),
	}
	query := `INSERT INTO trade_results (id, day, instrument, broker, side, size, price, realized_pnl, status, reason, created_at)
			  VALUES (:id, :day, :instrument, :broker, :side, :size, :price, :realized_pnl, :status, :reason, :created_at)`
	_, err := s.db.NamedExecContext(ctx, query, row)
	return err
}

func (s *SQLiteStore) ListTradeResults(ctx context.Context, day string) ([]domain.TradeResult, error) {
	var rows []tradeRow
	query := `SELECT id, day, instrument, broker, side, size, price, realized_pnl, status, reason, created_at
			  FROM trade_results WHERE day = ? ORDER BY created_at, id`
	if err := s.db.SelectContext(ctx, &rows, query, day); err != nil {
		return nil, fmt.Errorf("list trade results: %w", err)
	}

	out := make([]domain.TradeResult, 0, len(rows))
	for _, r := range rows {
		created, _ := time.Parse(timeLayout, r.CreatedAt)
		out = append(out, domain.TradeResult{
			ID:          r.ID,
			Instrument:  r.Instrument,
			Broker:      r.Broker,
			Side:        domain.Side(r.Side),
			Size:        r.Size,
			Price:       r.Price,
			RealizedPnL: r.RealizedPnL,
			Status:      domain.TradeStatus(r.Status),
			Reason:      r.Reason,
			CreatedAt:   created,
		})
	}
	return out, nil
}

// DailyPnL sums realized PnL of filled trades for a day.
func (s *SQLiteStore) DailyPnL(ctx context.Context, day string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.GetContext(ctx, &total,
		`SELECT SUM(realized_pnl) FROM trade_results WHERE day = ? AND status = ?`, day, string(domain.StatusFilled))
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

// RiskStateRepository Implementation

type riskRow struct {
	Day               string  `db:"day"`
	DailyStartBalance float64 `db:"daily_start_balance"`
	CurrentBalance    float64 `db:"current_balance"`
	RealizedPnL       float64 `db:"realized_pnl"`
	ConsecutiveLosses int     `db:"consecutive_losses"`
	Tripped           bool    `db:"tripped"`
	HaltReason        string  `db:"halt_reason"`
	UpdatedAt         string  `db:"updated_at"`
}

// LoadRiskState returns nil when nothing is stored or the stored row is unusable.
func (s *SQLiteStore) LoadRiskState(ctx context.Context) (*domain.RiskSnapshot, error) {
	var r riskRow
	err := s.db.GetContext(ctx, &r, `SELECT day, daily_start_balance, current_balance, realized_pnl,
		consecutive_losses, tripped, halt_reason, updated_at FROM risk_state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load risk state: %w", err)
	}

	if _, err := time.Parse("2006-01-02", r.Day); err != nil {
		return nil, nil
	}
	updated, _ := time.Parse(timeLayout, r.UpdatedAt)
	return &domain.RiskSnapshot{
		Day:               r.Day,
		DailyStartBalance: r.DailyStartBalance,
		CurrentBalance:    r.CurrentBalance,
		RealizedPnL:       r.RealizedPnL,
		ConsecutiveLosses: r.ConsecutiveLosses,
		Tripped:           r.Tripped,
		HaltReason:        r.HaltReason,
		UpdatedAt:         updated,
	}, nil
}

func (s *SQLiteStore) SaveRiskState(ctx context.Context, snap domain.RiskSnapshot) error {
	row := riskRow{
		Day:               snap.Day,
		DailyStartBalance: snap.DailyStartBalance,
		CurrentBalance:    snap.CurrentBalance,
		RealizedPnL:       snap.RealizedPnL,
		ConsecutiveLosses: snap.ConsecutiveLosses,
		Tripped:           snap.Tripped,
		HaltReason:        snap.HaltReason,
		UpdatedAt:         snap.UpdatedAt.UTC().Format(timeLayout),
	}
	query := `INSERT INTO risk_state (id, day, daily_start_balance, current_balance, realized_pnl, consecutive_losses, tripped, halt_reason, updated_at)
			  VALUES (1, :day, :daily_start_balance, :current_balance, :realized_pnl, :consecutive_losses, :tripped, :halt_reason, :updated_at)
			  ON CONFLICT(id) DO UPDATE SET
			  day=excluded.day,
			  daily_start_balance=excluded.daily_start_balance,
			  current_balance=excluded.current_balance,
			  realized_pnl=excluded.realized_pnl,
			  consecutive_losses=excluded.consecutive_losses,
			  tripped=excluded.tripped,
			  halt_reason=excluded.halt_reason,
			  updated_at=excluded.updated_at`
	_, err := s.db.NamedExecContext(ctx, query, row)
	return err
}
