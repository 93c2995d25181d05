package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chartist/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS backtests (
		id              TEXT PRIMARY KEY,
		symbol          TEXT NOT NULL,
		timeframe       TEXT NOT NULL,
		strategy        TEXT NOT NULL,
		start_date      TEXT NOT NULL,
		end_date        TEXT NOT NULL,
		initial_balance TEXT NOT NULL,
		final_balance   TEXT NOT NULL,
		risk_per_trade  TEXT NOT NULL,
		total_trades    INTEGER NOT NULL,
		winning_trades  INTEGER NOT NULL,
		losing_trades   INTEGER NOT NULL,
		win_rate        REAL NOT NULL,
		average_win     TEXT NOT NULL,
		average_loss    TEXT NOT NULL,
		profit_factor   TEXT,
		max_drawdown    TEXT NOT NULL,
		max_drawdown_pct REAL NOT NULL,
		total_return    TEXT NOT NULL,
		total_return_pct REAL NOT NULL,
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtests_symbol ON backtests(symbol, created_at)`,
	`CREATE TABLE IF NOT EXISTS backtest_trades (
		backtest_id    TEXT NOT NULL REFERENCES backtests(id) ON DELETE CASCADE,
		seq            INTEGER NOT NULL,
		symbol         TEXT NOT NULL,
		side           TEXT NOT NULL,
		entry_price    TEXT NOT NULL,
		entry_time     TEXT NOT NULL,
		size           INTEGER NOT NULL,
		stop_loss      TEXT NOT NULL,
		take_profit    TEXT NOT NULL,
		exit_price     TEXT,
		exit_time      TEXT,
		exit_reason    TEXT,
		pnl            TEXT,
		pnl_percentage TEXT,
		PRIMARY KEY (backtest_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_analysis (
		backtest_id TEXT NOT NULL REFERENCES backtests(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		timestamp   TEXT NOT NULL,
		decision    TEXT NOT NULL,
		chart_image BLOB,
		PRIMARY KEY (backtest_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_equity_curve (
		backtest_id TEXT NOT NULL REFERENCES backtests(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		timestamp   TEXT NOT NULL,
		balance     TEXT NOT NULL,
		PRIMARY KEY (backtest_id, seq)
	)`,
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// ResultSink implementation
// ---------------------------------------------------------------------------

// SaveResult inserts the backtest row, then its trades (only when there are
// any), analysis history and equity curve, all inside one transaction. An
// empty r.ID gets a fresh UUID; the id used is returned.
func (s *SQLiteStore) SaveResult(ctx context.Context, r *domain.BacktestResult) (string, error) {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck

	st := r.Stats
	_, err = tx.ExecContext(ctx, `INSERT INTO backtests (
		id, symbol, timeframe, strategy, start_date, end_date,
		initial_balance, final_balance, risk_per_trade,
		total_trades, winning_trades, losing_trades, win_rate,
		average_win, average_loss, profit_factor,
		max_drawdown, max_drawdown_pct, total_return, total_return_pct, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Symbol, r.Timeframe, r.Strategy, fmtTime(r.StartDate), fmtTime(r.EndDate),
		r.InitialBalance, r.FinalBalance, r.RiskPerTrade,
		st.TotalTrades, st.WinningTrades, st.LosingTrades, st.WinRate,
		st.AverageWin, st.AverageLoss, ratioValue(st.ProfitFactor),
		st.MaxDrawdown, st.MaxDrawdownPercentage, st.TotalReturn, st.TotalReturnPercentage, fmtTime(createdAt),
	)
	if err != nil {
		return "", fmt.Errorf("inserting backtest: %w", err)
	}

	if len(r.Trades) > 0 {
		if err := insertTrades(ctx, tx, id, r.Trades); err != nil {
			return "", err
		}
	}
	if err := insertAnalysis(ctx, tx, id, r.AnalysisHistory); err != nil {
		return "", err
	}
	if err := insertEquity(ctx, tx, id, r.EquityCurve); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func insertTrades(ctx context.Context, tx *sql.Tx, id string, trades []domain.Position) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_trades (
		backtest_id, seq, symbol, side, entry_price, entry_time, size, stop_loss, take_profit,
		exit_price, exit_time, exit_reason, pnl, pnl_percentage
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range trades {
		var exitPrice, exitTime, reason, pnl, pct any
		if p.Exit != nil {
			exitPrice = p.Exit.Price
			exitTime = fmtTime(p.Exit.Time)
			reason = string(p.Exit.Reason)
			pnl = p.Exit.PnL
			pct = ratioValue(p.Exit.PnLPercentage)
		}
		if _, err := stmt.ExecContext(ctx, id, i, p.Symbol, string(p.Side), p.EntryPrice, fmtTime(p.EntryTime),
			p.Size, p.StopLoss, p.TakeProfit, exitPrice, exitTime, reason, pnl, pct); err != nil {
			return fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}
	return nil
}

func insertAnalysis(ctx context.Context, tx *sql.Tx, id string, records []domain.AnalysisRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO backtest_analysis (backtest_id, seq, timestamp, decision, chart_image) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range records {
		decision, err := json.Marshal(a.Decision)
		if err != nil {
			return fmt.Errorf("encoding analysis %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, id, i, fmtTime(a.Timestamp), string(decision), a.Artifact); err != nil {
			return fmt.Errorf("inserting analysis %d: %w", i, err)
		}
	}
	return nil
}

func insertEquity(ctx context.Context, tx *sql.Tx, id string, curve []domain.EquityPoint) error {
	if len(curve) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO backtest_equity_curve (backtest_id, seq, timestamp, balance) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, pt := range curve {
		if _, err := stmt.ExecContext(ctx, id, i, fmtTime(pt.Timestamp), pt.Balance); err != nil {
			return fmt.Errorf("inserting equity point %d: %w", i, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Read side
// ---------------------------------------------------------------------------

const backtestColumns = `id, symbol, timeframe, strategy, start_date, end_date,
	initial_balance, final_balance, risk_per_trade,
	total_trades, winning_trades, losing_trades, win_rate,
	average_win, average_loss, profit_factor,
	max_drawdown, max_drawdown_pct, total_return, total_return_pct, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBacktest(row rowScanner) (*domain.BacktestResult, error) {
	var (
		r                   domain.BacktestResult
		start, end, created string
		profitFactor        sql.NullString
	)
	err := row.Scan(&r.ID, &r.Symbol, &r.Timeframe, &r.Strategy, &start, &end,
		&r.InitialBalance, &r.FinalBalance, &r.RiskPerTrade,
		&r.Stats.TotalTrades, &r.Stats.WinningTrades, &r.Stats.LosingTrades, &r.Stats.WinRate,
		&r.Stats.AverageWin, &r.Stats.AverageLoss, &profitFactor,
		&r.Stats.MaxDrawdown, &r.Stats.MaxDrawdownPercentage, &r.Stats.TotalReturn, &r.Stats.TotalReturnPercentage, &created)
	if err != nil {
		return nil, err
	}
	if r.StartDate, err = parseTime(start); err != nil {
		return nil, err
	}
	if r.EndDate, err = parseTime(end); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if r.Stats.ProfitFactor, err = parseRatio(profitFactor); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetBacktest returns the summary row for id, or ErrNotFound.
func (s *SQLiteStore) GetBacktest(ctx context.Context, id string) (*domain.BacktestResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backtestColumns+` FROM backtests WHERE id = ?`, id)
	r, err := scanBacktest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backtest %s: %w", id, ErrNotFound)
	}
	return r, err
}

// ListBacktests returns summaries newest first.
func (s *SQLiteStore) ListBacktests(ctx context.Context, symbol string, limit int) ([]domain.BacktestResult, error) {
	q := `SELECT ` + backtestColumns + ` FROM backtests`
	var args []any
	if symbol != "" {
		q += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BacktestResult
	for rows.Next() {
		r, err := scanBacktest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// exists turns an empty child listing for an unknown id into ErrNotFound.
func (s *SQLiteStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM backtests WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("backtest %s: %w", id, ErrNotFound)
	}
	return err
}

// ListTrades returns the trade log of a backtest.
func (s *SQLiteStore) ListTrades(ctx context.Context, id string) ([]domain.Position, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, side, entry_price, entry_time, size, stop_loss, take_profit,
		exit_price, exit_time, exit_reason, pnl, pnl_percentage
		FROM backtest_trades WHERE backtest_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var (
			p                     domain.Position
			side, entryTime       string
			exitPrice, pnl        decimal.NullDecimal
			exitTime, reason, pct sql.NullString
		)
		if err := rows.Scan(&p.Symbol, &side, &p.EntryPrice, &entryTime, &p.Size, &p.StopLoss, &p.TakeProfit,
			&exitPrice, &exitTime, &reason, &pnl, &pct); err != nil {
			return nil, err
		}
		p.Side = domain.PositionSide(side)
		if p.EntryTime, err = parseTime(entryTime); err != nil {
			return nil, err
		}
		if exitTime.Valid {
			exit := &domain.Exit{
				Price:  exitPrice.Decimal,
				Reason: domain.ExitReason(reason.String),
				PnL:    pnl.Decimal,
			}
			if exit.Time, err = parseTime(exitTime.String); err != nil {
				return nil, err
			}
			if exit.PnLPercentage, err = parseRatio(pct); err != nil {
				return nil, err
			}
			p.Exit = exit
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListEquityCurve returns the equity curve of a backtest.
func (s *SQLiteStore) ListEquityCurve(ctx context.Context, id string) ([]domain.EquityPoint, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, balance FROM backtest_equity_curve WHERE backtest_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EquityPoint
	for rows.Next() {
		var (
			pt domain.EquityPoint
			ts string
		)
		if err := rows.Scan(&ts, &pt.Balance); err != nil {
			return nil, err
		}
		if pt.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// ListAnalysis returns the analysis history of a backtest.
func (s *SQLiteStore) ListAnalysis(ctx context.Context, id string) ([]domain.AnalysisRecord, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, decision, chart_image FROM backtest_analysis WHERE backtest_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AnalysisRecord
	for rows.Next() {
		var (
			a            domain.AnalysisRecord
			ts, decision string
		)
		if err := rows.Scan(&ts, &decision, &a.Artifact); err != nil {
			return nil, err
		}
		if a.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(decision), &a.Decision); err != nil {
			return nil, fmt.Errorf("decoding analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Column codecs
// ---------------------------------------------------------------------------

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// ratioValue stores NaN as NULL and infinities by name.
func ratioValue(r domain.Ratio) any {
	if math.IsNaN(r.Float()) {
		return nil
	}
	return r.String()
}

func parseRatio(ns sql.NullString) (domain.Ratio, error) {
	if !ns.Valid {
		return domain.Ratio(math.NaN()), nil
	}
	switch ns.String {
	case "Infinity":
		return domain.Ratio(math.Inf(1)), nil
	case "-Infinity":
		return domain.Ratio(math.Inf(-1)), nil
	}
	f, err := strconv.ParseFloat(ns.String, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ratio %q: %w", ns.String, err)
	}
	return domain.Ratio(f), nil
}
