package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, run_id, symbol, side, quantity, leverage, entry_price, exit_price, open_time, close_time, realized_pl, forced, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Symbol, t.Side, t.Quantity, t.Leverage,
		t.EntryPrice, t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPL,
		boolToInt(t.Forced), t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, balance, equity, unrealized_pl)
		VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Balance, e.Equity, e.UnrealizedPL,
	)
	return err
}

func (j *SQLite) RecordRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, created, symbol, strategy, timeframe, window_start, window_end, leverage,
		 start_balance, final_balance, total_return_pct, mdd_pct, win_rate_pct,
		 total_trades, total_liquidations, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Symbol, r.Strategy, r.Timeframe,
		r.WindowStart, r.WindowEnd, r.Leverage,
		r.StartBalance, r.FinalBalance, r.TotalReturnPct, r.MDDPct, r.WinRatePct,
		r.TotalTrades, r.TotalLiquidations, r.Status, r.Error,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
