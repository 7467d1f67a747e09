// Package ledger provides the durable contract/trade/config store the
// grid engine reads and writes on every monitor tick.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"gridtrader/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteLedger implements core.ILedger on top of a WAL-mode SQLite file.
type SQLiteLedger struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// Close closes the underlying database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// CreateContract inserts a new ACTIVE contract row and returns its id.
// ExistsByBuyOrderID should be checked first by the caller so this never
// races against the buy_order_id unique index under normal operation; the
// index itself is the last line of defense against a duplicate insert.
func (l *SQLiteLedger) CreateContract(ctx context.Context, c *core.Contract) (int64, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO contracts (market, buy_price, buy_amount, target_price, status, buy_order_id, current_order_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Market, c.BuyPrice.String(), c.BuyAmount.String(), c.TargetPrice.String(),
		string(core.ContractActive), c.BuyOrderID, c.CurrentOrderID, c.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert contract: %w", err)
	}
	return res.LastInsertId()
}

// ExistsByBuyOrderID reports whether a contract already exists for
// buyOrderID, the idempotency check the buy-fill handler runs before
// CreateContract.
func (l *SQLiteLedger) ExistsByBuyOrderID(ctx context.Context, buyOrderID string) (bool, error) {
	var count int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM contracts WHERE buy_order_id = ?`, buyOrderID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check buy_order_id: %w", err)
	}
	return count > 0, nil
}

func scanContract(scan func(dest ...interface{}) error) (*core.Contract, error) {
	var c core.Contract
	var status string
	var buyPrice, buyAmount, targetPrice, sellPrice, profit, profitRate string
	var createdAt, finishedAt int64

	if err := scan(&c.ID, &c.Market, &buyPrice, &buyAmount, &targetPrice, &status,
		&c.BuyOrderID, &c.CurrentOrderID, &createdAt, &finishedAt, &sellPrice, &profit, &profitRate); err != nil {
		return nil, err
	}

	c.Status = core.ContractStatus(status)
	c.BuyPrice, _ = decimal.NewFromString(buyPrice)
	c.BuyAmount, _ = decimal.NewFromString(buyAmount)
	c.TargetPrice, _ = decimal.NewFromString(targetPrice)
	c.SellPrice, _ = decimal.NewFromString(sellPrice)
	c.Profit, _ = decimal.NewFromString(profit)
	c.ProfitRate, _ = decimal.NewFromString(profitRate)
	c.CreatedAt = time.Unix(0, createdAt)
	if finishedAt > 0 {
		c.FinishedAt = time.Unix(0, finishedAt)
	}

	return &c, nil
}

const contractColumns = `id, market, buy_price, buy_amount, target_price, status, buy_order_id, current_order_id, created_at, finished_at, sell_price, profit, profit_rate`

// ListActive returns every ACTIVE contract, oldest first.
func (l *SQLiteLedger) ListActive(ctx context.Context) ([]*core.Contract, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE status = ? ORDER BY id ASC`, string(core.ContractActive))
	if err != nil {
		return nil, fmt.Errorf("list active contracts: %w", err)
	}
	defer rows.Close()

	var out []*core.Contract
	for rows.Next() {
		c, err := scanContract(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByCurrentOrderID looks up the contract whose live sell (or buy)
// order is orderID.
func (l *SQLiteLedger) FindByCurrentOrderID(ctx context.Context, orderID string) (*core.Contract, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE current_order_id = ?`, orderID)
	c, err := scanContract(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find contract by current_order_id: %w", err)
	}
	return c, nil
}

// FindByID loads one contract by primary key.
func (l *SQLiteLedger) FindByID(ctx context.Context, id int64) (*core.Contract, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find contract by id: %w", err)
	}
	return c, nil
}

// UpdateCurrentOrderID updates the mutable current_order_id column, used
// both to record a newly placed sell order and to clear it to "" when
// placement fails.
func (l *SQLiteLedger) UpdateCurrentOrderID(ctx context.Context, id int64, newOrderID string) error {
	_, err := l.db.ExecContext(ctx, `UPDATE contracts SET current_order_id = ? WHERE id = ?`, newOrderID, id)
	if err != nil {
		return fmt.Errorf("update current_order_id: %w", err)
	}
	return nil
}

// CloseContract marks a contract CLOSED and records its sell outcome
// inside one atomic statement.
func (l *SQLiteLedger) CloseContract(ctx context.Context, id int64, sellPrice, profit, profitRate decimal.Decimal, finishedAt int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE contracts
		SET status = ?, current_order_id = '', sell_price = ?, profit = ?, profit_rate = ?, finished_at = ?
		WHERE id = ?`,
		string(core.ContractClosed), sellPrice.String(), profit.String(), profitRate.String(), finishedAt, id,
	)
	if err != nil {
		return fmt.Errorf("close contract: %w", err)
	}
	return nil
}

// AppendTrade writes one append-only trade row.
func (l *SQLiteLedger) AppendTrade(ctx context.Context, t *core.Trade) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO trades (contract_id, type, price, amount, fee, profit, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ContractID, string(t.Type), t.Price.String(), t.Amount.String(), t.Fee.String(), t.Profit.String(), t.ExecutedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// SetConfig upserts a key/value pair in the config table.
func (l *SQLiteLedger) SetConfig(ctx context.Context, key, value string) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// GetConfig reads one config value, reporting found=false if absent.
func (l *SQLiteLedger) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config: %w", err)
	}
	return value, true, nil
}

// RecentClosed returns the most recently closed contracts, newest first.
func (l *SQLiteLedger) RecentClosed(ctx context.Context, limit int) ([]*core.Contract, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE status = ? ORDER BY finished_at DESC LIMIT ?`,
		string(core.ContractClosed), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent closed contracts: %w", err)
	}
	defer rows.Close()

	var out []*core.Contract
	for rows.Next() {
		c, err := scanContract(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
