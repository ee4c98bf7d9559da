package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/google/uuid"
)

type DBCommissionStorage struct {
	db               *sql.DB
	getAccount       *sql.Stmt
	lockAccount      *sql.Stmt
	markProcessed    *sql.Stmt
	creditAccount    *sql.Stmt
	matureAccount    *sql.Stmt
	reserveAvailable *sql.Stmt
	insertPayout     *sql.Stmt
	getPayout        *sql.Stmt
	getPayouts       *sql.Stmt
	finalizePayout   *sql.Stmt
	addPaid          *sql.Stmt
	releaseReserved  *sql.Stmt
	applyReversal    *sql.Stmt
}

var _ CommissionStorage = (*DBCommissionStorage)(nil)

func NewDBCommissionStorage(db *sql.DB) (*DBCommissionStorage, error) {
	s := &DBCommissionStorage{db: db}
	for text, target := range map[string]**sql.Stmt{
		"SELECT pending_amount, available_amount, paid_amount, total_earned, liability_amount FROM commission_accounts WHERE referrer_kind = $1 AND referrer_id = $2":            &s.getAccount,
		"SELECT pending_amount, available_amount, paid_amount, total_earned, liability_amount FROM commission_accounts WHERE referrer_kind = $1 AND referrer_id = $2 FOR UPDATE": &s.lockAccount,
		"INSERT INTO processed_orders (order_id, effect) VALUES ($1, $2) ON CONFLICT DO NOTHING RETURNING order_id":                                                              &s.markProcessed,
		"UPDATE commission_accounts SET pending_amount = pending_amount + $3, total_earned = total_earned + $3 WHERE referrer_kind = $1 AND referrer_id = $2":                    &s.creditAccount,
		"UPDATE commission_accounts SET pending_amount = pending_amount - $3, available_amount = available_amount + $3 WHERE referrer_kind = $1 AND referrer_id = $2 AND pending_amount >= $3 RETURNING referrer_id":     &s.matureAccount,
		"UPDATE commission_accounts SET available_amount = available_amount - $3 WHERE referrer_kind = $1 AND referrer_id = $2 AND available_amount >= $3 RETURNING referrer_id":                                         &s.reserveAvailable,
		"INSERT INTO payouts (id, referrer_kind, referrer_id, amount, method, target, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)":                               &s.insertPayout,
		"SELECT id, referrer_kind, referrer_id, amount, method, target, status, created_at, processed_at FROM payouts WHERE id = $1":                                             &s.getPayout,
		"SELECT id, referrer_kind, referrer_id, amount, method, target, status, created_at, processed_at FROM payouts WHERE referrer_kind = $1 AND referrer_id = $2 ORDER BY created_at DESC":                            &s.getPayouts,
		"UPDATE payouts SET status = $2, processed_at = $3 WHERE id = $1 AND status IN ('pending', 'approved') RETURNING referrer_kind, referrer_id, amount":                     &s.finalizePayout,
		"UPDATE commission_accounts SET paid_amount = paid_amount + $3 WHERE referrer_kind = $1 AND referrer_id = $2":                                                            &s.addPaid,
		"UPDATE commission_accounts SET available_amount = available_amount + $3 WHERE referrer_kind = $1 AND referrer_id = $2":                                                  &s.releaseReserved,
		"UPDATE commission_accounts SET pending_amount = pending_amount - $3, available_amount = available_amount - $4, total_earned = total_earned - $3 - $4, liability_amount = liability_amount + $5 WHERE referrer_kind = $1 AND referrer_id = $2": &s.applyReversal,
	} {
		stmt, err := db.Prepare(text)
		if err != nil {
			return nil, fmt.Errorf("prepare %q error: %w", text, err)
		}
		*target = stmt
	}
	return s, nil
}

func (d *DBCommissionStorage) Close() {
	for _, stmt := range []*sql.Stmt{
		d.getAccount, d.lockAccount, d.markProcessed, d.creditAccount,
		d.matureAccount, d.reserveAvailable, d.insertPayout, d.getPayout,
		d.getPayouts, d.finalizePayout, d.addPaid, d.releaseReserved,
		d.applyReversal,
	} {
		stmt.Close()
	}
}

func (d *DBCommissionStorage) GetAccount(ctx context.Context, ref internal.ReferrerRef) (internal.CommissionAccount, error) {
	account := internal.CommissionAccount{Referrer: ref}
	row := d.getAccount.QueryRowContext(ctx, ref.Kind, ref.ID)
	err := row.Scan(&account.Pending, &account.Available, &account.Paid, &account.TotalEarned, &account.Liability)
	if errors.Is(err, sql.ErrNoRows) {
		return account, ErrNotFound
	} else if err != nil {
		return account, fmt.Errorf("get commission account error: %w", err)
	}
	return account, nil
}

func (d *DBCommissionStorage) CreditForOrder(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	row := tx.StmtContext(ctx, d.markProcessed).QueryRowContext(ctx, orderID, "credit")
	var marked string
	err = row.Scan(&marked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyProcessed
	} else if err != nil {
		return fmt.Errorf("mark order processed error: %w", err)
	}
	res, err := tx.StmtContext(ctx, d.creditAccount).ExecContext(ctx, ref.Kind, ref.ID, amount)
	if err != nil {
		return fmt.Errorf("credit account error: %w", err)
	}
	// No account row: roll back so the processed-order marker is not
	// consumed by a credit that landed nowhere.
	err = checkAffected(res)
	if err != nil {
		return err
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit error: %w", err)
	}
	return nil
}

func (d *DBCommissionStorage) Mature(ctx context.Context, ref internal.ReferrerRef, amount internal.Money) error {
	row := d.matureAccount.QueryRowContext(ctx, ref.Kind, ref.ID, amount)
	var id int
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInsufficientFunds
	} else if err != nil {
		return fmt.Errorf("mature commission error: %w", err)
	}
	return nil
}

func (d *DBCommissionStorage) CreatePayout(ctx context.Context, payout internal.Payout) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	row := tx.StmtContext(ctx, d.reserveAvailable).QueryRowContext(ctx, payout.Referrer.Kind, payout.Referrer.ID, payout.Amount)
	var id int
	err = row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInsufficientFunds
	} else if err != nil {
		return fmt.Errorf("reserve for payout error: %w", err)
	}
	_, err = tx.StmtContext(ctx, d.insertPayout).ExecContext(ctx,
		payout.ID, payout.Referrer.Kind, payout.Referrer.ID, payout.Amount,
		payout.Method, payout.Target, payout.Status, payout.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payout error: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit error: %w", err)
	}
	return nil
}

func (d *DBCommissionStorage) GetPayout(ctx context.Context, id uuid.UUID) (internal.Payout, error) {
	return scanPayout(d.getPayout.QueryRowContext(ctx, id))
}

func (d *DBCommissionStorage) GetPayoutsByReferrer(ctx context.Context, ref internal.ReferrerRef) ([]internal.Payout, error) {
	rows, err := d.getPayouts.QueryContext(ctx, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payouts []internal.Payout
	for rows.Next() {
		payout, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, payout)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (d *DBCommissionStorage) SettlePayout(ctx context.Context, id uuid.UUID, outcome internal.PayoutStatus) (internal.Payout, bool, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return internal.Payout{}, false, fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	now := time.Now()
	row := tx.StmtContext(ctx, d.finalizePayout).QueryRowContext(ctx, id, outcome, now)
	var kind internal.ReferrerKind
	var referrerID int
	var amount internal.Money
	err = row.Scan(&kind, &referrerID, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		// Already terminal: report the current record, apply nothing.
		payout, err := d.GetPayout(ctx, id)
		if err != nil {
			return internal.Payout{}, false, err
		}
		return payout, false, nil
	} else if err != nil {
		return internal.Payout{}, false, fmt.Errorf("finalize payout error: %w", err)
	}
	stmt := d.releaseReserved
	if outcome == internal.PayoutPaid {
		stmt = d.addPaid
	}
	_, err = tx.StmtContext(ctx, stmt).ExecContext(ctx, kind, referrerID, amount)
	if err != nil {
		return internal.Payout{}, false, fmt.Errorf("settle account update error: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return internal.Payout{}, false, fmt.Errorf("commit error: %w", err)
	}
	payout, err := d.GetPayout(ctx, id)
	if err != nil {
		return internal.Payout{}, false, err
	}
	return payout, true, nil
}

func (d *DBCommissionStorage) Reverse(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) (ReversalResult, error) {
	var result ReversalResult
	tx, err := d.db.Begin()
	if err != nil {
		return result, fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	row := tx.StmtContext(ctx, d.markProcessed).QueryRowContext(ctx, orderID, "reversal")
	var marked string
	err = row.Scan(&marked)
	if errors.Is(err, sql.ErrNoRows) {
		return result, ErrAlreadyProcessed
	} else if err != nil {
		return result, fmt.Errorf("mark reversal processed error: %w", err)
	}
	// Row lock for the read-modify-write split across the three buckets.
	var account internal.CommissionAccount
	lockRow := tx.StmtContext(ctx, d.lockAccount).QueryRowContext(ctx, ref.Kind, ref.ID)
	err = lockRow.Scan(&account.Pending, &account.Available, &account.Paid, &account.TotalEarned, &account.Liability)
	if errors.Is(err, sql.ErrNoRows) {
		return result, ErrNotFound
	} else if err != nil {
		return result, fmt.Errorf("lock commission account error: %w", err)
	}
	result = splitReversal(account, amount)
	_, err = tx.StmtContext(ctx, d.applyReversal).ExecContext(ctx,
		ref.Kind, ref.ID, result.FromPending, result.FromAvailable, result.Shortfall)
	if err != nil {
		return result, fmt.Errorf("apply reversal error: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return result, fmt.Errorf("commit error: %w", err)
	}
	return result, nil
}

// splitReversal debits pending first, then available; the remainder was
// already paid out and becomes a liability entry instead of a negative
// balance.
func splitReversal(account internal.CommissionAccount, amount internal.Money) ReversalResult {
	var result ReversalResult
	result.FromPending = amount
	if result.FromPending > account.Pending {
		result.FromPending = account.Pending
	}
	remaining := amount - result.FromPending
	result.FromAvailable = remaining
	if result.FromAvailable > account.Available {
		result.FromAvailable = account.Available
	}
	result.Shortfall = remaining - result.FromAvailable
	return result
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (internal.Payout, error) {
	var payout internal.Payout
	var kind internal.ReferrerKind
	var referrerID int
	var processedAt sql.NullTime
	err := row.Scan(&payout.ID, &kind, &referrerID, &payout.Amount, &payout.Method,
		&payout.Target, &payout.Status, &payout.CreatedAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return payout, ErrNotFound
	} else if err != nil {
		return payout, fmt.Errorf("scan payout error: %w", err)
	}
	payout.Referrer = internal.ReferrerRef{Kind: kind, ID: referrerID}
	if processedAt.Valid {
		payout.ProcessedAt = &processedAt.Time
	}
	return payout, nil
}
