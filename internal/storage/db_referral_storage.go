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

type DBReferralStorage struct {
	db                *sql.DB
	insertReferral    *sql.Stmt
	getByReferredUser *sql.Stmt
	getByReferrer     *sql.Stmt
	convertReferral   *sql.Stmt
	expireReferrals   *sql.Stmt
}

var _ ReferralStorage = (*DBReferralStorage)(nil)

func NewDBReferralStorage(db *sql.DB) (*DBReferralStorage, error) {
	s := &DBReferralStorage{db: db}
	for text, target := range map[string]**sql.Stmt{
		"INSERT INTO referrals (id, referrer_kind, referrer_id, referred_user_id, code, status, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (referred_user_id) DO NOTHING RETURNING id": &s.insertReferral,
		"SELECT id, referrer_kind, referrer_id, referred_user_id, code, status, order_id, commission_amount, created_at, expires_at FROM referrals WHERE referred_user_id = $1":                                          &s.getByReferredUser,
		"SELECT id, referrer_kind, referrer_id, referred_user_id, code, status, order_id, commission_amount, created_at, expires_at FROM referrals WHERE referrer_kind = $1 AND referrer_id = $2 ORDER BY created_at DESC": &s.getByReferrer,
		"UPDATE referrals SET status = 'converted', order_id = $2, commission_amount = $3 WHERE id = $1 AND status = 'pending' AND expires_at >= $4 RETURNING id":                                                        &s.convertReferral,
		"UPDATE referrals SET status = 'expired' WHERE status = 'pending' AND expires_at < $1":                                                                                                                          &s.expireReferrals,
	} {
		stmt, err := db.Prepare(text)
		if err != nil {
			return nil, fmt.Errorf("prepare %q error: %w", text, err)
		}
		*target = stmt
	}
	return s, nil
}

func (d *DBReferralStorage) Close() {
	d.insertReferral.Close()
	d.getByReferredUser.Close()
	d.getByReferrer.Close()
	d.convertReferral.Close()
	d.expireReferrals.Close()
}

func (d *DBReferralStorage) AddReferral(ctx context.Context, referral internal.Referral) error {
	row := d.insertReferral.QueryRowContext(ctx,
		referral.ID, referral.Referrer.Kind, referral.Referrer.ID, referral.ReferredUserID,
		referral.Code, referral.Status, referral.CreatedAt, referral.ExpiresAt)
	var id uuid.UUID
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyExists
	} else if err != nil {
		return fmt.Errorf("insert referral error: %w", err)
	}
	return nil
}

func (d *DBReferralStorage) GetReferralByReferredUser(ctx context.Context, userID internal.UserID) (internal.Referral, error) {
	return scanReferral(d.getByReferredUser.QueryRowContext(ctx, userID))
}

func (d *DBReferralStorage) GetReferralsByReferrer(ctx context.Context, ref internal.ReferrerRef) ([]internal.Referral, error) {
	rows, err := d.getByReferrer.QueryContext(ctx, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var referrals []internal.Referral
	for rows.Next() {
		referral, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		referrals = append(referrals, referral)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return referrals, nil
}

func (d *DBReferralStorage) MarkConverted(ctx context.Context, id uuid.UUID, orderID string, amount internal.Money, now time.Time) (bool, error) {
	row := d.convertReferral.QueryRowContext(ctx, id, orderID, amount, now)
	var converted uuid.UUID
	err := row.Scan(&converted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("convert referral error: %w", err)
	}
	return true, nil
}

func (d *DBReferralStorage) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.expireReferrals.ExecContext(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire referrals error: %w", err)
	}
	return res.RowsAffected()
}

func scanReferral(row rowScanner) (internal.Referral, error) {
	var referral internal.Referral
	var kind internal.ReferrerKind
	var referrerID int
	var orderID sql.NullString
	var commission sql.NullInt64
	err := row.Scan(&referral.ID, &kind, &referrerID, &referral.ReferredUserID,
		&referral.Code, &referral.Status, &orderID, &commission,
		&referral.CreatedAt, &referral.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return referral, ErrNotFound
	} else if err != nil {
		return referral, fmt.Errorf("scan referral error: %w", err)
	}
	referral.Referrer = internal.ReferrerRef{Kind: kind, ID: referrerID}
	if orderID.Valid {
		referral.OrderID = &orderID.String
	}
	if commission.Valid {
		amount := internal.Money(commission.Int64)
		referral.Commission = &amount
	}
	return referral, nil
}
