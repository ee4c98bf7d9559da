package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgconn"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type DBUserStorage struct {
	db                  *sql.DB
	insertUser          *sql.Stmt
	insertAccount       *sql.Stmt
	getUserByLogin      *sql.Stmt
	insertInfluencer    *sql.Stmt
	setUserCode         *sql.Stmt
	setInfluencerCode   *sql.Stmt
	getUserByCode       *sql.Stmt
	getInfluencerByCode *sql.Stmt
	getUserByID         *sql.Stmt
	getInfluencerByID   *sql.Stmt
	updateTier          *sql.Stmt
	setUserKYC          *sql.Stmt
	setInfluencerKYC    *sql.Stmt
	setUserPayout       *sql.Stmt
	setInfluencerPayout *sql.Stmt
}

var _ UserStorage = (*DBUserStorage)(nil)

func NewDBUserStorage(db *sql.DB) (*DBUserStorage, error) {
	s := &DBUserStorage{db: db}
	for text, target := range map[string]**sql.Stmt{
		"INSERT INTO users (login, password) VALUES ($1, $2) ON CONFLICT DO NOTHING RETURNING id":                          &s.insertUser,
		"INSERT INTO commission_accounts (referrer_kind, referrer_id) VALUES ($1, $2)":                                     &s.insertAccount,
		"SELECT id, password FROM users WHERE login = $1":                                                                  &s.getUserByLogin,
		"INSERT INTO influencers (name, handle, tier) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING RETURNING id":             &s.insertInfluencer,
		"UPDATE users SET referral_code = $2 WHERE id = $1":                                                                &s.setUserCode,
		"UPDATE influencers SET referral_code = $2 WHERE id = $1":                                                          &s.setInfluencerCode,
		"SELECT id, referral_code, kyc_verified, payout_method, payout_target FROM users WHERE referral_code = $1":         &s.getUserByCode,
		"SELECT id, referral_code, tier, kyc_verified, payout_method, payout_target FROM influencers WHERE referral_code = $1": &s.getInfluencerByCode,
		"SELECT referral_code, kyc_verified, payout_method, payout_target FROM users WHERE id = $1":                        &s.getUserByID,
		"SELECT referral_code, tier, kyc_verified, payout_method, payout_target FROM influencers WHERE id = $1":            &s.getInfluencerByID,
		"UPDATE influencers SET tier = $2 WHERE id = $1":                                                                   &s.updateTier,
		"UPDATE users SET kyc_verified = $2 WHERE id = $1":                                                                 &s.setUserKYC,
		"UPDATE influencers SET kyc_verified = $2 WHERE id = $1":                                                           &s.setInfluencerKYC,
		"UPDATE users SET payout_method = $2, payout_target = $3 WHERE id = $1":                                            &s.setUserPayout,
		"UPDATE influencers SET payout_method = $2, payout_target = $3 WHERE id = $1":                                      &s.setInfluencerPayout,
	} {
		stmt, err := db.Prepare(text)
		if err != nil {
			return nil, fmt.Errorf("prepare %q error: %w", text, err)
		}
		*target = stmt
	}
	return s, nil
}

func (d *DBUserStorage) Close() {
	for _, stmt := range []*sql.Stmt{
		d.insertUser, d.insertAccount, d.getUserByLogin, d.insertInfluencer,
		d.setUserCode, d.setInfluencerCode, d.getUserByCode, d.getInfluencerByCode,
		d.getUserByID, d.getInfluencerByID, d.updateTier, d.setUserKYC,
		d.setInfluencerKYC, d.setUserPayout, d.setInfluencerPayout,
	} {
		stmt.Close()
	}
}

func (d *DBUserStorage) AddUser(ctx context.Context, login string, hashedPass string) (internal.UserID, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	row := tx.StmtContext(ctx, d.insertUser).QueryRowContext(ctx, login, hashedPass)
	var id internal.UserID
	err = row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAlreadyExists
	} else if err != nil {
		return 0, fmt.Errorf("insert user error: %w", err)
	}
	_, err = tx.StmtContext(ctx, d.insertAccount).ExecContext(ctx, internal.KindUser, id)
	if err != nil {
		return 0, fmt.Errorf("insert commission account error: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("commit error: %w", err)
	}
	return id, nil
}

func (d *DBUserStorage) GetUser(ctx context.Context, login string) (internal.UserID, string, error) {
	row := d.getUserByLogin.QueryRowContext(ctx, login)
	var id internal.UserID
	var pass string
	err := row.Scan(&id, &pass)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrNotFound
	} else if err != nil {
		return 0, "", fmt.Errorf("get user error: %w", err)
	}
	return id, pass, nil
}

func (d *DBUserStorage) AddInfluencer(ctx context.Context, name string, handle string, tier internal.Tier) (internal.InfluencerID, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	row := tx.StmtContext(ctx, d.insertInfluencer).QueryRowContext(ctx, name, handle, tier)
	var id internal.InfluencerID
	err = row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAlreadyExists
	} else if err != nil {
		return 0, fmt.Errorf("insert influencer error: %w", err)
	}
	_, err = tx.StmtContext(ctx, d.insertAccount).ExecContext(ctx, internal.KindInfluencer, id)
	if err != nil {
		return 0, fmt.Errorf("insert commission account error: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("commit error: %w", err)
	}
	return id, nil
}

func (d *DBUserStorage) SetReferralCode(ctx context.Context, ref internal.ReferrerRef, code string) error {
	// The code must be unique across both referrer kinds, which two table
	// constraints alone cannot enforce. Checked under the cross-kind lookup
	// first; the per-table unique index backstops same-kind races.
	if _, err := d.lookupByCode(ctx, code); err == nil {
		return ErrCodeTaken
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	stmt := d.setUserCode
	if ref.Kind == internal.KindInfluencer {
		stmt = d.setInfluencerCode
	}
	_, err := stmt.ExecContext(ctx, ref.ID, code)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeTaken
		}
		return fmt.Errorf("set referral code error: %w", err)
	}
	return nil
}

func (d *DBUserStorage) GetReferrerByCode(ctx context.Context, kind internal.ReferrerKind, code string) (internal.Referrer, error) {
	var ref internal.Referrer
	if kind == internal.KindUser {
		row := d.getUserByCode.QueryRowContext(ctx, code)
		var id int
		var method, target sql.NullString
		err := row.Scan(&id, &ref.Code, &ref.KYCVerified, &method, &target)
		if errors.Is(err, sql.ErrNoRows) {
			return ref, ErrNotFound
		} else if err != nil {
			return ref, fmt.Errorf("get user by code error: %w", err)
		}
		ref.Ref = internal.ReferrerRef{Kind: internal.KindUser, ID: id}
		ref.Tier = internal.TierBase
		ref.PayoutMethod = internal.PayoutMethod(method.String)
		ref.PayoutTarget = target.String
		return ref, nil
	}
	row := d.getInfluencerByCode.QueryRowContext(ctx, code)
	var id int
	var method, target sql.NullString
	err := row.Scan(&id, &ref.Code, &ref.Tier, &ref.KYCVerified, &method, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return ref, ErrNotFound
	} else if err != nil {
		return ref, fmt.Errorf("get influencer by code error: %w", err)
	}
	ref.Ref = internal.ReferrerRef{Kind: internal.KindInfluencer, ID: id}
	ref.PayoutMethod = internal.PayoutMethod(method.String)
	ref.PayoutTarget = target.String
	return ref, nil
}

func (d *DBUserStorage) GetReferrer(ctx context.Context, r internal.ReferrerRef) (internal.Referrer, error) {
	ref := internal.Referrer{Ref: r}
	var code, method, target sql.NullString
	if r.Kind == internal.KindUser {
		row := d.getUserByID.QueryRowContext(ctx, r.ID)
		err := row.Scan(&code, &ref.KYCVerified, &method, &target)
		if errors.Is(err, sql.ErrNoRows) {
			return ref, ErrNotFound
		} else if err != nil {
			return ref, fmt.Errorf("get user error: %w", err)
		}
		ref.Tier = internal.TierBase
	} else {
		row := d.getInfluencerByID.QueryRowContext(ctx, r.ID)
		err := row.Scan(&code, &ref.Tier, &ref.KYCVerified, &method, &target)
		if errors.Is(err, sql.ErrNoRows) {
			return ref, ErrNotFound
		} else if err != nil {
			return ref, fmt.Errorf("get influencer error: %w", err)
		}
	}
	ref.Code = code.String
	ref.PayoutMethod = internal.PayoutMethod(method.String)
	ref.PayoutTarget = target.String
	return ref, nil
}

func (d *DBUserStorage) UpdateInfluencerTier(ctx context.Context, id internal.InfluencerID, tier internal.Tier) error {
	res, err := d.updateTier.ExecContext(ctx, id, tier)
	if err != nil {
		return fmt.Errorf("update tier error: %w", err)
	}
	return checkAffected(res)
}

func (d *DBUserStorage) SetKYCVerified(ctx context.Context, ref internal.ReferrerRef, verified bool) error {
	stmt := d.setUserKYC
	if ref.Kind == internal.KindInfluencer {
		stmt = d.setInfluencerKYC
	}
	res, err := stmt.ExecContext(ctx, ref.ID, verified)
	if err != nil {
		return fmt.Errorf("set kyc error: %w", err)
	}
	return checkAffected(res)
}

func (d *DBUserStorage) SetPayoutMethod(ctx context.Context, ref internal.ReferrerRef, method internal.PayoutMethod, target string) error {
	stmt := d.setUserPayout
	if ref.Kind == internal.KindInfluencer {
		stmt = d.setInfluencerPayout
	}
	res, err := stmt.ExecContext(ctx, ref.ID, method, target)
	if err != nil {
		return fmt.Errorf("set payout method error: %w", err)
	}
	return checkAffected(res)
}

func (d *DBUserStorage) lookupByCode(ctx context.Context, code string) (internal.Referrer, error) {
	ref, err := d.GetReferrerByCode(ctx, internal.KindUser, code)
	if err == nil {
		return ref, nil
	} else if !errors.Is(err, ErrNotFound) {
		return ref, err
	}
	return d.GetReferrerByCode(ctx, internal.KindInfluencer, code)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
