package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"keyhub/internal/engine/licensing"
)

// SQLiteRepository runs every Read and Write in its own transaction.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Read(ctx context.Context, fn func(licensing.State) error) error {
	return r.withTx(ctx, fn)
}

func (r *SQLiteRepository) Write(ctx context.Context, fn func(licensing.State) error) error {
	return r.withTx(ctx, fn)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(licensing.State) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&sqlState{ctx: ctx, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type sqlState struct {
	ctx context.Context
	tx  *sql.Tx
}

const keyColumns = `license_key, type, owner, created_by, created_at, expires_at, hwid, used`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKey(row rowScanner) (licensing.KeyRecord, error) {
	var rec licensing.KeyRecord
	var typ string
	var owner, createdBy, hwid sql.NullString
	var expiresAt sql.NullInt64

	if err := row.Scan(&rec.Key, &typ, &owner, &createdBy, &rec.CreatedAt, &expiresAt, &hwid, &rec.Used); err != nil {
		return licensing.KeyRecord{}, err
	}

	rec.Type = licensing.KeyType(typ)
	rec.Owner = owner.String
	rec.CreatedBy = createdBy.String
	rec.HWID = hwid.String
	if expiresAt.Valid {
		rec.ExpiresAt = new(int64)
		*rec.ExpiresAt = expiresAt.Int64
	}
	rec.Normalize()
	return rec, nil
}

func (s *sqlState) Key(key string) (licensing.KeyRecord, bool, error) {
	row := s.tx.QueryRowContext(s.ctx, `SELECT `+keyColumns+` FROM license_keys WHERE license_key = ?`, key)
	rec, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return licensing.KeyRecord{}, false, nil
	}
	if err != nil {
		return licensing.KeyRecord{}, false, err
	}
	return rec, true, nil
}

func (s *sqlState) KeyByOwner(userID string) (licensing.KeyRecord, bool, error) {
	row := s.tx.QueryRowContext(s.ctx, `
		SELECT `+keyColumns+` FROM license_keys
		WHERE owner = ?
		ORDER BY created_at, license_key
		LIMIT 1
	`, userID)
	rec, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return licensing.KeyRecord{}, false, nil
	}
	if err != nil {
		return licensing.KeyRecord{}, false, err
	}
	return rec, true, nil
}

func (s *sqlState) Keys() ([]licensing.KeyRecord, error) {
	rows, err := s.tx.QueryContext(s.ctx, `SELECT `+keyColumns+` FROM license_keys`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []licensing.KeyRecord
	for rows.Next() {
		rec, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, rec)
	}
	return keys, rows.Err()
}

func (s *sqlState) InsertKey(rec licensing.KeyRecord) error {
	rec.Normalize()
	_, err := s.tx.ExecContext(s.ctx, `
		INSERT INTO license_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Key, string(rec.Type), nullString(rec.Owner), nullString(rec.CreatedBy), rec.CreatedAt, nullInt64(rec.ExpiresAt), nullString(rec.HWID), rec.Used)
	if isConstraintConflict(err) {
		return licensing.ErrDuplicateKey
	}
	return err
}

func (s *sqlState) UpdateKey(rec licensing.KeyRecord) error {
	rec.Normalize()
	res, err := s.tx.ExecContext(s.ctx, `
		UPDATE license_keys
		SET type = ?, owner = ?, created_by = ?, created_at = ?, expires_at = ?, hwid = ?, used = ?
		WHERE license_key = ?
	`, string(rec.Type), nullString(rec.Owner), nullString(rec.CreatedBy), rec.CreatedAt, nullInt64(rec.ExpiresAt), nullString(rec.HWID), rec.Used, rec.Key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return licensing.ErrNotFound
	}
	return nil
}

func (s *sqlState) DeleteKey(key string) (bool, error) {
	res, err := s.tx.ExecContext(s.ctx, `DELETE FROM license_keys WHERE license_key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqlState) LastReset(userID string) (int64, bool, error) {
	var at int64
	err := s.tx.QueryRowContext(s.ctx, `SELECT last_reset_at FROM hwid_cooldowns WHERE user_id = ?`, userID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return at, true, nil
}

func (s *sqlState) SetLastReset(userID string, at int64) error {
	_, err := s.tx.ExecContext(s.ctx, `
		INSERT INTO hwid_cooldowns (user_id, last_reset_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_reset_at = excluded.last_reset_at
	`, userID, at)
	return err
}

func (s *sqlState) BlacklistEntry(userID string) (licensing.BlacklistEntry, bool, error) {
	e := licensing.BlacklistEntry{UserID: userID}
	err := s.tx.QueryRowContext(s.ctx, `
		SELECT reason, blacklisted_at, blacklisted_by FROM blacklist WHERE user_id = ?
	`, userID).Scan(&e.Reason, &e.BlacklistedAt, &e.BlacklistedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return licensing.BlacklistEntry{}, false, nil
	}
	if err != nil {
		return licensing.BlacklistEntry{}, false, err
	}
	return e, true, nil
}

func (s *sqlState) Blacklist() ([]licensing.BlacklistEntry, error) {
	rows, err := s.tx.QueryContext(s.ctx, `SELECT user_id, reason, blacklisted_at, blacklisted_by FROM blacklist`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []licensing.BlacklistEntry
	for rows.Next() {
		var e licensing.BlacklistEntry
		if err := rows.Scan(&e.UserID, &e.Reason, &e.BlacklistedAt, &e.BlacklistedBy); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqlState) PutBlacklistEntry(e licensing.BlacklistEntry) error {
	_, err := s.tx.ExecContext(s.ctx, `
		INSERT INTO blacklist (user_id, reason, blacklisted_at, blacklisted_by) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			reason = excluded.reason,
			blacklisted_at = excluded.blacklisted_at,
			blacklisted_by = excluded.blacklisted_by
	`, e.UserID, e.Reason, e.BlacklistedAt, e.BlacklistedBy)
	return err
}

func (s *sqlState) DeleteBlacklistEntry(userID string) (bool, error) {
	res, err := s.tx.ExecContext(s.ctx, `DELETE FROM blacklist WHERE user_id = ?`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const scriptColumns = `id, name, description, owner, created_at, downloads, executions`

func scanScript(row rowScanner) (licensing.Script, error) {
	var sc licensing.Script
	err := row.Scan(&sc.ID, &sc.Name, &sc.Description, &sc.Owner, &sc.CreatedAt, &sc.Downloads, &sc.Executions)
	return sc, err
}

func (s *sqlState) Script(id string) (licensing.Script, bool, error) {
	row := s.tx.QueryRowContext(s.ctx, `SELECT `+scriptColumns+` FROM scripts WHERE id = ?`, id)
	sc, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return licensing.Script{}, false, nil
	}
	if err != nil {
		return licensing.Script{}, false, err
	}
	return sc, true, nil
}

func (s *sqlState) Scripts() ([]licensing.Script, error) {
	rows, err := s.tx.QueryContext(s.ctx, `SELECT `+scriptColumns+` FROM scripts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scripts []licensing.Script
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sc)
	}
	return scripts, rows.Err()
}

func (s *sqlState) InsertScript(sc licensing.Script) error {
	_, err := s.tx.ExecContext(s.ctx, `
		INSERT INTO scripts (`+scriptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sc.ID, sc.Name, sc.Description, sc.Owner, sc.CreatedAt, sc.Downloads, sc.Executions)
	if isConstraintConflict(err) {
		return licensing.ErrDuplicateKey
	}
	return err
}

func (s *sqlState) UpdateScript(sc licensing.Script) error {
	res, err := s.tx.ExecContext(s.ctx, `
		UPDATE scripts
		SET name = ?, description = ?, owner = ?, created_at = ?, downloads = ?, executions = ?
		WHERE id = ?
	`, sc.Name, sc.Description, sc.Owner, sc.CreatedAt, sc.Downloads, sc.Executions, sc.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return licensing.ErrScriptNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func isConstraintConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
