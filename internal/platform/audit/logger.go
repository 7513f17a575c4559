package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionKeyGenerated   = "key.generated"
	ActionKeyDeleted     = "key.deleted"
	ActionKeyReset       = "key.reset"
	ActionOwnerReset     = "user.key_reset"
	ActionUserBlacklist  = "user.blacklisted"
	ActionUserWhitelist  = "user.unblacklisted"
	ActionScriptUploaded = "script.uploaded"
	ResourceKey          = "license_key"
	ResourceUser         = "user"
	ResourceScript       = "script"
	defaultRecentEntries = 100
)

type Entry struct {
	ID           string                 `json:"id"`
	Actor        string                 `json:"actor"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

// Logger writes admin actions to the audit_logs table when a database is
// available. Every entry is also emitted on the process log.
type Logger struct {
	db    *sql.DB
	nowFn func() time.Time
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db, nowFn: time.Now}
}

// Log never fails the caller; persistence errors are logged and dropped.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = "audit_" + uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = l.nowFn().Unix()
	}

	log.Info().
		Str("audit_id", e.ID).
		Str("actor", e.Actor).
		Str("action", e.Action).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Str("ip", e.IPAddress).
		Msg("audit")

	if l.db == nil {
		return
	}

	var meta sql.NullString
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err == nil {
			meta = sql.NullString{String: string(b), Valid: true}
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Actor, e.Action, e.ResourceType, e.ResourceID, meta, e.IPAddress, e.UserAgent, e.CreatedAt)
	if err != nil {
		log.Error().Err(err).Str("audit_id", e.ID).Msg("failed to persist audit entry")
	}
}

// Recent returns up to limit entries, newest first. Without a database it
// returns an empty list.
func (l *Logger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	entries := []Entry{}
	if l.db == nil {
		return entries, nil
	}
	if limit <= 0 || limit > defaultRecentEntries {
		limit = defaultRecentEntries
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, actor, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var meta, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.ResourceType, &e.ResourceID, &meta, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		if meta.Valid {
			json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries created before cutoff and returns how many went.
func (l *Logger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if l.db == nil {
		return 0, nil
	}
	res, err := l.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
