package licensing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const DefaultResetCooldown = 24 * time.Hour

const defaultBlacklistReason = "No reason provided"

// Keystore enforces the key lifecycle: issue, bind on first verification,
// reset, delete, and the blacklist and cooldown rules around them.
type Keystore struct {
	repo        Repository
	prefix      string
	cooldown    time.Duration
	nowFn       func() time.Time
	newKey      func(prefix string) (string, error)
	newScriptID func() (string, error)
	locks       *keyedMutex
}

type Option func(*Keystore)

func WithKeyPrefix(prefix string) Option {
	return func(s *Keystore) { s.prefix = prefix }
}

func WithClock(now func() time.Time) Option {
	return func(s *Keystore) { s.nowFn = now }
}

func WithResetCooldown(d time.Duration) Option {
	return func(s *Keystore) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithKeyGenerator swaps the random key source.
func WithKeyGenerator(gen func(prefix string) (string, error)) Option {
	return func(s *Keystore) { s.newKey = gen }
}

// WithScriptIDGenerator swaps the random script id source.
func WithScriptIDGenerator(gen func() (string, error)) Option {
	return func(s *Keystore) { s.newScriptID = gen }
}

func NewKeystore(repo Repository, opts ...Option) *Keystore {
	s := &Keystore{
		repo:        repo,
		prefix:      DefaultKeyPrefix,
		cooldown:    DefaultResetCooldown,
		nowFn:       time.Now,
		newKey:      GenerateKey,
		newScriptID: GenerateScriptID,
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Keystore) Prefix() string { return s.prefix }

// ResetCooldown is the wait enforced between self-service resets.
func (s *Keystore) ResetCooldown() time.Duration { return s.cooldown }

func (s *Keystore) now() time.Time { return s.nowFn().UTC() }

// fault passes rejections through and tags everything else as a storage
// failure.
func (s *Keystore) fault(err error) error {
	if err == nil || IsRejection(err) || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func (s *Keystore) Generate(ctx context.Context, p GenerateParams) (KeyRecord, error) {
	if !p.Type.Valid() {
		return KeyRecord{}, ErrInvalidKeyType
	}

	var rec KeyRecord
	err := s.repo.Write(ctx, func(st State) error {
		var err error
		rec, err = s.issue(st, p)
		return err
	})
	if err != nil {
		return KeyRecord{}, s.fault(err)
	}
	return rec, nil
}

func (s *Keystore) issue(st State, p GenerateParams) (KeyRecord, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		key, err := s.newKey(s.prefix)
		if err != nil {
			return KeyRecord{}, fmt.Errorf("generate key: %w", err)
		}

		_, exists, err := st.Key(key)
		if err != nil {
			return KeyRecord{}, err
		}
		if exists {
			continue
		}

		rec := KeyRecord{
			Key:       key,
			Type:      p.Type,
			Owner:     p.Owner,
			CreatedBy: p.CreatedBy,
			CreatedAt: s.now().Unix(),
			ExpiresAt: p.ExpiresAt,
		}
		if err := st.InsertKey(rec); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				continue
			}
			return KeyRecord{}, err
		}
		return rec, nil
	}
	return KeyRecord{}, ErrDuplicateKey
}

// GetOrCreateForUser returns the key owned by userID, issuing a permanent
// key on first access.
func (s *Keystore) GetOrCreateForUser(ctx context.Context, userID string) (KeyRecord, error) {
	unlock := s.locks.Lock("user:" + userID)
	defer unlock()

	var rec KeyRecord
	err := s.repo.Write(ctx, func(st State) error {
		existing, ok, err := st.KeyByOwner(userID)
		if err != nil {
			return err
		}
		if ok {
			rec = existing
			return nil
		}
		rec, err = s.issue(st, GenerateParams{Type: KeyTypePermanent, Owner: userID})
		return err
	})
	if err != nil {
		return KeyRecord{}, s.fault(err)
	}
	return rec, nil
}

// Verify checks key against hwid and binds it on first use. Checks run in
// order: existence, owner blacklist, expiry, hwid.
func (s *Keystore) Verify(ctx context.Context, key, hwid string) (VerifyResult, error) {
	key = normalizeKey(key)
	if key == "" || strings.TrimSpace(hwid) == "" {
		return VerifyResult{}, ErrMissingCredentials
	}

	unlock := s.locks.Lock("key:" + key)
	defer unlock()

	now := s.now()
	var result VerifyResult
	err := s.repo.Write(ctx, func(st State) error {
		rec, ok, err := st.Key(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidKey
		}

		if rec.Owner != "" {
			_, listed, err := st.BlacklistEntry(rec.Owner)
			if err != nil {
				return err
			}
			if listed {
				return ErrBlacklisted
			}
		}

		if rec.Expired(now) {
			return ErrExpired
		}

		if rec.Bound() && rec.HWID != hwid {
			return ErrHwidMismatch
		}

		result = VerifyResult{Key: rec.Key, Type: rec.Type, ExpiresAt: rec.ExpiresAt}
		if !rec.Bound() {
			rec.bind(hwid)
			if err := st.UpdateKey(rec); err != nil {
				return err
			}
			result.NewlyBound = true
		}
		return nil
	})
	if err != nil {
		return VerifyResult{}, s.fault(err)
	}
	return result, nil
}

// Reset clears the binding of key without touching the cooldown ledger.
func (s *Keystore) Reset(ctx context.Context, key string) (KeyRecord, error) {
	key = normalizeKey(key)
	unlock := s.locks.Lock("key:" + key)
	defer unlock()

	var rec KeyRecord
	err := s.repo.Write(ctx, func(st State) error {
		var ok bool
		var err error
		rec, ok, err = st.Key(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		rec.unbind()
		return st.UpdateKey(rec)
	})
	if err != nil {
		return KeyRecord{}, s.fault(err)
	}
	return rec, nil
}

// ResetForOwner is the staff variant of ResetForUser: same lookup, no
// cooldown.
func (s *Keystore) ResetForOwner(ctx context.Context, userID string) (KeyRecord, error) {
	return s.resetOwned(ctx, userID, false)
}

// ResetForUser is the self-service reset. It fails with *CooldownError while
// the previous reset is inside the cooldown window and records the new reset
// time on success.
func (s *Keystore) ResetForUser(ctx context.Context, userID string) (KeyRecord, error) {
	return s.resetOwned(ctx, userID, true)
}

func (s *Keystore) resetOwned(ctx context.Context, userID string, gated bool) (KeyRecord, error) {
	unlockUser := s.locks.Lock("user:" + userID)
	defer unlockUser()

	var owned KeyRecord
	err := s.repo.Read(ctx, func(st State) error {
		var ok bool
		var err error
		owned, ok, err = st.KeyByOwner(userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoKeyFound
		}
		return nil
	})
	if err != nil {
		return KeyRecord{}, s.fault(err)
	}

	unlockKey := s.locks.Lock("key:" + owned.Key)
	defer unlockKey()

	now := s.now()
	var rec KeyRecord
	err = s.repo.Write(ctx, func(st State) error {
		if gated {
			if err := s.checkCooldown(st, userID, now); err != nil {
				return err
			}
		}

		var ok bool
		var err error
		rec, ok, err = st.Key(owned.Key)
		if err != nil {
			return err
		}
		// The key may have been deleted or reassigned since the lookup.
		if !ok || rec.Owner != userID {
			return ErrNoKeyFound
		}

		rec.unbind()
		if err := st.UpdateKey(rec); err != nil {
			return err
		}
		if gated {
			return st.SetLastReset(userID, now.Unix())
		}
		return nil
	})
	if err != nil {
		return KeyRecord{}, s.fault(err)
	}
	return rec, nil
}

func (s *Keystore) checkCooldown(st State, userID string, now time.Time) error {
	last, ok, err := st.LastReset(userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if remaining := s.remaining(last, now); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}
	return nil
}

func (s *Keystore) remaining(lastReset int64, now time.Time) time.Duration {
	elapsed := now.Sub(time.Unix(lastReset, 0))
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= s.cooldown {
		return 0
	}
	return s.cooldown - elapsed
}

// CooldownRemaining reports how long userID must wait before the next
// self-service reset. Zero means a reset is allowed now.
func (s *Keystore) CooldownRemaining(ctx context.Context, userID string) (time.Duration, error) {
	now := s.now()
	var remaining time.Duration
	err := s.repo.Read(ctx, func(st State) error {
		last, ok, err := st.LastReset(userID)
		if err != nil || !ok {
			return err
		}
		remaining = s.remaining(last, now)
		return nil
	})
	if err != nil {
		return 0, s.fault(err)
	}
	return remaining, nil
}

func (s *Keystore) Delete(ctx context.Context, key string) error {
	key = normalizeKey(key)
	unlock := s.locks.Lock("key:" + key)
	defer unlock()

	err := s.repo.Write(ctx, func(st State) error {
		deleted, err := st.DeleteKey(key)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFound
		}
		return nil
	})
	return s.fault(err)
}

func (s *Keystore) Status(ctx context.Context, key string) (KeyRecord, error) {
	key = normalizeKey(key)
	var rec KeyRecord
	err := s.repo.Read(ctx, func(st State) error {
		var ok bool
		var err error
		rec, ok, err = st.Key(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return KeyRecord{}, s.fault(err)
	}
	return rec, nil
}

// ListKeys returns every record, newest first.
func (s *Keystore) ListKeys(ctx context.Context) ([]KeyRecord, error) {
	var keys []KeyRecord
	err := s.repo.Read(ctx, func(st State) error {
		var err error
		keys, err = st.Keys()
		return err
	})
	if err != nil {
		return nil, s.fault(err)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CreatedAt != keys[j].CreatedAt {
			return keys[i].CreatedAt > keys[j].CreatedAt
		}
		return keys[i].Key < keys[j].Key
	})
	return keys, nil
}

func (s *Keystore) Stats(ctx context.Context) (Stats, error) {
	now := s.now()
	var stats Stats
	err := s.repo.Read(ctx, func(st State) error {
		keys, err := st.Keys()
		if err != nil {
			return err
		}
		listed, err := st.Blacklist()
		if err != nil {
			return err
		}
		scripts, err := st.Scripts()
		if err != nil {
			return err
		}

		stats.Total = len(keys)
		stats.Blacklisted = len(listed)
		for _, k := range keys {
			// A key expiring this very second still verifies but no longer
			// counts as active.
			if k.ExpiresAt == nil || now.Unix() < *k.ExpiresAt {
				stats.Active++
			} else {
				stats.Expired++
			}
			if k.Used {
				stats.Used++
			}
		}

		stats.Scripts = len(scripts)
		for _, sc := range scripts {
			stats.Downloads += sc.Downloads
			stats.Executions += sc.Executions
		}
		return nil
	})
	if err != nil {
		return Stats{}, s.fault(err)
	}
	return stats, nil
}

// BlacklistUser adds or replaces the entry for userID.
func (s *Keystore) BlacklistUser(ctx context.Context, userID, reason, by string) (BlacklistEntry, error) {
	if strings.TrimSpace(reason) == "" {
		reason = defaultBlacklistReason
	}
	entry := BlacklistEntry{
		UserID:        userID,
		Reason:        reason,
		BlacklistedAt: s.now().Unix(),
		BlacklistedBy: by,
	}

	unlock := s.locks.Lock("user:" + userID)
	defer unlock()

	err := s.repo.Write(ctx, func(st State) error {
		return st.PutBlacklistEntry(entry)
	})
	if err != nil {
		return BlacklistEntry{}, s.fault(err)
	}
	return entry, nil
}

func (s *Keystore) UnblacklistUser(ctx context.Context, userID string) error {
	unlock := s.locks.Lock("user:" + userID)
	defer unlock()

	err := s.repo.Write(ctx, func(st State) error {
		deleted, err := st.DeleteBlacklistEntry(userID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotBlacklisted
		}
		return nil
	})
	return s.fault(err)
}

func (s *Keystore) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	var listed bool
	err := s.repo.Read(ctx, func(st State) error {
		var err error
		_, listed, err = st.BlacklistEntry(userID)
		return err
	})
	if err != nil {
		return false, s.fault(err)
	}
	return listed, nil
}

// Blacklist returns all entries, most recent first.
func (s *Keystore) Blacklist(ctx context.Context) ([]BlacklistEntry, error) {
	var entries []BlacklistEntry
	err := s.repo.Read(ctx, func(st State) error {
		var err error
		entries, err = st.Blacklist()
		return err
	})
	if err != nil {
		return nil, s.fault(err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BlacklistedAt != entries[j].BlacklistedAt {
			return entries[i].BlacklistedAt > entries[j].BlacklistedAt
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries, nil
}

// normalizeKey strips the whitespace users paste around keys.
func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
