package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"keyhub/internal/engine/licensing"
)

const (
	KeysFile      = "keys.json"
	CooldownsFile = "hwid_cooldowns.json"
	BlacklistFile = "blacklist.json"
	ScriptsFile   = "scripts.json"

	lockFile      = ".lock"
	lockRetryWait = 10 * time.Millisecond
)

// JSONFileRepository stores keys, reset cooldowns, the blacklist and the
// script catalogue as JSON documents in one directory, in the layout the bot
// has always written. Every call reloads the files; a Write saves only the
// files it changed, each through a temp file and rename.
//
// Calls hold an advisory lock on <dir>/.lock, shared for Read and exclusive
// for Write, so several processes can serve the same directory.
type JSONFileRepository struct {
	dir      string
	lockPath string
	mu       sync.RWMutex
}

func NewJSONFileRepository(dir string) (*JSONFileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &JSONFileRepository{dir: dir, lockPath: filepath.Join(dir, lockFile)}, nil
}

// lock takes the directory lock. Each call opens its own handle so that
// concurrent readers in one process release independently.
func (r *JSONFileRepository) lock(ctx context.Context, exclusive bool) (func(), error) {
	fl := flock.New(r.lockPath)
	var ok bool
	var err error
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetryWait)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetryWait)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", r.lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: not acquired", r.lockPath)
	}
	return func() { fl.Unlock() }, nil
}

func (r *JSONFileRepository) Read(ctx context.Context, fn func(licensing.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	unlock, err := r.lock(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	snap, err := r.load()
	if err != nil {
		return err
	}
	return fn(snap)
}

func (r *JSONFileRepository) Write(ctx context.Context, fn func(licensing.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	unlock, err := r.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	snap, err := r.load()
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return r.save(snap)
}

func (r *JSONFileRepository) Ping(ctx context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", r.dir)
	}
	return nil
}

func (r *JSONFileRepository) Close() error { return nil }

// On-disk shapes. Timestamps may be integers or floats; expires_at and hwid
// may be null or missing.

type fileKey struct {
	Type      string   `json:"type"`
	Owner     *string  `json:"owner"`
	CreatedBy string   `json:"created_by,omitempty"`
	CreatedAt float64  `json:"created_at"`
	ExpiresAt *float64 `json:"expires_at"`
	HWID      *string  `json:"hwid"`
	Used      bool     `json:"used"`
}

type fileBlacklistEntry struct {
	Reason        string  `json:"reason"`
	BlacklistedAt float64 `json:"blacklisted_at"`
	BlacklistedBy string  `json:"blacklisted_by"`
}

type fileScript struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Owner       string  `json:"owner"`
	CreatedAt   float64 `json:"created_at"`
	Downloads   int     `json:"downloads"`
	Executions  int     `json:"executions"`
}

// Legacy readers compare the type against these short names.
const (
	fileTypePermanent = "perm"
	fileTypeTemporary = "temp"
)

func (r *JSONFileRepository) load() (*snapshot, error) {
	snap := newSnapshot()

	var keys map[string]fileKey
	if err := r.readFile(KeysFile, &keys); err != nil {
		return nil, err
	}
	for key, fk := range keys {
		rec, err := decodeKey(key, fk)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeysFile, err)
		}
		snap.keys[key] = rec
	}

	var cooldowns map[string]float64
	if err := r.readFile(CooldownsFile, &cooldowns); err != nil {
		return nil, err
	}
	for user, at := range cooldowns {
		snap.cooldowns[user] = int64(math.Floor(at))
	}

	var blacklist map[string]fileBlacklistEntry
	if err := r.readFile(BlacklistFile, &blacklist); err != nil {
		return nil, err
	}
	for user, e := range blacklist {
		snap.blacklist[user] = licensing.BlacklistEntry{
			UserID:        user,
			Reason:        e.Reason,
			BlacklistedAt: int64(math.Floor(e.BlacklistedAt)),
			BlacklistedBy: e.BlacklistedBy,
		}
	}

	var scripts map[string]fileScript
	if err := r.readFile(ScriptsFile, &scripts); err != nil {
		return nil, err
	}
	for id, fs := range scripts {
		snap.scripts[id] = licensing.Script{
			ID:          id,
			Name:        fs.Name,
			Description: fs.Description,
			Owner:       fs.Owner,
			CreatedAt:   int64(math.Floor(fs.CreatedAt)),
			Downloads:   fs.Downloads,
			Executions:  fs.Executions,
		}
	}

	return snap, nil
}

func decodeKey(key string, fk fileKey) (licensing.KeyRecord, error) {
	typ, err := licensing.ParseKeyType(fk.Type)
	if err != nil {
		return licensing.KeyRecord{}, fmt.Errorf("key %s: %w", key, err)
	}

	rec := licensing.KeyRecord{
		Key:       key,
		Type:      typ,
		CreatedBy: fk.CreatedBy,
		CreatedAt: int64(math.Floor(fk.CreatedAt)),
	}
	if fk.Owner != nil {
		rec.Owner = *fk.Owner
	}
	if fk.HWID != nil {
		rec.HWID = *fk.HWID
	}
	if fk.ExpiresAt != nil {
		exp := int64(math.Floor(*fk.ExpiresAt))
		rec.ExpiresAt = &exp
	}
	rec.Normalize()
	return rec, nil
}

func encodeKey(rec licensing.KeyRecord) fileKey {
	typ := fileTypePermanent
	if rec.Type == licensing.KeyTypeTemporary {
		typ = fileTypeTemporary
	}
	fk := fileKey{
		Type:      typ,
		CreatedBy: rec.CreatedBy,
		CreatedAt: float64(rec.CreatedAt),
		Used:      rec.Used,
	}
	if rec.Owner != "" {
		owner := rec.Owner
		fk.Owner = &owner
	}
	if rec.HWID != "" {
		hwid := rec.HWID
		fk.HWID = &hwid
	}
	if rec.ExpiresAt != nil {
		exp := float64(*rec.ExpiresAt)
		fk.ExpiresAt = &exp
	}
	return fk
}

func (r *JSONFileRepository) save(snap *snapshot) error {
	if snap.dirtyKeys {
		out := make(map[string]fileKey, len(snap.keys))
		for key, rec := range snap.keys {
			out[key] = encodeKey(rec)
		}
		if err := r.writeFile(KeysFile, out); err != nil {
			return err
		}
	}

	if snap.dirtyCooldowns {
		out := make(map[string]int64, len(snap.cooldowns))
		for user, at := range snap.cooldowns {
			out[user] = at
		}
		if err := r.writeFile(CooldownsFile, out); err != nil {
			return err
		}
	}

	if snap.dirtyBlacklist {
		out := make(map[string]fileBlacklistEntry, len(snap.blacklist))
		for user, e := range snap.blacklist {
			out[user] = fileBlacklistEntry{
				Reason:        e.Reason,
				BlacklistedAt: float64(e.BlacklistedAt),
				BlacklistedBy: e.BlacklistedBy,
			}
		}
		if err := r.writeFile(BlacklistFile, out); err != nil {
			return err
		}
	}

	if snap.dirtyScripts {
		out := make(map[string]fileScript, len(snap.scripts))
		for id, sc := range snap.scripts {
			out[id] = fileScript{
				Name:        sc.Name,
				Description: sc.Description,
				Owner:       sc.Owner,
				CreatedAt:   float64(sc.CreatedAt),
				Downloads:   sc.Downloads,
				Executions:  sc.Executions,
			}
		}
		if err := r.writeFile(ScriptsFile, out); err != nil {
			return err
		}
	}

	return nil
}

// readFile leaves v untouched when the file does not exist yet.
func (r *JSONFileRepository) readFile(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (r *JSONFileRepository) writeFile(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(r.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
