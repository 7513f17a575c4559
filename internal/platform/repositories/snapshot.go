package repositories

import (
	"keyhub/internal/engine/licensing"
)

// snapshot is a fully loaded copy of the store. It backs both the memory and
// the JSON file drivers and tracks which collections a Write touched.
type snapshot struct {
	keys      map[string]licensing.KeyRecord
	cooldowns map[string]int64
	blacklist map[string]licensing.BlacklistEntry
	scripts   map[string]licensing.Script

	dirtyKeys      bool
	dirtyCooldowns bool
	dirtyBlacklist bool
	dirtyScripts   bool
}

func newSnapshot() *snapshot {
	return &snapshot{
		keys:      make(map[string]licensing.KeyRecord),
		cooldowns: make(map[string]int64),
		blacklist: make(map[string]licensing.BlacklistEntry),
		scripts:   make(map[string]licensing.Script),
	}
}

func (s *snapshot) clone() *snapshot {
	c := newSnapshot()
	for k, v := range s.keys {
		c.keys[k] = detach(v)
	}
	for k, v := range s.cooldowns {
		c.cooldowns[k] = v
	}
	for k, v := range s.blacklist {
		c.blacklist[k] = v
	}
	for k, v := range s.scripts {
		c.scripts[k] = v
	}
	return c
}

func (s *snapshot) Key(key string) (licensing.KeyRecord, bool, error) {
	rec, ok := s.keys[key]
	return detach(rec), ok, nil
}

func (s *snapshot) KeyByOwner(userID string) (licensing.KeyRecord, bool, error) {
	var found licensing.KeyRecord
	ok := false
	for _, rec := range s.keys {
		if rec.Owner != userID {
			continue
		}
		if !ok || rec.CreatedAt < found.CreatedAt || (rec.CreatedAt == found.CreatedAt && rec.Key < found.Key) {
			found = rec
			ok = true
		}
	}
	return detach(found), ok, nil
}

func (s *snapshot) Keys() ([]licensing.KeyRecord, error) {
	out := make([]licensing.KeyRecord, 0, len(s.keys))
	for _, rec := range s.keys {
		out = append(out, detach(rec))
	}
	return out, nil
}

func (s *snapshot) InsertKey(rec licensing.KeyRecord) error {
	if _, exists := s.keys[rec.Key]; exists {
		return licensing.ErrDuplicateKey
	}
	rec.Normalize()
	s.keys[rec.Key] = rec
	s.dirtyKeys = true
	return nil
}

func (s *snapshot) UpdateKey(rec licensing.KeyRecord) error {
	if _, exists := s.keys[rec.Key]; !exists {
		return licensing.ErrNotFound
	}
	rec.Normalize()
	s.keys[rec.Key] = rec
	s.dirtyKeys = true
	return nil
}

func (s *snapshot) DeleteKey(key string) (bool, error) {
	if _, exists := s.keys[key]; !exists {
		return false, nil
	}
	delete(s.keys, key)
	s.dirtyKeys = true
	return true, nil
}

func (s *snapshot) LastReset(userID string) (int64, bool, error) {
	at, ok := s.cooldowns[userID]
	return at, ok, nil
}

func (s *snapshot) SetLastReset(userID string, at int64) error {
	s.cooldowns[userID] = at
	s.dirtyCooldowns = true
	return nil
}

func (s *snapshot) BlacklistEntry(userID string) (licensing.BlacklistEntry, bool, error) {
	entry, ok := s.blacklist[userID]
	return entry, ok, nil
}

func (s *snapshot) Blacklist() ([]licensing.BlacklistEntry, error) {
	out := make([]licensing.BlacklistEntry, 0, len(s.blacklist))
	for _, e := range s.blacklist {
		out = append(out, e)
	}
	return out, nil
}

func (s *snapshot) PutBlacklistEntry(entry licensing.BlacklistEntry) error {
	s.blacklist[entry.UserID] = entry
	s.dirtyBlacklist = true
	return nil
}

func (s *snapshot) DeleteBlacklistEntry(userID string) (bool, error) {
	if _, ok := s.blacklist[userID]; !ok {
		return false, nil
	}
	delete(s.blacklist, userID)
	s.dirtyBlacklist = true
	return true, nil
}

func (s *snapshot) Script(id string) (licensing.Script, bool, error) {
	sc, ok := s.scripts[id]
	return sc, ok, nil
}

func (s *snapshot) Scripts() ([]licensing.Script, error) {
	out := make([]licensing.Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		out = append(out, sc)
	}
	return out, nil
}

func (s *snapshot) InsertScript(sc licensing.Script) error {
	if _, exists := s.scripts[sc.ID]; exists {
		return licensing.ErrDuplicateKey
	}
	s.scripts[sc.ID] = sc
	s.dirtyScripts = true
	return nil
}

func (s *snapshot) UpdateScript(sc licensing.Script) error {
	if _, exists := s.scripts[sc.ID]; !exists {
		return licensing.ErrScriptNotFound
	}
	s.scripts[sc.ID] = sc
	s.dirtyScripts = true
	return nil
}

// detach copies the expiry so callers never alias stored records.
func detach(rec licensing.KeyRecord) licensing.KeyRecord {
	if rec.ExpiresAt != nil {
		exp := *rec.ExpiresAt
		rec.ExpiresAt = &exp
	}
	return rec
}
