package licensing

import "context"

// Repository is the persistence boundary of the Keystore.
//
// Read runs fn against a consistent view of the store. Write runs fn inside
// an exclusive transaction: changes made through State are persisted only
// when fn returns nil, and no other Write observes them half-applied.
type Repository interface {
	Read(ctx context.Context, fn func(State) error) error
	Write(ctx context.Context, fn func(State) error) error
}

// State is the record-level view handed to Repository callbacks.
type State interface {
	Key(key string) (KeyRecord, bool, error)
	// KeyByOwner returns the oldest key owned by userID.
	KeyByOwner(userID string) (KeyRecord, bool, error)
	Keys() ([]KeyRecord, error)
	// InsertKey fails with ErrDuplicateKey when the key already exists.
	InsertKey(rec KeyRecord) error
	UpdateKey(rec KeyRecord) error
	DeleteKey(key string) (bool, error)

	LastReset(userID string) (int64, bool, error)
	SetLastReset(userID string, at int64) error

	BlacklistEntry(userID string) (BlacklistEntry, bool, error)
	Blacklist() ([]BlacklistEntry, error)
	PutBlacklistEntry(entry BlacklistEntry) error
	DeleteBlacklistEntry(userID string) (bool, error)

	Script(id string) (Script, bool, error)
	Scripts() ([]Script, error)
	// InsertScript fails with ErrDuplicateKey when the id is taken.
	InsertScript(sc Script) error
	UpdateScript(sc Script) error
}
