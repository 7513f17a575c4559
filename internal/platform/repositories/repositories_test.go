package repositories

import (
	"context"
	"errors"
	"testing"

	"keyhub/internal/engine/licensing"
	"keyhub/internal/platform/config"
	"keyhub/internal/platform/database"
)

func newSQLiteBackend(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.SQLiteConfig{Path: ":memory:", MaxConnections: 1})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if err := database.Migrate(db, "up"); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func backends(t *testing.T) map[string]Backend {
	jsonRepo, err := NewJSONFileRepository(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open json repo: %v", err)
	}
	return map[string]Backend{
		DriverMemory:   NewMemoryRepository(),
		DriverJSONFile: jsonRepo,
		DriverSQLite:   newSQLiteBackend(t),
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestBackends_KeyLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec := licensing.KeyRecord{
				Key:       "ZPOFES-AAAAAAAAAAAA",
				Type:      licensing.KeyTypeTemporary,
				Owner:     "1001",
				CreatedBy: "admin",
				CreatedAt: 1700000000,
				ExpiresAt: int64Ptr(1700086400),
			}

			err := repo.Write(ctx, func(st licensing.State) error {
				return st.InsertKey(rec)
			})
			if err != nil {
				t.Fatalf("InsertKey failed: %v", err)
			}

			err = repo.Write(ctx, func(st licensing.State) error {
				return st.InsertKey(rec)
			})
			if !errors.Is(err, licensing.ErrDuplicateKey) {
				t.Errorf("Expected ErrDuplicateKey, got %v", err)
			}

			err = repo.Write(ctx, func(st licensing.State) error {
				got, ok, err := st.Key(rec.Key)
				if err != nil || !ok {
					t.Fatalf("Key lookup failed: ok=%v err=%v", ok, err)
				}
				got.HWID = "HWID-1"
				return st.UpdateKey(got)
			})
			if err != nil {
				t.Fatalf("UpdateKey failed: %v", err)
			}

			err = repo.Read(ctx, func(st licensing.State) error {
				got, ok, err := st.Key(rec.Key)
				if err != nil {
					return err
				}
				if !ok {
					t.Fatal("Expected key to exist")
				}
				if got.HWID != "HWID-1" || !got.Used {
					t.Errorf("Expected bound record, got hwid=%q used=%v", got.HWID, got.Used)
				}
				if got.ExpiresAt == nil || *got.ExpiresAt != 1700086400 {
					t.Errorf("Expected expiry 1700086400, got %v", got.ExpiresAt)
				}
				if got.Type != licensing.KeyTypeTemporary || got.Owner != "1001" || got.CreatedBy != "admin" {
					t.Errorf("Unexpected record %+v", got)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}

			err = repo.Write(ctx, func(st licensing.State) error {
				return st.UpdateKey(licensing.KeyRecord{Key: "ZPOFES-MISSING00000", Type: licensing.KeyTypePermanent})
			})
			if !errors.Is(err, licensing.ErrNotFound) {
				t.Errorf("Expected ErrNotFound for missing update, got %v", err)
			}

			var deleted, again bool
			err = repo.Write(ctx, func(st licensing.State) error {
				var err error
				if deleted, err = st.DeleteKey(rec.Key); err != nil {
					return err
				}
				again, err = st.DeleteKey(rec.Key)
				return err
			})
			if err != nil {
				t.Fatalf("DeleteKey failed: %v", err)
			}
			if !deleted || again {
				t.Errorf("Expected first delete true and second false, got %v %v", deleted, again)
			}
		})
	}
}

func TestBackends_KeyByOwnerReturnsOldest(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := repo.Write(ctx, func(st licensing.State) error {
				for _, rec := range []licensing.KeyRecord{
					{Key: "ZPOFES-CCCCCCCCCCCC", Type: licensing.KeyTypePermanent, Owner: "42", CreatedAt: 300},
					{Key: "ZPOFES-BBBBBBBBBBBB", Type: licensing.KeyTypePermanent, Owner: "42", CreatedAt: 100},
					{Key: "ZPOFES-AAAAAAAAAAAA", Type: licensing.KeyTypePermanent, Owner: "7", CreatedAt: 50},
				} {
					if err := st.InsertKey(rec); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Insert failed: %v", err)
			}

			err = repo.Read(ctx, func(st licensing.State) error {
				got, ok, err := st.KeyByOwner("42")
				if err != nil {
					return err
				}
				if !ok || got.Key != "ZPOFES-BBBBBBBBBBBB" {
					t.Errorf("Expected oldest key for owner 42, got %q (ok=%v)", got.Key, ok)
				}
				if _, ok, _ := st.KeyByOwner("nobody"); ok {
					t.Error("Expected no key for unknown owner")
				}
				keys, err := st.Keys()
				if err != nil {
					return err
				}
				if len(keys) != 3 {
					t.Errorf("Expected 3 keys, got %d", len(keys))
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
		})
	}
}

func TestBackends_CooldownsAndBlacklist(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := repo.Write(ctx, func(st licensing.State) error {
				if err := st.SetLastReset("42", 1000); err != nil {
					return err
				}
				if err := st.SetLastReset("42", 2000); err != nil {
					return err
				}
				if err := st.PutBlacklistEntry(licensing.BlacklistEntry{UserID: "9", Reason: "chargeback", BlacklistedAt: 500, BlacklistedBy: "admin"}); err != nil {
					return err
				}
				return st.PutBlacklistEntry(licensing.BlacklistEntry{UserID: "9", Reason: "fraud", BlacklistedAt: 600, BlacklistedBy: "admin"})
			})
			if err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			err = repo.Read(ctx, func(st licensing.State) error {
				at, ok, err := st.LastReset("42")
				if err != nil {
					return err
				}
				if !ok || at != 2000 {
					t.Errorf("Expected last reset 2000, got %d (ok=%v)", at, ok)
				}
				if _, ok, _ := st.LastReset("43"); ok {
					t.Error("Expected no reset recorded for 43")
				}

				entry, ok, err := st.BlacklistEntry("9")
				if err != nil {
					return err
				}
				if !ok || entry.Reason != "fraud" || entry.BlacklistedAt != 600 {
					t.Errorf("Expected replaced entry, got %+v (ok=%v)", entry, ok)
				}
				all, err := st.Blacklist()
				if err != nil {
					return err
				}
				if len(all) != 1 {
					t.Errorf("Expected 1 blacklist entry, got %d", len(all))
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}

			var removed, again bool
			err = repo.Write(ctx, func(st licensing.State) error {
				var err error
				if removed, err = st.DeleteBlacklistEntry("9"); err != nil {
					return err
				}
				again, err = st.DeleteBlacklistEntry("9")
				return err
			})
			if err != nil {
				t.Fatalf("DeleteBlacklistEntry failed: %v", err)
			}
			if !removed || again {
				t.Errorf("Expected first removal true and second false, got %v %v", removed, again)
			}
		})
	}
}

func TestBackends_FailedWriteIsDiscarded(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := repo.Write(ctx, func(st licensing.State) error {
				if err := st.InsertKey(licensing.KeyRecord{Key: "ZPOFES-DDDDDDDDDDDD", Type: licensing.KeyTypePermanent, CreatedAt: 1}); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Expected callback error, got %v", err)
			}

			err = repo.Read(ctx, func(st licensing.State) error {
				if _, ok, _ := st.Key("ZPOFES-DDDDDDDDDDDD"); ok {
					t.Error("Expected failed write to leave no key behind")
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
		})
	}
}

func TestBackends_Ping(t *testing.T) {
	for name, repo := range backends(t) {
		if err := repo.Ping(context.Background()); err != nil {
			t.Errorf("%s: Ping failed: %v", name, err)
		}
	}
}

func TestMemoryRepository_RecordsAreDetached(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	repo.Write(ctx, func(st licensing.State) error {
		return st.InsertKey(licensing.KeyRecord{Key: "ZPOFES-EEEEEEEEEEEE", Type: licensing.KeyTypeTemporary, CreatedAt: 1, ExpiresAt: int64Ptr(100)})
	})

	repo.Read(ctx, func(st licensing.State) error {
		got, _, _ := st.Key("ZPOFES-EEEEEEEEEEEE")
		*got.ExpiresAt = 999
		return nil
	})

	repo.Read(ctx, func(st licensing.State) error {
		got, _, _ := st.Key("ZPOFES-EEEEEEEEEEEE")
		if *got.ExpiresAt != 100 {
			t.Errorf("Expected stored expiry to stay 100, got %d", *got.ExpiresAt)
		}
		return nil
	})
}

func TestOpen(t *testing.T) {
	storage, err := Open(config.StorageConfig{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	if storage.DB != nil {
		t.Error("Expected no *sql.DB for memory driver")
	}
	storage.Close()

	storage, err = Open(config.StorageConfig{
		Driver: DriverSQLite,
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxConnections: 1, AutoMigrate: true},
	})
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	if storage.DB == nil {
		t.Error("Expected *sql.DB for sqlite driver")
	}
	storage.Close()

	if _, err := Open(config.StorageConfig{Driver: "etcd"}); err == nil {
		t.Error("Expected error for unknown driver")
	}
}

func TestBackends_Scripts(t *testing.T) {
	ctx := context.Background()
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sc := licensing.Script{ID: "ab12cd34", Name: "Auto Farm", Description: "farms", Owner: "42", CreatedAt: 1700000000}

			err := repo.Write(ctx, func(st licensing.State) error {
				return st.InsertScript(sc)
			})
			if err != nil {
				t.Fatalf("InsertScript failed: %v", err)
			}

			err = repo.Write(ctx, func(st licensing.State) error {
				return st.InsertScript(sc)
			})
			if !errors.Is(err, licensing.ErrDuplicateKey) {
				t.Errorf("Expected ErrDuplicateKey, got %v", err)
			}

			err = repo.Write(ctx, func(st licensing.State) error {
				got, ok, err := st.Script(sc.ID)
				if err != nil || !ok {
					t.Fatalf("Script lookup failed: ok=%v err=%v", ok, err)
				}
				got.Downloads += 2
				got.Executions++
				return st.UpdateScript(got)
			})
			if err != nil {
				t.Fatalf("UpdateScript failed: %v", err)
			}

			err = repo.Write(ctx, func(st licensing.State) error {
				return st.UpdateScript(licensing.Script{ID: "missing1", Name: "x"})
			})
			if !errors.Is(err, licensing.ErrScriptNotFound) {
				t.Errorf("Expected ErrScriptNotFound, got %v", err)
			}

			err = repo.Read(ctx, func(st licensing.State) error {
				all, err := st.Scripts()
				if err != nil {
					return err
				}
				if len(all) != 1 {
					t.Fatalf("Expected 1 script, got %d", len(all))
				}
				got := all[0]
				if got.Name != "Auto Farm" || got.Owner != "42" || got.CreatedAt != 1700000000 || got.Downloads != 2 || got.Executions != 1 {
					t.Errorf("Unexpected script %+v", got)
				}
				if _, ok, _ := st.Script("missing1"); ok {
					t.Error("Expected missing script to be absent")
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
		})
	}
}
