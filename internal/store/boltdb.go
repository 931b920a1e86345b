package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/snapvault/vaultkeeper/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketJournals      = []byte("journals")
	bucketStorages      = []byte("snapshot_storage")
	bucketRoots         = []byte("storage_root")
	bucketLocators      = []byte("locator")
	bucketHostSnapshots = []byte("host_snapshot")
	bucketDiskSnapshots = []byte("disk_snapshot")
)

// BoltStore implements Store on top of a single bbolt file, one bucket
// per table, mirroring the teacher's bucket-per-entity layout.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the bolt file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "vaultkeeper.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketJournals, bucketStorages, bucketRoots, bucketLocators, bucketHostSnapshots, bucketDiskSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// --- Journal ---

func (s *BoltStore) AppendJournal(j *domain.Journal) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJournals)
		if j.AppendID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			j.AppendID = int64(seq)
		}
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return b.Put([]byte(j.Token), data)
	})
}

func (s *BoltStore) GetJournalByToken(token string) (*domain.Journal, error) {
	var j domain.Journal
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJournals).Get([]byte(token))
		if data == nil {
			return fmt.Errorf("journal not found: %s", token)
		}
		return json.Unmarshal(data, &j)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *BoltStore) ListUnconsumedCreateJournals(rootID string) ([]*domain.Journal, error) {
	var out []*domain.Journal
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJournals).ForEach(func(_, v []byte) error {
			var j domain.Journal
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.RootID == rootID && domain.CreateJournalKinds[j.Kind] && !j.Consumed() {
				out = append(out, &j)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, k int) bool { return out[i].AppendID < out[k].AppendID })
	return out, nil
}

func (s *BoltStore) ConsumeJournal(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return consumeJournalTx(tx, token)
	})
}

func consumeJournalTx(tx *bolt.Tx, token string) error {
	b := tx.Bucket(bucketJournals)
	data := b.Get([]byte(token))
	if data == nil {
		return fmt.Errorf("journal not found: %s", token)
	}
	var j domain.Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	now := time.Now()
	j.ConsumedTimestamp = &now
	out, err := json.Marshal(&j)
	if err != nil {
		return err
	}
	return b.Put([]byte(token), out)
}

// --- Storage ---

func (s *BoltStore) CreateStorage(st *domain.Storage) error {
	return s.db.Update(func(tx *bolt.Tx) error { return createStorageTx(tx, st) })
}

func createStorageTx(tx *bolt.Tx, st *domain.Storage) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketStorages).Put([]byte(st.Ident), data)
}

func (s *BoltStore) GetStorage(ident string) (*domain.Storage, error) {
	var st domain.Storage
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStorages).Get([]byte(ident))
		if data == nil {
			return fmt.Errorf("storage not found: %s", ident)
		}
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *BoltStore) ListNonRecycledStorages(rootID string) ([]*domain.Storage, error) {
	var out []*domain.Storage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStorages).ForEach(func(_, v []byte) error {
			var st domain.Storage
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			if st.RootID == rootID && st.Status != domain.StatusRecycled {
				out = append(out, &st)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListAllStoragesForRoot(rootID string) ([]*domain.Storage, error) {
	var out []*domain.Storage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStorages).ForEach(func(_, v []byte) error {
			var st domain.Storage
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			if st.RootID == rootID {
				out = append(out, &st)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListStoragesByImagePath(imagePath string) ([]*domain.Storage, error) {
	var out []*domain.Storage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStorages).ForEach(func(_, v []byte) error {
			var st domain.Storage
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			if st.ImagePath == imagePath {
				out = append(out, &st)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateStorage(st *domain.Storage) error {
	return s.db.Update(func(tx *bolt.Tx) error { return createStorageTx(tx, st) })
}

// --- Root ---

func (s *BoltStore) CreateRoot(r *domain.Root) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putRootTx(tx, r) })
}

func putRootTx(tx *bolt.Tx, r *domain.Root) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketRoots).Put([]byte(r.ID), data)
}

func (s *BoltStore) GetRoot(id string) (*domain.Root, error) {
	var r domain.Root
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRoots).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("root not found: %s", id)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) ListValidRoots() ([]*domain.Root, error) {
	var out []*domain.Root
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).ForEach(func(_, v []byte) error {
			var r domain.Root
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Valid {
				out = append(out, &r)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateRoot(r *domain.Root) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putRootTx(tx, r) })
}

func (s *BoltStore) EnsureRecycleRoot() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoots)
		if b.Get([]byte(domain.RecycleRootID)) != nil {
			return nil
		}
		r := &domain.Root{ID: domain.RecycleRootID, HashType: domain.HashTypeNone, Valid: true}
		return putRootTx(tx, r)
	})
}

// --- Locator / HostSnapshot / DiskSnapshot ---

// PutLocator, PutHostSnapshot, and PutDiskSnapshot write the
// externally-owned locator/host-snapshot/disk-snapshot records that
// spec.md places out of scope for vaultkeeper to originate — in
// production these buckets are populated by the collaborating
// image/logic daemon's own writes; in this module only tests call them.
func (s *BoltStore) PutLocator(l *domain.Locator) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLocators).Put([]byte(l.ID), data)
	})
}

func (s *BoltStore) PutHostSnapshot(hs *domain.HostSnapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(hs)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHostSnapshots).Put([]byte(hs.ID), data)
	})
}

func (s *BoltStore) PutDiskSnapshot(ds *domain.DiskSnapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(ds)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDiskSnapshots).Put([]byte(ds.ID), data)
	})
}

func (s *BoltStore) GetLocator(id string) (*domain.Locator, error) {
	var l domain.Locator
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLocators).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("locator not found: %s", id)
		}
		return json.Unmarshal(data, &l)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *BoltStore) ListDiskSnapshotsByLocator(locatorID string) ([]*domain.DiskSnapshot, error) {
	var out []*domain.DiskSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDiskSnapshots).ForEach(func(_, v []byte) error {
			var ds domain.DiskSnapshot
			if err := json.Unmarshal(v, &ds); err != nil {
				return err
			}
			if ds.LocatorID == locatorID {
				out = append(out, &ds)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListDiskSnapshotsByHostSnapshot(hostSnapshotID string) ([]*domain.DiskSnapshot, error) {
	var out []*domain.DiskSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDiskSnapshots).ForEach(func(_, v []byte) error {
			var ds domain.DiskSnapshot
			if err := json.Unmarshal(v, &ds); err != nil {
				return err
			}
			if ds.HostSnapshotID == hostSnapshotID {
				out = append(out, &ds)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListStoragesByLocator(locatorID string) ([]*domain.Storage, error) {
	var out []*domain.Storage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStorages).ForEach(func(_, v []byte) error {
			var st domain.Storage
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			if st.LocatorID != nil && *st.LocatorID == locatorID {
				out = append(out, &st)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) GetHostSnapshot(id string) (*domain.HostSnapshot, error) {
	var hs domain.HostSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketHostSnapshots).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("host snapshot not found: %s", id)
		}
		return json.Unmarshal(data, &hs)
	})
	if err != nil {
		return nil, err
	}
	return &hs, nil
}

// --- Tx ---

type boltMutator struct{ tx *bolt.Tx }

func (m *boltMutator) CreateStorage(st *domain.Storage) error { return createStorageTx(m.tx, st) }
func (m *boltMutator) UpdateStorage(st *domain.Storage) error { return createStorageTx(m.tx, st) }
func (m *boltMutator) UpdateRoot(r *domain.Root) error         { return putRootTx(m.tx, r) }
func (m *boltMutator) ConsumeJournal(token string) error       { return consumeJournalTx(m.tx, token) }
func (m *boltMutator) AppendJournal(j *domain.Journal) error {
	b := m.tx.Bucket(bucketJournals)
	if j.AppendID == 0 {
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		j.AppendID = int64(seq)
	}
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return b.Put([]byte(j.Token), data)
}

func (s *BoltStore) Tx(fn func(Mutator) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltMutator{tx: tx})
	})
}
