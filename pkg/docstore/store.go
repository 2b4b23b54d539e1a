package docstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/cuemby/eventbase/pkg/predicate"
	"github.com/cuemby/eventbase/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")
	bucketMeta      = []byte("meta")
	bucketSettings  = []byte("settings")
)

// SettingsKey is the fixed row Settings is stored under, per the stream
// name it belongs to.
func SettingsKey(streamName string) string {
	return streamName + "_last_processed_seq"
}

// Store is the BoltDB-backed local document store for one base.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the store file under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "store.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDocuments, bucketMeta, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertDocument writes data under id, replacing any prior value.
func (s *Store) UpsertDocument(id string, data json.RawMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(id), data)
	})
}

// GetDocument returns the document stored under id, or ok == false if id is
// not live.
func (s *Store) GetDocument(id string) (data json.RawMessage, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDocuments).Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		data = append(json.RawMessage(nil), v...)
		return nil
	})
	return data, ok, err
}

// DeleteDocument removes id. Removing an absent id is success.
func (s *Store) DeleteDocument(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Delete([]byte(id))
	})
}

// UpsertMeta writes meta under id.
func (s *Store) UpsertMeta(id string, meta *types.MetaData) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(id), data)
	})
}

// GetMeta returns the MetaData stored under id, or ok == false if absent.
func (s *Store) GetMeta(id string) (meta *types.MetaData, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get([]byte(id))
		if v == nil {
			return nil
		}
		var m types.MetaData
		if uerr := json.Unmarshal(v, &m); uerr != nil {
			return uerr
		}
		meta = &m
		ok = true
		return nil
	})
	return meta, ok, err
}

// DeleteMeta removes the MetaData stored under id. Removing an absent id
// is success.
func (s *Store) DeleteMeta(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Delete([]byte(id))
	})
}

// GetSettings returns the checkpoint value stored under key, or ok == false
// if never written.
func (s *Store) GetSettings(key string) (value string, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get([]byte(key))
		if v == nil {
			return nil
		}
		var settings types.Settings
		if uerr := json.Unmarshal(v, &settings); uerr != nil {
			return uerr
		}
		value = settings.Value
		ok = true
		return nil
	})
	return value, ok, err
}

// PutSettings atomically persists value under key.
func (s *Store) PutSettings(key, value string) error {
	data, err := json.Marshal(types.Settings{ID: key, Value: value})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), data)
	})
}

// Keys enumerates every live document id. If pattern is non-nil, only ids
// matching it (regexp search, not full-match) are included.
func (s *Store) Keys(pattern *regexp.Regexp) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, _ []byte) error {
			id := string(k)
			if pattern == nil || pattern.MatchString(id) {
				keys = append(keys, id)
			}
			return nil
		})
	})
	return keys, err
}

// Query evaluates pred against every live document and returns the matches,
// after applying opts.Sort, opts.Offset, opts.Limit and then opts.Project.
// Each match is returned as a types.Record whose Data is the stored JSON
// document as-is and whose Meta is the key's MetaData when one is stored.
func (s *Store) Query(pred predicate.Predicate, opts types.QueryOptions) ([]types.Record, error) {
	var matches []types.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		documents := tx.Bucket(bucketDocuments)
		meta := tx.Bucket(bucketMeta)

		return documents.ForEach(func(k, v []byte) error {
			var doc map[string]interface{}
			if err := json.Unmarshal(v, &doc); err != nil {
				return nil
			}
			if !predicate.Match(doc, pred) {
				return nil
			}

			var m *types.MetaData
			if raw := meta.Get(k); raw != nil {
				var decoded types.MetaData
				if err := json.Unmarshal(raw, &decoded); err == nil {
					m = &decoded
				}
			}

			matches = append(matches, types.Record{
				Meta: m,
				Data: append(json.RawMessage(nil), v...),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	applySort(matches, opts.Sort)
	matches = applyWindow(matches, opts.Offset, opts.Limit)
	return applyProject(matches, opts.Project)
}

// Count returns the number of live documents matching pred.
func (s *Store) Count(pred predicate.Predicate) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var doc map[string]interface{}
			if err := json.Unmarshal(v, &doc); err != nil {
				return nil
			}
			if predicate.Match(doc, pred) {
				count++
			}
			return nil
		})
	})
	return count, err
}

func applySort(records []types.Record, sortSpec map[string]int) {
	if len(sortSpec) == 0 {
		return
	}

	fields := make([]string, 0, len(sortSpec))
	for f := range sortSpec {
		fields = append(fields, f)
	}
	sort.Strings(fields) // deterministic iteration when multiple fields tie

	sort.SliceStable(records, func(i, j int) bool {
		var di, dj map[string]interface{}
		_ = json.Unmarshal(records[i].Data, &di)
		_ = json.Unmarshal(records[j].Data, &dj)

		for _, field := range fields {
			dir := sortSpec[field]
			c, ok := compareValues(di[field], dj[field])
			if !ok || c == 0 {
				continue
			}
			if dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareValues(a, b interface{}) (int, bool) {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func applyWindow(records []types.Record, offset, limit int) []types.Record {
	if offset > 0 {
		if offset >= len(records) {
			return nil
		}
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

func applyProject(records []types.Record, project map[string]int) ([]types.Record, error) {
	if len(project) == 0 {
		return records, nil
	}

	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		var doc map[string]interface{}
		if err := json.Unmarshal(r.Data, &doc); err != nil {
			return nil, err
		}

		projected := make(map[string]interface{}, len(project))
		for field := range project {
			if v, ok := doc[field]; ok {
				projected[field] = v
			}
		}

		data, err := json.Marshal(projected)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Record{Meta: r.Meta, Data: data})
	}
	return out, nil
}
