// Package keystore maintains the per-app config.vdf sidecar mapping
// depot id to decryption key.
package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/andygrunwald/vdf"
	"github.com/gofrs/flock"

	"github.com/detiam/DepotManifestGen/internal/util"
)

// StoreName is the key-store file name inside a depot directory.
const StoreName = "config.vdf"

// Store is an in-memory key store: depot id -> lowercase hex key.
type Store struct {
	Depots map[uint32]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{Depots: make(map[uint32]string)}
}

// Load reads the store at path. An absent or unparsable file yields an
// empty store; corruption is recovered from, never fatal.
func Load(path string) *Store {
	s := NewStore()

	f, err := os.Open(path)
	if err != nil {
		return s
	}
	defer f.Close()

	doc, err := vdf.NewParser(f).Parse()
	if err != nil {
		return s
	}
	depots, ok := doc["depots"].(map[string]interface{})
	if !ok {
		return s
	}
	for idStr, v := range depots {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		entry, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		key, ok := entry["DecryptionKey"].(string)
		if !ok {
			continue
		}
		s.Depots[uint32(id)] = strings.ToLower(key)
	}
	return s
}

// Merge sets the key for one depot, leaving every other entry untouched.
func (s *Store) Merge(depotID uint32, key []byte) {
	s.Depots[depotID] = util.HexEncode(key)
}

// Encode serializes the store as pretty KeyValues text with depot
// entries sorted ascending by depot id. Load followed by Encode is
// byte-stable.
func (s *Store) Encode() []byte {
	ids := make([]uint32, 0, len(s.Depots))
	for id := range s.Depots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	b.WriteString("\"depots\"\n{\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "\t\"%d\"\n\t{\n", id)
		fmt.Fprintf(&b, "\t\t\"DecryptionKey\"\t\t\"%s\"\n", s.Depots[id])
		b.WriteString("\t}\n")
	}
	b.WriteString("}\n")
	return []byte(b.String())
}

// Save writes the store atomically to path.
func (s *Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := util.WriteFileAtomic(path, s.Encode(), 0o644); err != nil {
		return fmt.Errorf("write key store: %w", err)
	}
	return nil
}

// MergeKey performs one locked read-merge-write cycle on the store in
// dir: load (empty on absence/corruption), set the depot's key, write
// the whole file back atomically. The exclusive lock spans the full
// cycle so concurrent processes cannot silently drop each other's keys.
func MergeKey(dir string, depotID uint32, key []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create depot dir: %w", err)
	}

	path := filepath.Join(dir, StoreName)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock key store: %w", err)
	}
	defer lock.Unlock()

	s := Load(path)
	s.Merge(depotID, key)
	return s.Save(path)
}
