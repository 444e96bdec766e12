// Package credentials manages the on-disk cache of refresh tokens,
// a JSON object mapping username to opaque token.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"

	"github.com/detiam/DepotManifestGen/internal/util"
)

// Cache is the credential cache bound to one file path.
type Cache struct {
	path   string
	tokens map[string]string
}

// Open loads the cache at path. A missing, unreadable, or corrupt file
// yields an empty cache; only string-valued entries are kept.
func Open(path string) *Cache {
	c := &Cache{path: path, tokens: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return c
	}
	for user, v := range raw {
		if tok, ok := v.(string); ok {
			c.tokens[user] = tok
		}
	}
	return c
}

// Token returns the cached refresh token for username, if any.
func (c *Cache) Token(username string) (string, bool) {
	tok, ok := c.tokens[username]
	return tok, ok
}

// Usernames returns the cached usernames in sorted order.
func (c *Cache) Usernames() []string {
	users := make([]string, 0, len(c.tokens))
	for u := range c.tokens {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Forget drops the cached token for username in memory only. The
// on-disk cache is left untouched: Put merges with the disk state, so
// a removal never propagates there.
func (c *Cache) Forget(username string) {
	delete(c.tokens, username)
}

// Put stores a token and persists the cache. The read-merge-write cycle
// runs under an exclusive file lock so two processes saving different
// accounts do not clobber each other; the on-disk state is re-read
// under the lock before merging this cache's entries over it.
func (c *Cache) Put(username, token string) error {
	c.tokens[username] = token

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	lock := flock.New(c.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock credential cache: %w", err)
	}
	defer lock.Unlock()

	merged := Open(c.path).tokens
	for u, t := range c.tokens {
		merged[u] = t
	}

	data, err := json.MarshalIndent(merged, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal credential cache: %w", err)
	}
	if err := util.WriteFileAtomic(c.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write credential cache: %w", err)
	}
	return nil
}
