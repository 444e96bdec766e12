package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/detiam/DepotManifestGen/internal/util"
)

// FileName returns the on-disk name for a (depot, generation) pair.
func FileName(depotID uint32, gid uint64) string {
	return fmt.Sprintf("%d_%d.manifest", depotID, gid)
}

// Path returns the manifest path under root for the given manifest.
func Path(root string, m *Manifest) string {
	return filepath.Join(DepotDir(root, m.AppID), FileName(m.DepotID, m.GID))
}

// DepotDir returns the per-app depot directory under root.
func DepotDir(root string, appID uint32) string {
	return filepath.Join(root, "depots", fmt.Sprint(appID))
}

// Write persists a normalized manifest under root. Manifests are
// immutable per (depot, generation): if the target file already exists
// the write is skipped and written is false. The file appears atomically
// via a same-directory rename, never in a half-written state.
func Write(root string, m *Manifest) (path string, written bool, err error) {
	dir := DepotDir(root, m.AppID)
	path = filepath.Join(dir, FileName(m.DepotID, m.GID))

	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("create depot dir: %w", err)
	}
	if err := util.WriteFileAtomic(path, Serialize(m), 0o644); err != nil {
		return "", false, fmt.Errorf("write manifest: %w", err)
	}
	return path, true, nil
}

// ReadFile loads and verifies a serialized manifest from disk.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Deserialize(data)
}
