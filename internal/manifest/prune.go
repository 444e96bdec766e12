package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Prune removes superseded manifest files for one depot: every
// `<depotID>_<gid>.manifest` in dir whose gid differs from keepGID.
// Filenames that do not match the pattern are ignored. Deletion is
// best-effort; a file that vanishes between scan and unlink is not an
// error. Callers must only invoke Prune after the keepGID manifest has
// been durably written. Returns the removed file names.
func Prune(dir string, depotID uint32, keepGID uint64) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan depot dir: %w", err)
	}

	var removed []string
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		depot, gid, ok := parseFileName(name)
		if !ok {
			continue
		}
		if depot != depotID || gid == keepGID {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// parseFileName splits `<depotID>_<gid>.manifest` into its components.
// ok is false for anything that does not match exactly.
func parseFileName(name string) (depotID uint32, gid uint64, ok bool) {
	stem, found := strings.CutSuffix(name, ".manifest")
	if !found {
		return 0, 0, false
	}
	depotPart, gidPart, found := strings.Cut(stem, "_")
	if !found || strings.Contains(gidPart, "_") {
		return 0, 0, false
	}
	d, err := strconv.ParseUint(depotPart, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	g, err := strconv.ParseUint(gidPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return uint32(d), g, true
}
