package manifest

import (
	"bytes"
	"sort"
	"strings"
)

// pathPadding is the trailing junk the upstream fixed-width encoding
// leaves on decrypted filenames.
const pathPadding = "\x00 \n\t"

// Normalize rewrites m into its canonical form:
//
//   - trailing padding is stripped from every entry path
//   - each entry's chunk list is sorted byte-wise by chunk hash
//   - entries are sorted case-insensitively by path; entries whose
//     stripped path collapses to a case-insensitive duplicate are
//     dropped, first occurrence in stable sort order wins
//   - the origin signature is cleared; it covered the undecrypted
//     payload and no longer verifies anything
//   - UniqueChunks and the integrity checksum are recomputed
//
// Normalize is deterministic and idempotent: equal entry sets yield
// byte-identical Serialize output regardless of input ordering.
func Normalize(m *Manifest) {
	for i := range m.Entries {
		e := &m.Entries[i]
		e.Path = strings.TrimRight(e.Path, pathPadding)
		sort.Slice(e.Chunks, func(a, b int) bool {
			return bytes.Compare(e.Chunks[a].SHA[:], e.Chunks[b].SHA[:]) < 0
		})
	}

	sort.SliceStable(m.Entries, func(a, b int) bool {
		return strings.ToUpper(m.Entries[a].Path) < strings.ToUpper(m.Entries[b].Path)
	})

	// Collapse case-insensitive duplicates; the stable sort above keeps
	// the first-seen entry in front.
	kept := m.Entries[:0]
	prev := ""
	for i, e := range m.Entries {
		folded := strings.ToUpper(e.Path)
		if i > 0 && folded == prev {
			continue
		}
		kept = append(kept, e)
		prev = folded
	}
	m.Entries = kept

	seen := make(map[[20]byte]bool)
	for _, e := range m.Entries {
		for _, c := range e.Chunks {
			seen[c.SHA] = true
		}
	}
	m.UniqueChunks = uint32(len(seen))

	m.Signature = nil
	m.FilenamesEncrypted = false
	m.CRCClear = ChecksumPayload(EncodePayload(m.Entries))
}
