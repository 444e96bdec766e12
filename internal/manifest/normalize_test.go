package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha(b byte) (out [20]byte) {
	for i := range out {
		out[i] = b
	}
	return out
}

func entry(path string, chunkIDs ...byte) FileEntry {
	e := FileEntry{Path: path, Size: 10, SHAContent: sha(0xEE)}
	for _, id := range chunkIDs {
		e.Chunks = append(e.Chunks, Chunk{SHA: sha(id), Offset: uint64(id), UncompressedSize: 4, CompressedSize: 2})
	}
	return e
}

func testManifest(entries ...FileEntry) *Manifest {
	return &Manifest{
		AppID:              480,
		DepotID:            481,
		GID:                8589934605,
		CreationTime:       1700000000,
		FilenamesEncrypted: true,
		Signature:          []byte("origin-signature"),
		Entries:            entries,
	}
}

func TestNormalizeStripsPadding(t *testing.T) {
	m := testManifest(entry("data/file.bin\x00\x00"), entry("notes.txt \n\t"))
	Normalize(m)

	require.Len(t, m.Entries, 2)
	assert.Equal(t, "data/file.bin", m.Entries[0].Path)
	assert.Equal(t, "notes.txt", m.Entries[1].Path)
}

func TestNormalizeSortsChunksByHash(t *testing.T) {
	m := testManifest(entry("a", 9, 3, 7, 1))
	Normalize(m)

	chunks := m.Entries[0].Chunks
	require.Len(t, chunks, 4)
	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i-1].SHA[0], chunks[i].SHA[0], "chunk %d out of order", i)
	}
}

func TestNormalizeSortsEntriesCaseInsensitive(t *testing.T) {
	m := testManifest(entry("zeta"), entry("Alpha"), entry("beta"))
	Normalize(m)

	require.Len(t, m.Entries, 3)
	assert.Equal(t, "Alpha", m.Entries[0].Path)
	assert.Equal(t, "beta", m.Entries[1].Path)
	assert.Equal(t, "zeta", m.Entries[2].Path)
}

func TestNormalizeCollapsesCaseInsensitiveDuplicates(t *testing.T) {
	// "a/readme" comes before "a/Readme" in input; stable sort keeps it.
	m := testManifest(entry("b/File.TXT"), entry("a/readme"), entry("a/Readme"))
	Normalize(m)

	require.Len(t, m.Entries, 2)
	assert.Equal(t, "a/readme", m.Entries[0].Path)
	assert.Equal(t, "b/File.TXT", m.Entries[1].Path)
}

func TestNormalizeClearsSignature(t *testing.T) {
	m := testManifest(entry("a"))
	Normalize(m)

	assert.Nil(t, m.Signature)
	assert.False(t, m.FilenamesEncrypted)
}

func TestNormalizeChecksum(t *testing.T) {
	m := testManifest(entry("a", 1), entry("b", 2))
	Normalize(m)

	payload := EncodePayload(m.Entries)
	assert.Equal(t, ChecksumPayload(payload), m.CRCClear)
}

func TestNormalizeUniqueChunks(t *testing.T) {
	// Chunk 1 appears in both entries; 3 distinct hashes total.
	m := testManifest(entry("a", 1, 2), entry("b", 1, 3))
	Normalize(m)

	assert.Equal(t, uint32(3), m.UniqueChunks)
}

func TestNormalizeDeterministic(t *testing.T) {
	a := testManifest(entry("x/one", 5, 2), entry("Y/two", 8), entry("z/three\x00"))
	b := testManifest(entry("z/three"), entry("x/one", 2, 5), entry("Y/two", 8))

	Normalize(a)
	Normalize(b)

	assert.Equal(t, Serialize(a), Serialize(b), "same logical content must serialize identically")
}

func TestNormalizeIdempotent(t *testing.T) {
	m := testManifest(entry("b/x", 3, 1), entry("A/y\x00", 2))
	Normalize(m)
	first := Serialize(m)
	Normalize(m)
	assert.Equal(t, first, Serialize(m))
}
