// Package manifest implements the depot manifest data model, its binary
// on-disk codec, the normalization pass, and manifest-file persistence.
package manifest

// Chunk is one content-addressed piece of a file.
type Chunk struct {
	SHA              [20]byte // content hash, also the CDN address
	CRC              uint32
	Offset           uint64
	UncompressedSize uint32
	CompressedSize   uint32
}

// FileEntry is one file or directory record in a manifest.
type FileEntry struct {
	Path       string // may carry trailing padding until normalized
	Size       uint64
	Flags      uint32
	SHAContent [20]byte
	Chunks     []Chunk
}

// Manifest is one depot's file listing at a single generation.
type Manifest struct {
	AppID              uint32
	DepotID            uint32
	GID                uint64 // generation id, unique per depot revision
	CreationTime       uint64 // unix seconds
	OriginalSize       uint64
	CompressedSize     uint64
	UniqueChunks       uint32
	CRCClear           uint32 // integrity checksum over the entry payload
	FilenamesEncrypted bool
	Entries            []FileEntry
	Signature          []byte // origin signature; cleared by Normalize
}
