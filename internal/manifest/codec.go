package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/detiam/DepotManifestGen/internal/util"
)

// Section magics of the manifest container format. A serialized manifest
// is a sequence of magic-framed sections (payload, metadata, signature)
// followed by the end-of-manifest magic.
const (
	payloadMagic   uint32 = 0x71F617D0
	metadataMagic  uint32 = 0x1F4812BE
	signatureMagic uint32 = 0x1B81B817
	endMagic       uint32 = 0x32C415AB
)

// ChecksumPayload computes the integrity checksum stored in the manifest
// metadata: CRC32 over the 4-byte little-endian payload length followed
// by the payload bytes.
func ChecksumPayload(payload []byte) uint32 {
	var pfx [4]byte
	binary.LittleEndian.PutUint32(pfx[:], uint32(len(payload)))
	crc := crc32.NewIEEE()
	crc.Write(pfx[:])
	crc.Write(payload)
	return crc.Sum32()
}

// EncodePayload serializes the entry list to its canonical byte layout.
// Encoding is purely positional little-endian, so equal entry lists
// always produce identical bytes.
func EncodePayload(entries []FileEntry) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	var scratch [8]byte
	putU32 := func(v uint32) {
		le.PutUint32(scratch[:4], v)
		buf.Write(scratch[:4])
	}
	putU64 := func(v uint64) {
		le.PutUint64(scratch[:8], v)
		buf.Write(scratch[:8])
	}

	putU32(uint32(len(entries)))
	for _, e := range entries {
		putU32(uint32(len(e.Path)))
		buf.WriteString(e.Path)
		putU64(e.Size)
		putU32(e.Flags)
		buf.Write(e.SHAContent[:])
		putU32(uint32(len(e.Chunks)))
		for _, c := range e.Chunks {
			buf.Write(c.SHA[:])
			putU32(c.CRC)
			putU64(c.Offset)
			putU32(c.UncompressedSize)
			putU32(c.CompressedSize)
		}
	}
	return buf.Bytes()
}

// Minimum serialized sizes of one entry and one chunk. Counts claimed
// by the payload header are untrusted; preallocation is bounded by how
// many records the remaining bytes could possibly hold.
const (
	minEntrySize = 4 + 8 + 4 + 20 + 4
	minChunkSize = 20 + 4 + 8 + 4 + 4
)

func boundedCap(count uint32, remaining, minSize int) int {
	if m := remaining / minSize; uint64(count) > uint64(m) {
		return m
	}
	return int(count)
}

// DecodePayload parses bytes produced by EncodePayload.
func DecodePayload(data []byte) ([]FileEntry, error) {
	r := &payloadReader{data: data}

	count := r.u32()
	entries := make([]FileEntry, 0, boundedCap(count, len(data)-r.off, minEntrySize))
	for i := uint32(0); i < count && r.err == nil; i++ {
		var e FileEntry
		e.Path = r.str(r.u32())
		e.Size = r.u64()
		e.Flags = r.u32()
		r.sha(&e.SHAContent)
		chunks := r.u32()
		e.Chunks = make([]Chunk, 0, boundedCap(chunks, len(data)-r.off, minChunkSize))
		for j := uint32(0); j < chunks && r.err == nil; j++ {
			var c Chunk
			r.sha(&c.SHA)
			c.CRC = r.u32()
			c.Offset = r.u64()
			c.UncompressedSize = r.u32()
			c.CompressedSize = r.u32()
			e.Chunks = append(e.Chunks, c)
		}
		entries = append(entries, e)
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: truncated payload", util.ErrManifestInvalid)
	}
	if r.off != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing payload bytes", util.ErrManifestInvalid, len(r.data)-r.off)
	}
	return entries, nil
}

// payloadReader is a cursor over payload bytes that latches the first
// out-of-bounds read instead of panicking.
type payloadReader struct {
	data []byte
	off  int
	err  error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil || n < 0 || r.off+n > len(r.data) {
		if r.err == nil {
			r.err = io.ErrUnexpectedEOF
		}
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *payloadReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *payloadReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *payloadReader) str(n uint32) string {
	b := r.take(int(n))
	return string(b)
}

func (r *payloadReader) sha(dst *[20]byte) {
	b := r.take(20)
	if b != nil {
		copy(dst[:], b)
	}
}

const metadataLen = 4 + 4 + 8 + 8 + 8 + 8 + 4 + 4 + 1

func encodeMetadata(m *Manifest) []byte {
	buf := make([]byte, metadataLen)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], m.AppID)
	le.PutUint32(buf[4:], m.DepotID)
	le.PutUint64(buf[8:], m.GID)
	le.PutUint64(buf[16:], m.CreationTime)
	le.PutUint64(buf[24:], m.OriginalSize)
	le.PutUint64(buf[32:], m.CompressedSize)
	le.PutUint32(buf[40:], m.UniqueChunks)
	le.PutUint32(buf[44:], m.CRCClear)
	if m.FilenamesEncrypted {
		buf[48] = 1
	}
	return buf
}

func decodeMetadata(data []byte, m *Manifest) error {
	if len(data) != metadataLen {
		return fmt.Errorf("%w: metadata section is %d bytes, want %d", util.ErrManifestInvalid, len(data), metadataLen)
	}
	le := binary.LittleEndian
	m.AppID = le.Uint32(data[0:])
	m.DepotID = le.Uint32(data[4:])
	m.GID = le.Uint64(data[8:])
	m.CreationTime = le.Uint64(data[16:])
	m.OriginalSize = le.Uint64(data[24:])
	m.CompressedSize = le.Uint64(data[32:])
	m.UniqueChunks = le.Uint32(data[40:])
	m.CRCClear = le.Uint32(data[44:])
	m.FilenamesEncrypted = data[48] == 1
	return nil
}

// Serialize produces the full manifest container: payload, metadata and
// signature sections, each magic-framed, terminated by the end magic.
func Serialize(m *Manifest) []byte {
	payload := EncodePayload(m.Entries)
	meta := encodeMetadata(m)

	var buf bytes.Buffer
	writeSection(&buf, payloadMagic, payload)
	writeSection(&buf, metadataMagic, meta)
	writeSection(&buf, signatureMagic, m.Signature)

	var end [4]byte
	binary.LittleEndian.PutUint32(end[:], endMagic)
	buf.Write(end[:])
	return buf.Bytes()
}

func writeSection(buf *bytes.Buffer, magic uint32, data []byte) {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], magic)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(data)))
	buf.Write(hdr[:])
	buf.Write(data)
}

// Deserialize parses a serialized manifest container and verifies the
// stored integrity checksum against the payload.
func Deserialize(data []byte) (*Manifest, error) {
	var m Manifest
	var payload []byte
	sawPayload, sawMeta := false, false

	off := 0
	for {
		if off+4 > len(data) {
			return nil, fmt.Errorf("%w: missing end-of-manifest marker", util.ErrManifestInvalid)
		}
		magic := binary.LittleEndian.Uint32(data[off:])
		off += 4
		if magic == endMagic {
			break
		}
		if off+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated section header", util.ErrManifestInvalid)
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if off+n > len(data) {
			return nil, fmt.Errorf("%w: truncated section body", util.ErrManifestInvalid)
		}
		body := data[off : off+n]
		off += n

		switch magic {
		case payloadMagic:
			payload = body
			sawPayload = true
		case metadataMagic:
			if err := decodeMetadata(body, &m); err != nil {
				return nil, err
			}
			sawMeta = true
		case signatureMagic:
			if n > 0 {
				m.Signature = append([]byte(nil), body...)
			}
		default:
			return nil, fmt.Errorf("%w: unknown section magic %#x", util.ErrManifestInvalid, magic)
		}
	}

	if !sawPayload || !sawMeta {
		return nil, fmt.Errorf("%w: payload or metadata section missing", util.ErrManifestInvalid)
	}
	if got := ChecksumPayload(payload); got != m.CRCClear {
		return nil, fmt.Errorf("%w: checksum mismatch, stored %#x computed %#x", util.ErrManifestInvalid, m.CRCClear, got)
	}

	entries, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	m.Entries = entries
	return &m, nil
}
