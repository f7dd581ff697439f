package store

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// docID deterministically derives a document's row id from its path, so
// re-indexing the same path always produces the same id and upserts are
// naturally idempotent.
func docID(path string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return h.Sum64()
}

// lineID deterministically derives a line embedding's row id from its
// document path and 0-based line number.
func lineID(path string, lineNumber uint32) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	var lineBytes [4]byte
	binary.LittleEndian.PutUint32(lineBytes[:], lineNumber)
	_, _ = h.Write(lineBytes[:])
	return h.Sum64()
}

// encodeVector packs a float32 vector into a little-endian byte slice for
// BLOB storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian byte slice into a float32 vector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
