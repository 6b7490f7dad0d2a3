package resources

import (
	"encoding/binary"
	"hash/fnv"
)

// appendChecksum/verifyChecksum/stripChecksum guard the on-disk cache
// against partial writes and bit-rot. This is a cache integrity detail
// local to this package, not the spec-mandated credentials envelope
// (internal/credentials), so a plain stdlib FNV-1a hash is the
// appropriate tool — no need to carry MurmurHash2 outside the one place
// the spec actually requires it.
func appendChecksum(blob []byte) []byte {
	h := fnv.New32a()
	h.Write(blob)
	return binary.BigEndian.AppendUint32(blob, h.Sum32())
}

func verifyChecksum(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	blob, sum := data[:len(data)-4], binary.BigEndian.Uint32(data[len(data)-4:])
	h := fnv.New32a()
	h.Write(blob)
	return h.Sum32() == sum
}

func stripChecksum(data []byte) []byte {
	return data[:len(data)-4]
}
