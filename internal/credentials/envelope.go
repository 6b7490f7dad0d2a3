package credentials

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
)

// envelopeVersion is the only blob format version this build writes or
// reads.
const envelopeVersion uint32 = 1

var (
	magicHead = [4]byte{'H', 'E', 'A', 'D'}
	magicTail = [4]byte{'T', 'A', 'I', 'L'}
)

// ErrDecoding is returned by unwrap when any part of the envelope
// (magic, version, length, payload, checksum, trailer) fails to verify.
var ErrDecoding = errors.New("credentials: envelope decoding error")

// wrap builds the on-disk envelope for payload: magic HEAD, 32-bit
// version, 32-bit length, payload, 32-bit MurmurHash2 checksum of
// payload, trailer TAIL.
func wrap(payload []byte) []byte {
	buf := make([]byte, 0, 4+4+4+len(payload)+4+4)
	buf = append(buf, magicHead[:]...)
	buf = binary.BigEndian.AppendUint32(buf, envelopeVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint32(buf, murmurHash2(payload, 0))
	buf = append(buf, magicTail[:]...)
	return buf
}

// unwrap verifies and extracts the payload from an enveloped blob.
func unwrap(blob []byte) ([]byte, error) {
	const headerLen = 4 + 4 + 4
	const trailerLen = 4 + 4
	if len(blob) < headerLen+trailerLen {
		return nil, ErrDecoding
	}

	if [4]byte(blob[0:4]) != magicHead {
		return nil, ErrDecoding
	}
	version := binary.BigEndian.Uint32(blob[4:8])
	if version != envelopeVersion {
		return nil, ErrDecoding
	}
	length := binary.BigEndian.Uint32(blob[8:12])

	want := int(headerLen) + int(length) + trailerLen
	if want < 0 || len(blob) != want {
		return nil, ErrDecoding
	}

	payload := blob[headerLen : headerLen+int(length)]
	checksum := binary.BigEndian.Uint32(blob[headerLen+int(length) : headerLen+int(length)+4])
	if checksum != murmurHash2(payload, 0) {
		return nil, ErrDecoding
	}
	if [4]byte(blob[len(blob)-4:]) != magicTail {
		return nil, ErrDecoding
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// writeAtomic writes the enveloped payload to path using the spec's
// rotation: write `.new`, rotate any existing primary to `.old`, rename
// `.new` to primary, then delete `.old`. A crash between the rename and
// the `.old` delete still leaves a valid primary file, satisfying read
// idempotence.
func writeAtomic(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	newPath := path + ".new"
	oldPath := path + ".old"

	if err := os.WriteFile(newPath, wrap(payload), 0o644); err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, oldPath); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.Rename(newPath, path); err != nil {
		return err
	}

	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// readAtomic reads and unwraps the blob at path, falling back to the
// `.old` rotation file if the primary is missing or unreadable — this
// covers the window between a crash-interrupted rename and the `.old`
// delete.
func readAtomic(path string) ([]byte, error) {
	payload, err := readEnvelopeFile(path)
	if err == nil {
		return payload, nil
	}

	return readEnvelopeFile(path + ".old")
}

func readEnvelopeFile(path string) ([]byte, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return unwrap(blob)
}
