package credentials

import (
	"encoding/binary"
	"errors"
)

// maxDeviceGUIDLen is the spec's bound on the device-GUID string.
const maxDeviceGUIDLen = 128

// ErrDeviceGUIDTooLong is returned when encoding a GUID longer than the
// spec's 128-character bound.
var ErrDeviceGUIDTooLong = errors.New("credentials: device GUID exceeds 128 characters")

// DeviceGUIDStore owns the device-GUID blob: same envelope as the
// credentials blob, payload is a 32-bit version (=1) followed by a
// UTF-8 string of at most 128 characters.
type DeviceGUIDStore struct {
	path string
}

// NewDeviceGUIDStore returns a store backed by the blob at path.
func NewDeviceGUIDStore(path string) *DeviceGUIDStore {
	return &DeviceGUIDStore{path: path}
}

// Load reads and unwraps the device GUID, returning ("", nil) if no
// blob has been written yet.
func (s *DeviceGUIDStore) Load() (string, error) {
	payload, err := readAtomic(s.path)
	if err != nil {
		return "", nil
	}
	if len(payload) < 4 {
		return "", ErrDecoding
	}
	version := binary.BigEndian.Uint32(payload[:4])
	if version != envelopeVersion {
		return "", ErrDecoding
	}
	return string(payload[4:]), nil
}

// Save writes guid, atomically rotating any existing blob.
func (s *DeviceGUIDStore) Save(guid string) error {
	if len([]rune(guid)) > maxDeviceGUIDLen {
		return ErrDeviceGUIDTooLong
	}

	payload := binary.BigEndian.AppendUint32(nil, envelopeVersion)
	payload = append(payload, guid...)
	return writeAtomic(s.path, payload)
}
