// Package credentials owns the player's login method: loading it from
// disk, handing it to the supervisor on each (re)connect, and persisting
// updates the server sends back (e.g. a freshly minted guest account).
//
// Credential persistence file format is explicitly out of scope per the
// spec's Non-goals list — what IS specified is the envelope the spec
// mandates for the two blobs this package owns (see envelope.go) and the
// single-writer, async load/select/update contract the supervisor
// depends on.
package credentials

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MethodKind discriminates LoginMethod variants.
type MethodKind uint8

const (
	MethodNewGuestAccount MethodKind = iota
	MethodGuestAccount
	MethodSocialAuth
)

func (k MethodKind) String() string {
	switch k {
	case MethodNewGuestAccount:
		return "NewGuestAccount"
	case MethodGuestAccount:
		return "GuestAccount"
	case MethodSocialAuth:
		return "SocialAuth"
	default:
		return "Unknown"
	}
}

// LoginMethod is a tagged variant: only the fields matching Kind are
// meaningful.
type LoginMethod struct {
	Kind MethodKind

	// GuestAccount / SocialAuth
	DeviceID     string
	AuthToken    string
	PlayerIDHint string

	// SocialAuth
	Claim string
}

// GuestCredentials is the credential service's persisted guest identity.
type GuestCredentials struct {
	DeviceID  string
	AuthToken string
	PlayerID  string
}

// ErrNotInitialized is returned by Select/Update before Start completes.
var ErrNotInitialized = errors.New("credentials: service not initialized")

// Service owns the single writer of the credential blob on disk and
// resolves the active LoginMethod afresh on every call to Select, per
// invariant 5 ("initialized before any login is attempted; resolved
// afresh at every reconnect").
type Service struct {
	path string

	mu       sync.Mutex
	guest    *GuestCredentials
	ready    bool
	readyErr error

	// newDeviceID is generated once and reused across reconnect attempts
	// so a new-guest-account login always carries the same device
	// identity, even if the server hasn't confirmed the account yet.
	newDeviceID string
}

// NewService returns a Service backed by the credentials blob at path.
func NewService(path string) *Service {
	return &Service{path: path}
}

// Start loads any persisted guest credentials. It must complete (or be
// awaited via its returned error) before the supervisor attempts a
// login, per invariant 5.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := readAtomic(s.path)
	if err != nil {
		// Missing or unreadable file means "no guest credentials yet",
		// not a service startup failure.
		s.ready = true
		return nil
	}

	creds, err := decodeGuestCredentials(payload)
	if err != nil {
		s.ready = true
		s.readyErr = nil
		return nil
	}

	s.guest = creds
	s.ready = true
	return nil
}

// Select resolves the current LoginMethod. Called afresh on every
// reconnect attempt so a credential update between attempts is always
// observed.
func (s *Service) Select(ctx context.Context) (LoginMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return LoginMethod{}, ErrNotInitialized
	}

	if s.guest == nil {
		if s.newDeviceID == "" {
			s.newDeviceID = uuid.NewString()
		}
		return LoginMethod{Kind: MethodNewGuestAccount, DeviceID: s.newDeviceID}, nil
	}
	return LoginMethod{
		Kind:         MethodGuestAccount,
		DeviceID:     s.guest.DeviceID,
		AuthToken:    s.guest.AuthToken,
		PlayerIDHint: s.guest.PlayerID,
	}, nil
}

// Update persists newly received guest credentials (typically from a
// GuestAccountCreatedInfo transport message) and makes them the active
// method for subsequent Select calls. Returns a ClientSideConnectionError
// equivalent (wrapped I/O error) if the write fails, per §7's
// "cannot-write-credentials" terminal case.
func (s *Service) Update(ctx context.Context, creds GuestCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := encodeGuestCredentials(creds)
	if err := writeAtomic(s.path, payload); err != nil {
		return fmt.Errorf("credentials: write failed: %w", err)
	}

	s.guest = &creds
	return nil
}

func encodeGuestCredentials(c GuestCredentials) []byte {
	return encodeStrings(c.DeviceID, c.AuthToken, c.PlayerID)
}

func decodeGuestCredentials(payload []byte) (*GuestCredentials, error) {
	parts, err := decodeStrings(payload, 3)
	if err != nil {
		return nil, err
	}
	return &GuestCredentials{DeviceID: parts[0], AuthToken: parts[1], PlayerID: parts[2]}, nil
}

// encodeStrings/decodeStrings give the credentials blob a stable,
// length-prefixed multi-field payload inside the spec's envelope —
// the envelope itself only specifies "payload", leaving its internal
// shape to the owning collaborator (credential persistence format is a
// Non-goal; this choice only needs to round-trip with itself).
func encodeStrings(fields ...string) []byte {
	var buf []byte
	for _, f := range fields {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(f)))
		buf = append(buf, f...)
	}
	return buf
}

func decodeStrings(data []byte, n int) ([]string, error) {
	out := make([]string, 0, n)
	for range n {
		if len(data) < 4 {
			return nil, ErrDecoding
		}
		l := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < l {
			return nil, ErrDecoding
		}
		out = append(out, string(data[:l]))
		data = data[l:]
	}
	return out, nil
}
