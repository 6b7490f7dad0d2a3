package serverconn

import (
	"bytes"
	"encoding/gob"

	"github.com/udisondev/l2client/internal/wire"
)

// Codec turns a wire.Message into a framed payload and back. The real
// wire codec is explicitly out of scope (spec Non-goal: "the wire
// codec itself") — GobCodec is a stand-in that is good enough to drive
// the offline simulated backend and tests end to end. A production
// deployment would pair Transport with a Codec implementing the actual
// on-wire format.
type Codec interface {
	Encode(msg wire.Message) ([]byte, error)
	Decode(data []byte) (wire.Message, error)
}

// GobCodec implements Codec using encoding/gob.
type GobCodec struct{}

// Encode implements Codec.
func (GobCodec) Encode(msg wire.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (GobCodec) Decode(data []byte) (wire.Message, error) {
	var msg wire.Message
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return wire.Message{}, err
	}
	return msg, nil
}
