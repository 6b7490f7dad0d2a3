package logging

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode used for persisted events: canonical
// ordering and nanosecond-precision timestamps so a BufferedSink's flush
// output is reproducible byte-for-byte given the same input.
var encMode cbor.EncMode

// decMode is the matching decoder mode, tolerant of files written by an
// older build (unknown trailing fields are simply ignored by cbor).
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("logging: failed to build CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("logging: failed to build CBOR decoder mode: %v", err))
	}
}

// NewEventEncoder returns a CBOR encoder for Events that writes to w.
func NewEventEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewEventDecoder returns a CBOR decoder for Events that reads from r.
func NewEventDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
