package state

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
)

// codecVersion prefixes every encoded blob so the layout can evolve.
const codecVersion byte = 1

// Encode serializes a pixel record as a versioned, snappy-compressed
// MessagePack blob. Invalid records are refused.
func Encode(p *Pixel) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("error encoding pixel %s: %w", p.ID, err)
	}
	out := make([]byte, 0, 1+snappy.MaxEncodedLen(len(raw)))
	out = append(out, codecVersion)
	return append(out, snappy.Encode(nil, raw)...), nil
}

// Decode reverses Encode. Any failure, including a decoded record that does
// not validate, is reported as ErrCorruptState.
func Decode(blob []byte) (*Pixel, error) {
	if len(blob) < 2 {
		return nil, corrupt("blob of %d bytes is too short", len(blob))
	}
	if blob[0] != codecVersion {
		return nil, corrupt("unsupported codec version %d", blob[0])
	}
	raw, err := snappy.Decode(nil, blob[1:])
	if err != nil {
		return nil, corrupt("snappy: %v", err)
	}
	var p Pixel
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return nil, corrupt("msgpack: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
