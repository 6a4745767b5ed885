// Package scenes reads batches of new acquisitions from a spool directory.
// A batch carries the scenes of every pixel of one feature of one monitor.
package scenes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/disturbancemonitor/internal/sensor"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported batch format")
	ErrInvalidBatch      = errors.New("invalid batch")
)

// Format is the encoding of a batch file.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".msgpack", ".mpk":
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

// PixelSeries is the new acquisitions of one pixel.
type PixelSeries struct {
	ID     string               `json:"id" msgpack:"id"`
	Scenes []sensor.Acquisition `json:"scenes" msgpack:"scenes"`
}

// Batch is the unit of work of a monitoring run.
type Batch struct {
	Monitor string        `json:"monitor" msgpack:"monitor"`
	Feature string        `json:"feature" msgpack:"feature"`
	Pixels  []PixelSeries `json:"pixels" msgpack:"pixels"`

	// Source is the file the batch was read from, if any.
	Source string `json:"-" msgpack:"-"`
}

// Validate checks that the batch names its monitor and that pixel ids are
// present and unique.
func (b *Batch) Validate() error {
	if b.Monitor == "" {
		return fmt.Errorf("%w: no monitor name", ErrInvalidBatch)
	}
	seen := make(map[string]struct{}, len(b.Pixels))
	for i, p := range b.Pixels {
		if p.ID == "" {
			return fmt.Errorf("%w: pixel %d has no id", ErrInvalidBatch, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate pixel id %q", ErrInvalidBatch, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Span returns the earliest and latest scene time in the batch. Both are zero
// for a batch without scenes.
func (b *Batch) Span() (from, to time.Time) {
	for _, p := range b.Pixels {
		for _, s := range p.Scenes {
			if from.IsZero() || s.Time.Before(from) {
				from = s.Time
			}
			if s.Time.After(to) {
				to = s.Time
			}
		}
	}
	return from, to
}

// SceneCount returns the number of scenes across all pixels.
func (b *Batch) SceneCount() int {
	n := 0
	for _, p := range b.Pixels {
		n += len(p.Scenes)
	}
	return n
}

// Decode reads a batch in format f and validates it.
func Decode(r io.Reader, f Format) (*Batch, error) {
	var b Batch
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&b); err != nil {
			return nil, fmt.Errorf("error decoding JSON batch: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&b); err != nil {
			return nil, fmt.Errorf("error decoding msgpack batch: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Encode writes b in format f.
func Encode(w io.Writer, b *Batch, f Format) error {
	switch f {
	case FormatJSON:
		return json.NewEncoder(w).Encode(b)
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(b)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}
