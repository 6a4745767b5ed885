// Package sensor describes the data sources a monitor can consume. Each
// source is a Profile: the bands it needs, how to screen out unusable
// samples (clouds, no-data) and how to turn a sample into a vegetation or
// backscatter index. The set of profiles is closed and registered at
// compile time.
package sensor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownProfile is returned when a data source identifier is not registered.
var ErrUnknownProfile = errors.New("unknown sensor profile")

// ID identifies a registered sensor profile.
type ID string

const (
	// IDS2L2A is Sentinel-2 level 2A surface reflectance
	IDS2L2A ID = "S2L2A"

	// IDARPS is PlanetScope analysis-ready surface reflectance
	IDARPS ID = "ARPS"

	// IDS1GRD is Sentinel-1 ground range detected backscatter
	IDS1GRD ID = "S1GRD"
)

// Sample holds the raw band values of one acquisition at one pixel.
type Sample map[string]float64

// Has reports whether every named band is present.
func (s Sample) Has(bands ...string) bool {
	for _, b := range bands {
		if _, ok := s[b]; !ok {
			return false
		}
	}
	return true
}

// Acquisition is one observation of a pixel by a sensor.
type Acquisition struct {
	Time   time.Time `json:"time" msgpack:"time"`
	Sensor ID        `json:"sensor,omitempty" msgpack:"sensor,omitempty"`
	Bands  Sample    `json:"bands" msgpack:"bands"`
}

// Usable reports whether a can be scored with p: it must come from the same
// source (when the source is recorded) and pass the profile's screening.
func Usable(p Profile, a Acquisition) bool {
	if a.Sensor != "" && a.Sensor != p.ID() {
		return false
	}
	return p.IsValid(a.Bands)
}

// Profile is the capability set fitting and monitoring depend on.
// Index must only be called on samples for which IsValid returned true.
type Profile interface {
	ID() ID
	RequiredBands() []string
	IsValid(s Sample) bool
	Index(s Sample) float64
}

var registry = [...]Profile{
	S2L2A{},
	ARPS{},
	S1GRD{},
}

// All returns the registered profiles in a fixed order.
func All() []Profile {
	out := make([]Profile, len(registry))
	copy(out, registry[:])
	return out
}

// Lookup returns the registered profile for id.
func Lookup(id ID) (Profile, error) {
	for _, p := range registry {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, id)
}

// ParseID converts configuration text (case-insensitive) to a profile ID.
func ParseID(s string) (ID, error) {
	for _, p := range registry {
		if strings.EqualFold(string(p.ID()), strings.TrimSpace(s)) {
			return p.ID(), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProfile, s)
}

// normalizedDifference returns (a-b)/(a+b). Callers guarantee a+b != 0.
func normalizedDifference(a, b float64) float64 {
	return (a - b) / (a + b)
}
