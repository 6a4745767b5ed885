package sensor

import "math"

// Band names used by the registered profiles.
const (
	BandDataMask = "dataMask"

	BandS2Red = "B04"
	BandS2NIR = "B08"
	BandS2SCL = "SCL"

	BandARPSRed = "red"
	BandARPSNIR = "nir"

	BandS1VV = "VV"
	BandS1VH = "VH"
)

// Sentinel-2 scene classification codes that make a sample unusable.
var s2InvalidClasses = map[int]string{
	0:  "no data",
	1:  "saturated or defective",
	3:  "cloud shadow",
	8:  "cloud medium probability",
	9:  "cloud high probability",
	10: "thin cirrus",
	11: "snow or ice",
}

func dataPresent(s Sample) bool {
	return s[BandDataMask] == 1
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// S2L2A screens Sentinel-2 L2A samples with the scene classification layer
// and computes NDVI.
type S2L2A struct{}

func (S2L2A) ID() ID { return IDS2L2A }

func (S2L2A) RequiredBands() []string {
	return []string{BandS2Red, BandS2NIR, BandS2SCL, BandDataMask}
}

func (p S2L2A) IsValid(s Sample) bool {
	if !s.Has(p.RequiredBands()...) || !dataPresent(s) {
		return false
	}
	red, nir := s[BandS2Red], s[BandS2NIR]
	if !finite(red, nir) || red+nir == 0 {
		return false
	}
	_, masked := s2InvalidClasses[int(s[BandS2SCL])]
	return !masked
}

func (S2L2A) Index(s Sample) float64 {
	return normalizedDifference(s[BandS2NIR], s[BandS2Red])
}

// ARPS screens PlanetScope samples with the binary data mask and computes NDVI.
type ARPS struct{}

func (ARPS) ID() ID { return IDARPS }

func (ARPS) RequiredBands() []string {
	return []string{BandARPSRed, BandARPSNIR, BandDataMask}
}

func (p ARPS) IsValid(s Sample) bool {
	if !s.Has(p.RequiredBands()...) || !dataPresent(s) {
		return false
	}
	red, nir := s[BandARPSRed], s[BandARPSNIR]
	return finite(red, nir) && red+nir != 0
}

func (ARPS) Index(s Sample) float64 {
	return normalizedDifference(s[BandARPSNIR], s[BandARPSRed])
}

// S1GRD screens Sentinel-1 backscatter (linear power) with the data mask and
// computes the normalized polarization difference (VV-VH)/(VV+VH).
type S1GRD struct{}

func (S1GRD) ID() ID { return IDS1GRD }

func (S1GRD) RequiredBands() []string {
	return []string{BandS1VV, BandS1VH, BandDataMask}
}

func (p S1GRD) IsValid(s Sample) bool {
	if !s.Has(p.RequiredBands()...) || !dataPresent(s) {
		return false
	}
	vv, vh := s[BandS1VV], s[BandS1VH]
	return finite(vv, vh) && vv > 0 && vh > 0
}

func (S1GRD) Index(s Sample) float64 {
	return normalizedDifference(s[BandS1VV], s[BandS1VH])
}
