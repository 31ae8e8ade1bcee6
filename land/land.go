package land

import (
	"fmt"
	"math"
	"os"

	"github.com/a-bouts/helm/latlon"
)

// Land is a forbidden-region mask: one bit per raster cell, set where the
// boat must not be (shorelines, exclusion zones). The raster covers the
// whole globe at 30 arc seconds.
type Land struct {
	lat0 float64
	latN float64
	lon0 float64
	lonN float64
	step float64
	data []byte
}

// Init loads a mask file.
func Init(path string) (*Land, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("land: read %s: %w", path, err)
	}
	return &Land{
		lat0: -90.0,
		latN: 90.0,
		lon0: -180.0,
		lonN: 180.00 - 360.0/43200.0,
		step: 360.0 / 43200.0,
		data: b}, nil
}

// Inside reports whether the location falls in a forbidden cell.
func (l *Land) Inside(loc latlon.Location) bool {
	return l.isLand(loc.LatDegrees(), loc.LonDegrees())
}

func (l *Land) isLand(lat float64, lon float64) bool {
	i := int(math.Round(lat / l.step))
	j := int(math.Round(lon / l.step))

	i0 := int(l.lat0 / l.step)
	j0 := int(l.lon0 / l.step)
	jN := int(l.lonN / l.step)

	di := i - i0
	dj := j - j0
	nj := jN - j0 + 1

	p := di*nj + dj

	pB := p / 8
	pb := uint(p % 8)

	if pB < 0 || pB >= len(l.data) {
		return false
	}

	return ((l.data[pB] >> (7 - pb)) & 0x01) == 0x01
}
