package sensor

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/ph.report/internal/refdata"
)

// Result is the outcome of one acquisition session, delivered to the
// request's callback exactly once.
type Result struct {
	ID      uuid.UUID `json:"id"`
	Table   string    `json:"table"`
	Label   string    `json:"label,omitempty"`
	Matched bool      `json:"matched"`
	Angle   float64   `json:"angle_radians,omitempty"`
	Sample  Reading   `json:"sample"`
	At      time.Time `json:"at"`
	Err     error     `json:"-"`
}

// Classify returns the reference entry whose RGB vector makes the smallest
// angle with the sample vector, along with that angle in radians.
//
// Matching on angle rather than Euclidean distance makes the result
// invariant to absolute illumination intensity: only the RGB ratio decides.
// Ties resolve to the earliest table entry because a strictly smaller angle
// is required to displace the current best.
//
// The second return is false when the sample is empty (all channels zero),
// meaning no usable sample was acquired this rotation.
func Classify(sample Reading, table *refdata.Table) (label string, angle float64, ok bool) {
	if sample.Empty() {
		return "", 0, false
	}

	s := sample.Hertz[:]
	sLen := floats.Norm(s, 2)

	minAngle := math.Inf(1)
	found := false
	for _, e := range table.Entries {
		v := e.Hertz[:]
		vLen := floats.Norm(v, 2)
		if vLen == 0 {
			// Zero-magnitude rows are rejected at load time; skip defensively
			// rather than divide by zero if one slips through.
			continue
		}

		cosTheta := floats.Dot(s, v) / (sLen * vLen)
		// Clamp rounding spill so acos stays defined for exact matches.
		if cosTheta > 1 {
			cosTheta = 1
		} else if cosTheta < -1 {
			cosTheta = -1
		}
		theta := math.Acos(cosTheta)

		if theta < minAngle {
			minAngle = theta
			label = e.Label
			found = true
		}
	}

	if !found {
		return "", 0, false
	}
	return label, minAngle, true
}
