// Package detect implements the three pattern detectors and the ring
// consolidator. Detectors read the shared graph and metrics and write
// independent ring lists; they have no data dependency on each other
// and the engine may run them in parallel.
//
// Every search bound lives in domain.DetectionConfig. Detectors never
// fail the pipeline: a traversal problem aborts only the branch being
// explored, and the detector returns whatever it found together with
// the reason it stopped early.
package detect

import (
	"math"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// Result is the outcome of one detector pass. Err is advisory: when
// set, Rings holds the partial results found before the detector
// stopped, and the pipeline proceeds with them.
type Result struct {
	Pattern domain.PatternType
	Rings   []domain.Ring
	Err     error
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
