package game

import (
	"math"
	"math/rand/v2"
	"sync"
)

// TargetMargin keeps every band of the target inside the semicircle.
const TargetMargin = 5.0

type Extremes struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

var DefaultExtremes = []Extremes{
	{"Cold", "Hot"},
	{"Boring", "Exciting"},
	{"Common", "Rare"},
	{"Cheap", "Expensive"},
	{"Ugly", "Beautiful"},
	{"Weak", "Powerful"},
	{"Slow", "Fast"},
	{"Tiny", "Huge"},
	{"Ancient", "Modern"},
	{"Simple", "Complex"},
	{"Bad", "Good"},
	{"Quiet", "Loud"},
	{"Soft", "Hard"},
	{"Light", "Heavy"},
	{"Sad", "Happy"},
}

type Target struct {
	Center float64
	Width  float64
}

// RoundSetup draws everything random a new round needs.
type RoundSetup interface {
	Target() Target
	Extremes() Extremes
}

type randomSetup struct {
	mu       sync.Mutex
	rng      *rand.Rand
	bands    Bands
	extremes []Extremes
}

// NewRoundSetup draws targets for the given bands and extremes from the curated list.
func NewRoundSetup(rng *rand.Rand, bands Bands, extremes []Extremes) RoundSetup {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if len(extremes) == 0 {
		extremes = DefaultExtremes
	}
	return &randomSetup{rng: rng, bands: bands, extremes: extremes}
}

func (s *randomSetup) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return targetFrom(s.rng.Float64(), s.bands)
}

func (s *randomSetup) Extremes() Extremes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extremes[s.rng.IntN(len(s.extremes))]
}

// targetFrom maps u in [0,1) onto the centres that keep the whole target on screen.
func targetFrom(u float64, bands Bands) Target {
	half := bands.Extent()
	lo := MinPosition + half + TargetMargin
	hi := MaxPosition - half - TargetMargin
	center := math.Round((lo+u*(hi-lo))*10) / 10
	return Target{Center: center, Width: 2 * half}
}
