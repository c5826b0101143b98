package suppressor

// Level selects one of the four suppression-strength tiers a voice-filter
// session can request.
type Level string

const (
	LevelLow        Level = "low"
	LevelBalanced   Level = "balanced"
	LevelHigh       Level = "high"
	LevelAggressive Level = "aggressive"
)

// Tuning holds the five knobs the neural suppression model is configured
// with for a given Level.
type Tuning struct {
	PostFilterBeta float32
	AttenLimDB     float32
	MinDBThresh    float32
	MaxDBERBThresh float32
	MaxDBDFThresh  float32
}

// tuningTable carries the per-tier defaults forward from the original
// implementation's suppression-level table (DeepFilterNet-derived).
var tuningTable = map[Level]Tuning{
	LevelLow: {
		PostFilterBeta: 0.0,
		AttenLimDB:     24.0,
		MinDBThresh:    -15.0,
		MaxDBERBThresh: 35.0,
		MaxDBDFThresh:  20.0,
	},
	LevelBalanced: {
		PostFilterBeta: 0.01,
		AttenLimDB:     40.0,
		MinDBThresh:    -15.0,
		MaxDBERBThresh: 33.0,
		MaxDBDFThresh:  18.0,
	},
	LevelHigh: {
		PostFilterBeta: 0.02,
		AttenLimDB:     55.0,
		MinDBThresh:    -18.0,
		MaxDBERBThresh: 30.0,
		MaxDBDFThresh:  15.0,
	},
	LevelAggressive: {
		PostFilterBeta: 0.03,
		AttenLimDB:     70.0,
		MinDBThresh:    -20.0,
		MaxDBERBThresh: 28.0,
		MaxDBDFThresh:  12.0,
	},
}

// TuningFor returns the knob set for level, defaulting to LevelBalanced for
// an unrecognized value.
func TuningFor(level Level) Tuning {
	if t, ok := tuningTable[level]; ok {
		return t
	}
	return tuningTable[LevelBalanced]
}

// ValidLevel reports whether level is one of the four known tiers.
func ValidLevel(level Level) bool {
	_, ok := tuningTable[level]
	return ok
}
