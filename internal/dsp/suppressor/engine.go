// Package suppressor implements the neural noise-suppression wrapper: a
// fixed-hop-size model invoked through a small Engine contract, fed by a
// per-channel hop-buffering Processor so the session above it can push
// and pull arbitrary block sizes.
package suppressor

// Result is one inference call's output: the enhanced hop per channel and
// the model's local speech-to-noise ratio estimate in dB.
type Result struct {
	Enhanced [][]float32
	LSNRDB   float64
}

// Engine is the contract a concrete model binding implements. noisy and
// Enhanced are always shaped [channels][HopSize()].
type Engine interface {
	HopSize() int
	Channels() int
	Process(noisy [][]float32) (Result, error)
	Reset() error
	Close() error
}
