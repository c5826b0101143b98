package suppressor

import "github.com/jonocairns/swsh/internal/dsp/gate"

// WarmupBlocks is the number of silent hops run through the engine on
// session creation to pre-touch compute paths.
const WarmupBlocks = 20

// Processor buffers arbitrary-sized interleaved audio into an engine's
// fixed hop size, applies the lsnr-driven gate per hop, and drains
// gated output back out at whatever block size the caller pushed in,
// absorbing the model's latency by leaving undrained positions unchanged.
type Processor struct {
	engine   Engine
	channels int
	hopSize  int

	inputRings  [][]float32
	outputRings [][]float32

	gate     *gate.State
	lastLSNR float64
}

// NewProcessor wraps engine in the hop-buffering pipeline.
func NewProcessor(engine Engine) *Processor {
	channels := engine.Channels()
	p := &Processor{
		engine:      engine,
		channels:    channels,
		hopSize:     engine.HopSize(),
		inputRings:  make([][]float32, channels),
		outputRings: make([][]float32, channels),
		gate:        gate.New(),
	}
	return p
}

// Warmup runs n silent hops through the engine without touching the
// input/output rings or the gate, so first real audio pays no first-call
// allocation or JIT cost.
func (p *Processor) Warmup(n int) error {
	zero := make([][]float32, p.channels)
	for c := range zero {
		zero[c] = make([]float32, p.hopSize)
	}
	for i := 0; i < n; i++ {
		if _, err := p.engine.Process(zero); err != nil {
			return err
		}
	}
	return nil
}

// Process pushes an interleaved block of samples through the hop-buffered
// suppressor pipeline and returns an interleaved block of the same length.
// Output positions for which no processed hop has drained yet retain the
// corresponding input sample unchanged.
func (p *Processor) Process(interleaved []float32) ([]float32, error) {
	n := len(interleaved) / p.channels

	for c := 0; c < p.channels; c++ {
		for i := 0; i < n; i++ {
			p.inputRings[c] = append(p.inputRings[c], interleaved[i*p.channels+c])
		}
	}

	for p.allChannelsHaveHop() {
		noisy := make([][]float32, p.channels)
		for c := 0; c < p.channels; c++ {
			noisy[c] = append([]float32(nil), p.inputRings[c][:p.hopSize]...)
			p.inputRings[c] = p.inputRings[c][p.hopSize:]
		}

		result, err := p.engine.Process(noisy)
		if err != nil {
			return nil, err
		}
		p.lastLSNR = result.LSNRDB
		p.gate.Update(result.LSNRDB)

		for c := 0; c < p.channels; c++ {
			hop := result.Enhanced[c]
			p.gate.Apply(hop)
			p.outputRings[c] = append(p.outputRings[c], hop...)
		}
	}

	out := make([]float32, len(interleaved))
	copy(out, interleaved)
	for c := 0; c < p.channels; c++ {
		drain := len(p.outputRings[c])
		if drain > n {
			drain = n
		}
		for i := 0; i < drain; i++ {
			out[i*p.channels+c] = p.outputRings[c][i]
		}
		p.outputRings[c] = p.outputRings[c][drain:]
	}

	return out, nil
}

// LastLSNRDB returns the most recent hop's lsnr estimate.
func (p *Processor) LastLSNRDB() float64 { return p.lastLSNR }

// GateGain returns the gate's current smoothed gain.
func (p *Processor) GateGain() float64 { return p.gate.Gain }

func (p *Processor) allChannelsHaveHop() bool {
	for _, r := range p.inputRings {
		if len(r) < p.hopSize {
			return false
		}
	}
	return true
}

// Close releases the underlying engine's resources.
func (p *Processor) Close() error { return p.engine.Close() }
