package qnet

// rng.go supplies the random number streams owned by generators, ports and monitors.
// Every component draws from its own stream, so that a run is reproducible
// and no component shares hidden state with another.

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/iti/rngstream"
)

// RandSource is the only thing a component needs from a random number generator.
// *rngstream.RngStream satisfies it.
type RandSource interface {
	RandU01() float64
}

// randStream adapts a seeded math/rand generator to RandSource
type randStream struct {
	rng *rand.Rand
}

func (rs *randStream) RandU01() float64 {
	return rs.rng.Float64()
}

// StreamFactory hands out one RandSource per named component.  The same name
// always returns the same stream.
//
// Without a seed the streams come from rngstream, named after the component, and
// so are reproducible given the order in which components are created.  With a
// seed each stream is a math/rand generator seeded with seed XOR fnv1a64(name),
// which makes a stream independent of creation order.
//
// Not safe for concurrent use.
type StreamFactory struct {
	seeded  bool
	seed    int64
	streams map[string]RandSource
}

// CreateStreamFactory is a constructor.  A nil seed selects rngstream streams;
// a negative seed is an error.
func CreateStreamFactory(seed *int64) (*StreamFactory, error) {
	sf := new(StreamFactory)
	sf.streams = make(map[string]RandSource)
	if seed != nil {
		if *seed < 0 {
			return nil, fmt.Errorf("seed must be a non-negative integer or omitted, not %d", *seed)
		}
		sf.seeded = true
		sf.seed = *seed
	}
	return sf, nil
}

// Seeded reports whether streams are derived from an explicit seed
func (sf *StreamFactory) Seeded() bool {
	return sf.seeded
}

// Stream returns the stream for the named component, creating it on first use
func (sf *StreamFactory) Stream(name string) RandSource {
	if rs, present := sf.streams[name]; present {
		return rs
	}
	var rs RandSource
	if sf.seeded {
		rs = &randStream{rng: rand.New(rand.NewSource(sf.seed ^ fnv1a64(name)))}
	} else {
		rs = rngstream.New(name)
	}
	sf.streams[name] = rs
	return rs
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
