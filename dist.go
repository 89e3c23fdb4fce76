package qnet

// dist.go holds the samplers used for inter-arrival times, job sizes and
// monitor intervals.  Every sampler turns a single U01 draw into a sample
// by inverting the distribution function.

import (
	"fmt"
	"math"
	"strings"
)

// A Sampler draws one value of a distribution from a stream
type Sampler interface {
	Sample(rng RandSource) float64
	Mean() float64
}

// ExpSampler is the exponential distribution with the given rate
type ExpSampler struct {
	Rate float64
}

func (es ExpSampler) Sample(rng RandSource) float64 {
	return expRV(rng.RandU01(), es.Rate)
}

func (es ExpSampler) Mean() float64 {
	return 1.0 / es.Rate
}

// ConstSampler always returns Value, and draws nothing from the stream
type ConstSampler struct {
	Value float64
}

func (cs ConstSampler) Sample(rng RandSource) float64 {
	return cs.Value
}

func (cs ConstSampler) Mean() float64 {
	return cs.Value
}

// UniformSampler is uniform on [Min, Max)
type UniformSampler struct {
	Min, Max float64
}

func (us UniformSampler) Sample(rng RandSource) float64 {
	return us.Min + (us.Max-us.Min)*rng.RandU01()
}

func (us UniformSampler) Mean() float64 {
	return (us.Min + us.Max) / 2.0
}

// WeibullSampler has shape k and scale lambda
type WeibullSampler struct {
	Shape, Scale float64
}

func (ws WeibullSampler) Sample(rng RandSource) float64 {
	u := rng.RandU01()
	if u == 0.0 {
		u = math.SmallestNonzeroFloat64
	}
	return ws.Scale * math.Pow(-math.Log(u), 1.0/ws.Shape)
}

func (ws WeibullSampler) Mean() float64 {
	return ws.Scale * math.Gamma(1.0+1.0/ws.Shape)
}

// expRV returns a sample of a exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// A DistDesc describes a distribution in a network description.  Which fields
// matter depends on Dist:
//   - "exp", "expon", "exponential": Rate, or Mean when Rate is zero
//   - "const", "constant": Value, or Mean when Value is zero
//   - "uniform": Min and Max
//   - "weibull": Shape, and Scale or Mean
type DistDesc struct {
	Dist  string  `json:"dist" yaml:"dist"`
	Mean  float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Rate  float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Value float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Min   float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Shape float64 `json:"shape,omitempty" yaml:"shape,omitempty"`
	Scale float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// ExpDist describes an exponential distribution by its mean
func ExpDist(mean float64) DistDesc {
	return DistDesc{Dist: "exp", Mean: mean}
}

// ConstDist describes a constant
func ConstDist(value float64) DistDesc {
	return DistDesc{Dist: "const", Value: value}
}

// Sampler builds the Sampler the description names.  Every
// parameter it needs must be strictly positive.
func (dd DistDesc) Sampler() (Sampler, error) {
	switch strings.ToLower(dd.Dist) {
	case "exp", "expon", "exponential":
		rate := dd.Rate
		if rate == 0.0 && dd.Mean > 0.0 {
			rate = 1.0 / dd.Mean
		}
		if !(rate > 0.0) {
			return nil, fmt.Errorf("exponential distribution needs a positive rate or mean")
		}
		return ExpSampler{Rate: rate}, nil

	case "const", "constant":
		value := dd.Value
		if value == 0.0 {
			value = dd.Mean
		}
		if !(value > 0.0) {
			return nil, fmt.Errorf("constant distribution needs a positive value")
		}
		return ConstSampler{Value: value}, nil

	case "uniform":
		if dd.Min < 0.0 || !(dd.Max > dd.Min) {
			return nil, fmt.Errorf("uniform distribution needs 0 <= min < max, got [%g,%g)", dd.Min, dd.Max)
		}
		return UniformSampler{Min: dd.Min, Max: dd.Max}, nil

	case "weibull":
		if !(dd.Shape > 0.0) {
			return nil, fmt.Errorf("weibull distribution needs a positive shape")
		}
		scale := dd.Scale
		if scale == 0.0 && dd.Mean > 0.0 {
			scale = dd.Mean / math.Gamma(1.0+1.0/dd.Shape)
		}
		if !(scale > 0.0) {
			return nil, fmt.Errorf("weibull distribution needs a positive scale or mean")
		}
		return WeibullSampler{Shape: dd.Shape, Scale: scale}, nil
	}
	return nil, fmt.Errorf("unknown distribution %q", dd.Dist)
}
