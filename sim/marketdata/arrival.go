package marketdata

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ArrivalSpec selects the inter-arrival process of synthetic market events.
type ArrivalSpec struct {
	Process string   `yaml:"process"` // poisson (default), gamma or weibull
	Rate    float64  `yaml:"rate"`    // events per second
	CV      *float64 `yaml:"cv,omitempty"`
}

// ArrivalSampler generates inter-arrival times.
type ArrivalSampler interface {
	// SampleIAT returns the next inter-arrival time in nanoseconds, always >= 1.
	SampleIAT(rng *rand.Rand) int64
}

// PoissonSampler draws exponential gaps (CV=1).
type PoissonSampler struct {
	ratePerNs float64
}

func (s *PoissonSampler) SampleIAT(rng *rand.Rand) int64 {
	return atLeastOne(rng.ExpFloat64() / s.ratePerNs)
}

// GammaSampler draws Gamma gaps; CV > 1 gives bursty order flow.
type GammaSampler struct {
	shape float64 // 1/CV²
	scale float64 // mean·CV², ns
}

func (s *GammaSampler) SampleIAT(rng *rand.Rand) int64 {
	return atLeastOne(gammaRand(rng, s.shape, s.scale))
}

// gammaRand samples Gamma(shape, scale): Marsaglia-Tsang for shape >= 1,
// boosted through Gamma(shape+1)·U^(1/shape) below that.
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1.0 {
		u := rng.Float64()
		return gammaRand(rng, shape+1.0, scale) * math.Pow(u, 1.0/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// WeibullSampler draws Weibull gaps by inverse CDF.
type WeibullSampler struct {
	shape float64 // k
	scale float64 // λ, ns
}

func (s *WeibullSampler) SampleIAT(rng *rand.Rand) int64 {
	u := rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	return atLeastOne(s.scale * math.Pow(-math.Log(u), 1.0/s.shape))
}

func atLeastOne(ns float64) int64 {
	if ns < 1 || math.IsNaN(ns) {
		return 1
	}
	if ns > math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(ns)
}

// NewArrivalSampler builds a sampler for spec. Unknown processes fall back to Poisson.
func NewArrivalSampler(spec ArrivalSpec) ArrivalSampler {
	ratePerNs := spec.Rate / 1e9
	if ratePerNs < 1e-18 {
		ratePerNs = 1e-18
	}
	cv := 1.0
	if spec.CV != nil && *spec.CV > 0 {
		cv = *spec.CV
	}
	mean := 1.0 / ratePerNs
	switch spec.Process {
	case "gamma":
		shape := 1.0 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("gamma shape %.4f (CV=%.1f) is too small; using poisson arrivals", shape, cv)
			return &PoissonSampler{ratePerNs: ratePerNs}
		}
		return &GammaSampler{shape: shape, scale: mean * cv * cv}
	case "weibull":
		k := weibullShapeFromCV(cv)
		return &WeibullSampler{shape: k, scale: mean / math.Gamma(1.0+1.0/k)}
	default:
		return &PoissonSampler{ratePerNs: ratePerNs}
	}
}

// weibullShapeFromCV bisects k in [0.1, 100] so that the Weibull CV matches target.
func weibullShapeFromCV(target float64) float64 {
	lo, hi := 0.1, 100.0
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2.0
		cv := weibullCV(mid)
		if math.Abs(cv-target) < 0.001 {
			return mid
		}
		// CV decreases in k
		if cv > target {
			lo = mid
		} else {
			hi = mid
		}
	}
	logrus.Warnf("weibull shape did not converge for CV=%.3f; using k=%.3f", target, (lo+hi)/2.0)
	return (lo + hi) / 2.0
}

func weibullCV(k float64) float64 {
	g1 := math.Gamma(1.0 + 1.0/k)
	g2 := math.Gamma(1.0 + 2.0/k)
	return math.Sqrt(g2/(g1*g1) - 1.0)
}

// SizeSpec is a clamped Gaussian order size in lots.
type SizeSpec struct {
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stddev"`
	Min    int     `yaml:"min"`
	Max    int     `yaml:"max"`
}

// SizeSampler draws clamped Gaussian lot counts (>= 1).
type SizeSampler struct {
	mean, stdDev float64
	min, max     int
}

func NewSizeSampler(s SizeSpec) *SizeSampler {
	lo, hi := max(s.Min, 1), s.Max
	if hi < lo {
		hi = lo
	}
	return &SizeSampler{mean: s.Mean, stdDev: s.StdDev, min: lo, max: hi}
}

func (s *SizeSampler) Sample(rng *rand.Rand) int64 {
	if s.min == s.max {
		return int64(s.min)
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	clamped := math.Min(float64(s.max), math.Max(float64(s.min), val))
	return int64(math.Round(clamped))
}
