package fleet

import (
	"math"
	"math/rand/v2"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Default delivery area: a 15 km circle around central São Paulo.
var (
	DefaultCenter   = orb.Point{-46.653497, -23.556664}
	DefaultRadiusKm = 15.0
)

// Generator produces reproducible random demands for simulations and demos.
type Generator struct {
	Center   orb.Point
	RadiusKm float64
	Seed     uint64
}

// Generate returns n demands with ids 1..n spread uniformly over the disc.
// Weight is 1-30 kg and volume 0.01-0.2 m3.
func (g Generator) Generate(n int) []Demand {
	center := g.Center
	if center == (orb.Point{}) {
		center = DefaultCenter
	}
	radius := g.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}
	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))
	priorities := []Priority{High, Medium, Low}
	out := make([]Demand, 0, n)
	for i := 1; i <= n; i++ {
		dist := radius * 1000 * math.Sqrt(rng.Float64())
		p := geo.PointAtBearingAndDistance(center, rng.Float64()*360, dist)
		out = append(out, Demand{
			ID:       i,
			Lat:      round(p.Lat(), 6),
			Lng:      round(p.Lon(), 6),
			WeightKg: round(1+rng.Float64()*29, 2),
			VolumeM3: round(0.01+rng.Float64()*0.19, 3),
			Priority: priorities[rng.IntN(len(priorities))],
		})
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
