package scoring

import "veridoc/internal/jobs"

// Distribution summarizes trust scores across a job's regions for
// diagnostics and export reporting.
type Distribution struct {
	Count int
	Mean  float64
	Min   float64
	Max   float64
	Tiers map[jobs.ReviewAction]int
}

// Summarize computes the score distribution over stored regions.
func Summarize(regions []*jobs.Region) Distribution {
	dist := Distribution{Tiers: make(map[jobs.ReviewAction]int, 4)}
	if len(regions) == 0 {
		return dist
	}
	dist.Count = len(regions)
	dist.Min = regions[0].TrustScore
	dist.Max = regions[0].TrustScore
	sum := 0.0
	for _, region := range regions {
		score := region.TrustScore
		sum += score
		if score < dist.Min {
			dist.Min = score
		}
		if score > dist.Max {
			dist.Max = score
		}
		dist.Tiers[region.ReviewAction]++
	}
	dist.Mean = sum / float64(dist.Count)
	return dist
}
