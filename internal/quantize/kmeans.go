package quantize

import (
	"image/color"
	"math/rand"
	"runtime"
	"sort"
	"sync"
)

type colorClusters struct {
	Centers   []colorVector
	AllColors []colorVector
	Weights   []float64

	counts []float64
}

func newColorClusters(rng *rand.Rand, allColors []colorVector, weights []float64, numCenters int) *colorClusters {
	return &colorClusters{
		Centers:   kmeansPlusPlusInit(rng, allColors, weights, numCenters),
		AllColors: allColors,
		Weights:   weights,
	}
}

// Iterate performs a step of k-means and returns the
// current weighted MSE loss.
// If the loss does not decrease, then the process has
// converged.
func (c *colorClusters) Iterate() float64 {
	centerSum := make([]colorVector, len(c.Centers))
	centerWeight := make([]float64, len(c.Centers))
	totalError := 0.0
	totalWeight := 0.0

	numProcs := runtime.GOMAXPROCS(0)
	var resultLock sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < numProcs; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			localCenterSum := make([]colorVector, len(c.Centers))
			localCenterWeight := make([]float64, len(c.Centers))
			localTotalError := 0.0
			localTotalWeight := 0.0
			for i := idx; i < len(c.AllColors); i += numProcs {
				co := c.AllColors[i]
				w := c.Weights[i]
				closestIdx, closestDist := nearestCenter(c.Centers, co)
				localCenterSum[closestIdx] = localCenterSum[closestIdx].Add(co.Scale(w))
				localCenterWeight[closestIdx] += w
				localTotalError += closestDist * w
				localTotalWeight += w
			}
			resultLock.Lock()
			defer resultLock.Unlock()
			for i, w := range localCenterWeight {
				centerWeight[i] += w
			}
			for i, s := range localCenterSum {
				centerSum[i] = centerSum[i].Add(s)
			}
			totalError += localTotalError
			totalWeight += localTotalWeight
		}(i)
	}
	wg.Wait()

	for i, newCenter := range centerSum {
		if w := centerWeight[i]; w > 0 {
			c.Centers[i] = newCenter.Scale(1 / w)
		}
	}
	c.counts = centerWeight

	return totalError / totalWeight
}

// Palette converts the centers to colors, most populated first. Centers
// that attracted no colors, or collapse onto an already emitted color, are
// dropped.
func (c *colorClusters) Palette() color.Palette {
	order := make([]int, len(c.Centers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return c.counts[order[i]] > c.counts[order[j]]
	})

	seen := map[uint32]bool{}
	res := make(color.Palette, 0, len(c.Centers))
	for _, i := range order {
		if c.counts[i] == 0 {
			continue
		}
		co := toColor(c.Centers[i])
		if seen[Key(co)] {
			continue
		}
		seen[Key(co)] = true
		res = append(res, co)
	}
	return res
}

func nearestCenter(centers []colorVector, co colorVector) (int, float64) {
	closestDist := 0.0
	closestIdx := 0
	for i, center := range centers {
		d := co.DistSquared(center)
		if d < closestDist || i == 0 {
			closestDist = d
			closestIdx = i
		}
	}
	return closestIdx, closestDist
}

func kmeansPlusPlusInit(rng *rand.Rand, allColors []colorVector, weights []float64, numCenters int) []colorVector {
	centers := make([]colorVector, numCenters)
	centers[0] = allColors[rng.Intn(len(allColors))]
	dists := newCenterDistances(allColors, weights, centers[0])
	for i := 1; i < numCenters; i++ {
		sampleIdx := dists.Sample(rng)
		centers[i] = allColors[sampleIdx]
		dists.Update(centers[i])
	}
	return centers
}

type centerDistances struct {
	AllColors   []colorVector
	Weights     []float64
	Distances   []float64
	DistanceSum float64
}

func newCenterDistances(allColors []colorVector, weights []float64, center colorVector) *centerDistances {
	dists := make([]float64, len(allColors))
	sum := 0.0
	for i, c := range allColors {
		dists[i] = c.DistSquared(center) * weights[i]
		sum += dists[i]
	}
	return &centerDistances{
		AllColors:   allColors,
		Weights:     weights,
		Distances:   dists,
		DistanceSum: sum,
	}
}

func (c *centerDistances) Update(newCenter colorVector) {
	c.DistanceSum = 0
	for i, co := range c.AllColors {
		d := co.DistSquared(newCenter) * c.Weights[i]
		if d < c.Distances[i] {
			c.Distances[i] = d
		}
		c.DistanceSum += c.Distances[i]
	}
}

func (c *centerDistances) Sample(rng *rand.Rand) int {
	sample := rng.Float64() * c.DistanceSum
	idx := len(c.AllColors) - 1
	for i, dist := range c.Distances {
		sample -= dist
		if sample < 0 {
			idx = i
			break
		}
	}
	return idx
}
