package model

import (
	"math"
	"runtime"
	"sync"
)

// RunClustering partitions the contig set at one neighborhood radius and
// returns one label per contig, renumbered from 0 in order of appearance.
// Labels are not stable across calls.
//
// With min samples per core point fixed at 1 every contig seeds its own
// cluster, so there is no noise class: the only way to get the noise label is
// the single-contig special case, which cannot be clustered at all.
//
// Features are (x, y, coverage) when every contig carries coverage, else
// (x, y, z).
func RunClustering(contigs []*ContigRecord, eps float64, method ClusterMethod) ([]int, error) {

	if method != MethodDBSCAN && method != MethodHDBSCAN {
		return nil, &InvalidMethodError{Method: string(method)}
	}

	if len(contigs) == 1 {
		return []int{noiseLabel}, nil
	}

	points := featureMatrix(contigs)

	var labels []int
	switch method {
	case MethodDBSCAN:
		labels = epsComponents(points, eps, nil)
	case MethodHDBSCAN:
		// Variable-density variant: link on mutual reachability. The core
		// distance of a point is the distance to its 2nd nearest neighbor,
		// matching a minimum cluster size of 2.
		labels = epsComponents(points, eps, coreDistances(points))
	}

	return renumber(labels), nil
}

func featureMatrix(contigs []*ContigRecord) [][3]float64 {
	useCoverage := true
	for _, c := range contigs {
		if c.Coverage == nil {
			useCoverage = false
			break
		}
	}

	points := make([][3]float64, len(contigs))
	for i, c := range contigs {
		if useCoverage {
			points[i] = [3]float64{c.X, c.Y, *c.Coverage}
		} else {
			points[i] = [3]float64{c.X, c.Y, c.Z}
		}
	}
	return points
}

func euclidean(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// coreDistances computes, in parallel over rows, each point's distance to its
// 2nd nearest neighbor. With fewer than 3 points that degenerates to the
// nearest neighbor.
func coreDistances(points [][3]float64) []float64 {
	n := len(points)
	core := make([]float64, n)

	workers := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < n; i += workers {
				first, second := math.Inf(1), math.Inf(1)
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					d := euclidean(points[i], points[j])
					if d < first {
						first, second = d, first
					} else if d < second {
						second = d
					}
				}
				if math.IsInf(second, 1) {
					second = first
				}
				core[i] = second
			}
		}(w)
	}
	wg.Wait()

	return core
}

// epsComponents labels the connected components of the graph joining points
// whose distance is <= eps. When core is non-nil the mutual reachability
// distance max(d, core[i], core[j]) is used instead of the raw distance.
// Neighbor discovery is data-parallel; merging is sequential.
func epsComponents(points [][3]float64, eps float64, core []float64) []int {
	n := len(points)
	neighbors := make([][]int, n)

	workers := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < n; i += workers {
				for j := i + 1; j < n; j++ {
					d := euclidean(points[i], points[j])
					if core != nil {
						d = math.Max(d, math.Max(core[i], core[j]))
					}
					if d <= eps {
						neighbors[i] = append(neighbors[i], j)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	uf := newUnionFind(n)
	for i, adj := range neighbors {
		for _, j := range adj {
			uf.union(i, j)
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = uf.find(i)
	}
	return labels
}

// renumber maps raw component roots to 0..k-1 in order of appearance.
// The noise label is kept as is.
func renumber(labels []int) []int {
	next := 0
	seen := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		if l == noiseLabel {
			out[i] = noiseLabel
			continue
		}
		if _, ok := seen[l]; !ok {
			seen[l] = next
			next++
		}
		out[i] = seen[l]
	}
	return out
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]] // path halving
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri != rj {
		u.parent[rj] = ri
	}
}
