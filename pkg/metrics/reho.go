package metrics

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// VolumeShape gives the voxel-grid dimensions of a volumetric run.
type VolumeShape struct {
	X, Y, Z int
}

// ReHoVolume computes regional homogeneity (Kendall's coefficient of
// concordance) for every in-mask voxel of a volumetric run.
//
// data is T x V with columns in x-fastest flat order over the shape's grid;
// include marks which voxels are inside the brain mask. neighbors selects
// the 3-D adjacency: 6 (faces), 18 (faces+edges) or 26 (full cube). Voxels
// outside the mask get 0.
func ReHoVolume(data *mat.Dense, shape VolumeShape, include []bool, neighbors int) ([]float64, error) {
	_, v := data.Dims()
	if shape.X*shape.Y*shape.Z != v {
		return nil, fmt.Errorf("shape %dx%dx%d does not match %d columns", shape.X, shape.Y, shape.Z, v)
	}
	if len(include) != v {
		return nil, fmt.Errorf("include mask has %d entries for %d voxels", len(include), v)
	}
	offsets, err := neighborOffsets(neighbors)
	if err != nil {
		return nil, err
	}

	adjacency := make([][]int, v)
	for z := 0; z < shape.Z; z++ {
		for y := 0; y < shape.Y; y++ {
			for x := 0; x < shape.X; x++ {
				idx := x + y*shape.X + z*shape.X*shape.Y
				if !include[idx] {
					continue
				}
				for _, o := range offsets {
					nx, ny, nz := x+o[0], y+o[1], z+o[2]
					if nx < 0 || nx >= shape.X || ny < 0 || ny >= shape.Y || nz < 0 || nz >= shape.Z {
						continue
					}
					nIdx := nx + ny*shape.X + nz*shape.X*shape.Y
					if include[nIdx] {
						adjacency[idx] = append(adjacency[idx], nIdx)
					}
				}
			}
		}
	}

	return kendallMap(data, adjacency, include)
}

// ReHoSurface computes regional homogeneity for surface-based runs.
// adjacency[v] lists the mesh neighbors of vertex v; the statistic and its
// normalization are identical to the volumetric case, only the neighborhood
// topology differs.
func ReHoSurface(data *mat.Dense, adjacency [][]int) ([]float64, error) {
	_, v := data.Dims()
	if len(adjacency) != v {
		return nil, fmt.Errorf("adjacency has %d entries for %d vertices", len(adjacency), v)
	}
	include := make([]bool, v)
	for i := range include {
		include[i] = true
	}
	return kendallMap(data, adjacency, include)
}

// kendallMap ranks every column once, then computes Kendall's W over each
// included column's neighborhood in parallel.
func kendallMap(data *mat.Dense, adjacency [][]int, include []bool) ([]float64, error) {
	t, v := data.Dims()
	if t < 2 {
		return nil, fmt.Errorf("too few frames (%d) for regional homogeneity", t)
	}

	ranks := make([][]float64, v)
	col := make([]float64, t)
	for j := 0; j < v; j++ {
		if !include[j] {
			continue
		}
		mat.Col(col, j, data)
		ranks[j] = rankSeries(col)
	}

	out := make([]float64, v)
	numWorkers := runtime.NumCPU()
	chunk := (v + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunk
		end := start + chunk
		if end > v {
			end = v
		}
		if start >= v {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for j := start; j < end; j++ {
				if !include[j] {
					continue
				}
				members := append([]int{j}, adjacency[j]...)
				out[j] = kendallW(ranks, members, t)
			}
		}(start, end)
	}
	wg.Wait()

	return out, nil
}

// kendallW is Kendall's coefficient of concordance over the member series'
// precomputed ranks: W = 12*KC / (m^2 * (T^3 - T)), where KC is the sum of
// squared rank sums about their mean.
func kendallW(ranks [][]float64, members []int, t int) float64 {
	m := len(members)
	rankSum := make([]float64, t)
	for _, j := range members {
		for i, r := range ranks[j] {
			rankSum[i] += r
		}
	}

	mean := 0.0
	for _, r := range rankSum {
		mean += r
	}
	mean /= float64(t)

	kc := 0.0
	for _, r := range rankSum {
		kc += r * r
	}
	kc -= float64(t) * mean * mean

	tf := float64(t)
	denom := float64(m*m) * (tf*tf*tf - tf)
	return 12.0 * kc / denom
}

// rankSeries assigns 1-based ranks over time, with ties given midranks.
func rankSeries(x []float64) []float64 {
	n := len(x)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		// midrank for the tie block [i, j]
		r := float64(i+j)/2.0 + 1.0
		for k := i; k <= j; k++ {
			ranks[idx[k]] = r
		}
		i = j + 1
	}
	return ranks
}

// neighborOffsets returns the integer offsets for the requested 3-D
// neighborhood size.
func neighborOffsets(neighbors int) ([][3]int, error) {
	var offsets [][3]int
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				nonZero := 0
				for _, d := range []int{dx, dy, dz} {
					if d != 0 {
						nonZero++
					}
				}
				switch neighbors {
				case 6:
					if nonZero > 1 {
						continue
					}
				case 18:
					if nonZero > 2 {
						continue
					}
				case 26:
				default:
					return nil, fmt.Errorf("neighborhood must be 6, 18 or 26, got %d", neighbors)
				}
				offsets = append(offsets, [3]int{dx, dy, dz})
			}
		}
	}
	return offsets, nil
}
