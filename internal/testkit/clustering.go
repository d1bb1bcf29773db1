package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"gosegment/domain/segmentation"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// truncateLeaves is the number of leaves kept in a returned dendrogram.
const truncateLeaves = 12

// buildMatrix extracts one row per respondent over the given variables,
// optionally z-scoring each column.
func buildMatrix(s *Survey, variables []string, standardize bool) ([][]float64, error) {
	cols := make([][]float64, len(variables))
	for j, name := range variables {
		col, ok := s.Numeric[name]
		if !ok {
			return nil, fmt.Errorf("variable %s is not numeric", name)
		}
		col = append([]float64(nil), col...)
		if standardize {
			mean, std := stat.MeanStdDev(col, nil)
			for i := range col {
				if std == 0 {
					col[i] = 0
				} else {
					col[i] = (col[i] - mean) / std
				}
			}
		}
		cols[j] = col
	}

	rows := make([][]float64, s.N)
	for i := range rows {
		rows[i] = make([]float64, len(variables))
		for j := range variables {
			rows[i][j] = cols[j][i]
		}
	}
	return rows, nil
}

func distanceMatrix(x [][]float64) [][]float64 {
	n := len(x)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := floats.Distance(x[i], x[j], 2)
			d[i][j], d[j][i] = v, v
		}
	}
	return d
}

// kmeans runs Lloyd's algorithm from a k-means++ seeding and returns the
// labels and the within-cluster sum of squares.
func kmeans(x [][]float64, k int, rng *rand.Rand) ([]int, float64) {
	n := len(x)
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), x[rng.Intn(n)]...))

	d2 := make([]float64, n)
	for len(centers) < k {
		total := 0.0
		for i, row := range x {
			d2[i] = math.Inf(1)
			for _, c := range centers {
				if d := sqDist(row, c); d < d2[i] {
					d2[i] = d
				}
			}
			total += d2[i]
		}
		pick := rng.Intn(n)
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range d2 {
				if r -= d; r <= 0 {
					pick = i
					break
				}
			}
		}
		centers = append(centers, append([]float64(nil), x[pick]...))
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < 100; iter++ {
		changed := false
		for i, row := range x {
			best, bestD := 0, math.Inf(1)
			for c, center := range centers {
				if d := sqDist(row, center); d < bestD {
					best, bestD = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		for c := range centers {
			sum := make([]float64, len(x[0]))
			count := 0
			for i, row := range x {
				if labels[i] == c {
					floats.Add(sum, row)
					count++
				}
			}
			if count > 0 {
				floats.Scale(1/float64(count), sum)
				centers[c] = sum
			}
		}
	}

	inertia := 0.0
	for i, row := range x {
		inertia += sqDist(row, centers[labels[i]])
	}
	return labels, inertia
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// silhouette is the mean silhouette coefficient, NaN when undefined.
func silhouette(dist [][]float64, labels []int, k int) float64 {
	n := len(labels)
	if k < 2 || k >= n {
		return math.NaN()
	}
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}

	total := 0.0
	sums := make([]float64, k)
	for i := 0; i < n; i++ {
		for c := range sums {
			sums[c] = 0
		}
		for j := 0; j < n; j++ {
			if i != j {
				sums[labels[j]] += dist[i][j]
			}
		}
		own := labels[i]
		if sizes[own] <= 1 {
			continue
		}
		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c != own && sizes[c] > 0 {
				b = math.Min(b, sums[c]/float64(sizes[c]))
			}
		}
		if math.IsInf(b, 1) {
			continue
		}
		total += (b - a) / math.Max(a, b)
	}
	return total / float64(n)
}

// merge is one agglomeration step. Cluster ids follow scipy: leaves are
// 0..n-1 and the cluster formed at step i is n+i.
type merge struct {
	a, b int
	dist float64
	size int
}

// agglomerate performs naive agglomerative clustering with Lance-Williams updates.
func agglomerate(dist [][]float64, linkage segmentation.Linkage) []merge {
	n := len(dist)
	d := make([][]float64, n)
	for i := range d {
		d[i] = append([]float64(nil), dist[i]...)
	}
	ids := make([]int, n)
	sizes := make([]int, n)
	active := make([]bool, n)
	for i := range ids {
		ids[i], sizes[i], active[i] = i, 1, true
	}

	merges := make([]merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d[i][j] < best {
					bi, bj, best = i, j, d[i][j]
				}
			}
		}

		ni, nj := float64(sizes[bi]), float64(sizes[bj])
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			nk := float64(sizes[k])
			dki, dkj := d[k][bi], d[k][bj]
			var v float64
			switch linkage {
			case segmentation.LinkageSingle:
				v = math.Min(dki, dkj)
			case segmentation.LinkageComplete:
				v = math.Max(dki, dkj)
			case segmentation.LinkageAverage:
				v = (ni*dki + nj*dkj) / (ni + nj)
			default:
				v = math.Sqrt(math.Max(0, ((nk+ni)*dki*dki+(nk+nj)*dkj*dkj-nk*best*best)/(nk+ni+nj)))
			}
			d[k][bi], d[bi][k] = v, v
		}

		a, b := ids[bi], ids[bj]
		if a > b {
			a, b = b, a
		}
		merges = append(merges, merge{a: a, b: b, dist: best, size: sizes[bi] + sizes[bj]})
		ids[bi] = n + step
		sizes[bi] += sizes[bj]
		active[bj] = false
	}
	return merges
}

// cutTree labels the leaves with k flat clusters by undoing the last k-1 merges.
func cutTree(merges []merge, n, k int) []int {
	parent := make([]int, n+len(merges))
	for i := range parent {
		parent[i] = i
	}
	for step := 0; step < n-k && step < len(merges); step++ {
		m := merges[step]
		parent[m.a] = n + step
		parent[m.b] = n + step
	}
	root := func(i int) int {
		for parent[i] != i {
			i = parent[i]
		}
		return i
	}

	labels := make([]int, n)
	seen := map[int]int{}
	for i := 0; i < n; i++ {
		r := root(i)
		l, ok := seen[r]
		if !ok {
			l = len(seen)
			seen[r] = l
		}
		labels[i] = l
	}
	return labels
}

// dendrogram lays out the merge tree in scipy's coordinate convention,
// truncated to the last p merged clusters. Links below 70% of the maximum
// distance take their subtree's color; the rest are C0.
func dendrogram(merges []merge, n, p int) *segmentation.DendrogramData {
	data := &segmentation.DendrogramData{NSamples: n}
	if len(merges) == 0 {
		return data
	}

	firstVisible := 0
	if n > p {
		firstVisible = n - p
	}
	maxDist := 0.0
	for _, m := range merges {
		maxDist = math.Max(maxDist, m.dist)
	}
	threshold := 0.7 * maxDist
	nextColor := 0

	var walk func(id int, color string) (float64, float64)
	walk = func(id int, color string) (float64, float64) {
		if id < n || id-n < firstVisible {
			x := 5 + 10*float64(len(data.Leaves))
			label := strconv.Itoa(id)
			if id >= n {
				label = fmt.Sprintf("(%d)", merges[id-n].size)
			}
			data.Leaves = append(data.Leaves, label)
			return x, 0
		}

		m := merges[id-n]
		if color == "" && m.dist < threshold {
			color = fmt.Sprintf("C%d", nextColor%9+1)
			nextColor++
		}
		xl, hl := walk(m.a, color)
		xr, hr := walk(m.b, color)

		linkColor := color
		if linkColor == "" {
			linkColor = "C0"
		}
		data.ICoord = append(data.ICoord, []float64{xl, xl, xr, xr})
		data.DCoord = append(data.DCoord, []float64{hl, m.dist, m.dist, hr})
		data.ColorList = append(data.ColorList, linkColor)
		return (xl + xr) / 2, m.dist
	}

	walk(n+len(merges)-1, "")
	data.NLeaves = len(data.Leaves)
	return data
}
