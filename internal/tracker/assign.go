package tracker

import "github.com/gatenet/edge-node/internal/models"

// costInvalid marks a detection/track pair that fails a hard gate (IoU or
// embedding-distance) and can never be selected by the solver.
const costInvalid = 1e6

// buildCostMatrix returns a |detections| x |trackIDs| cost matrix. TENTATIVE
// tracks never use embeddings in the cost, matching the phase rule that
// embeddings only seed once CONFIRMED.
func (tr *Tracker) buildCostMatrix(detections []models.Detection, ids []int64) [][]float32 {
	m := make([][]float32, len(detections))
	for i, d := range detections {
		row := make([]float32, len(ids))
		for j, id := range ids {
			t := tr.tracks[id]
			row[j] = tr.pairCost(d, t)
		}
		m[i] = row
	}
	return m
}

func (tr *Tracker) pairCost(d models.Detection, t *Track) float32 {
	iou := d.BBox.IoU(t.BBox)
	if iou < tr.cfg.IoUThreshold {
		return costInvalid
	}

	useEmbedding := t.Phase != TENTATIVE && len(t.Embedding) > 0 && len(d.Embedding) > 0
	if !useEmbedding {
		return 1 - iou
	}

	dist := 1 - cosineSimilarity(t.Embedding, d.Embedding)
	// RECOGNIZED tracks skip the distance gate so that a different face at
	// the same position reaches applyMatch's swap detection.
	if dist > tr.cfg.MatchThreshold && t.Phase != RECOGNIZED {
		return costInvalid
	}

	w := tr.cfg.EmbeddingWeight
	return (1-w)*(1-iou) + w*dist
}

// assign solves the cost matrix and returns the detection-index -> track-id
// assignment map plus the indices of unmatched detections. Any selected
// pair whose cost exceeds costInvalid/2 is dropped after solving.
func (tr *Tracker) assign(detections []models.Detection, ids []int64) (map[int]int64, []int) {
	if len(ids) == 0 {
		unmatched := make([]int, len(detections))
		for i := range detections {
			unmatched[i] = i
		}
		return map[int]int64{}, unmatched
	}

	cost := tr.buildCostMatrix(detections, ids)

	var rowToCol []int
	if len(detections) <= 64 && len(ids) <= 64 {
		rowToCol = hungarian(cost)
	} else {
		rowToCol = greedyAssignment(cost)
	}

	assignments := make(map[int]int64)
	matchedDet := make(map[int]bool)
	for row, col := range rowToCol {
		if col < 0 || col >= len(ids) {
			continue
		}
		if cost[row][col] > costInvalid/2 {
			continue
		}
		assignments[row] = ids[col]
		matchedDet[row] = true
	}

	unmatched := make([]int, 0, len(detections))
	for i := range detections {
		if !matchedDet[i] {
			unmatched = append(unmatched, i)
		}
	}
	return assignments, unmatched
}

// greedyAssignment picks, for each detection in order, the lowest-cost
// still-free track below costInvalid. It is the fallback used for large
// matrices and is also a reasonable approximation when the optimal solver
// is skipped; -1 marks an unmatched row.
func greedyAssignment(cost [][]float32) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])
	result := make([]int, rows)
	for i := range result {
		result[i] = -1
	}
	usedCol := make([]bool, cols)

	type cand struct {
		row, col int
		c        float32
	}
	cands := make([]cand, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if cost[i][j] < costInvalid {
				cands = append(cands, cand{i, j, cost[i][j]})
			}
		}
	}
	// simple selection sort by cost; matrices here are small (recognition
	// scenes rarely exceed a handful of simultaneous faces)
	for i := range cands {
		min := i
		for j := i + 1; j < len(cands); j++ {
			if cands[j].c < cands[min].c {
				min = j
			}
		}
		cands[i], cands[min] = cands[min], cands[i]
	}

	usedRow := make([]bool, rows)
	for _, c := range cands {
		if usedRow[c.row] || usedCol[c.col] {
			continue
		}
		result[c.row] = c.col
		usedRow[c.row] = true
		usedCol[c.col] = true
	}
	return result
}

// hungarian solves the rectangular assignment problem (minimise total cost,
// every row assigned at most one column) via the Kuhn-Munkres algorithm.
// Costs are padded to square with costInvalid so unmatched rows/cols never
// get selected below the later threshold check. No example in the reference
// corpus ships an assignment-problem solver, so this is a from-scratch
// implementation of the classical O(n^3) primal-dual method.
func hungarian(cost [][]float32) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])
	n := rows
	if cols > n {
		n = cols
	}

	a := make([][]float64, n+1)
	for i := range a {
		a[i] = make([]float64, n+1)
		for j := range a[i] {
			a[i][j] = float64(costInvalid)
		}
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			a[i+1][j+1] = float64(cost[i][j])
		}
	}

	const inf = 1e18
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[col] = row assigned to col
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = inf
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := a[i0][j] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	rowToCol := make([]int, rows)
	for i := range rowToCol {
		rowToCol[i] = -1
	}
	for j := 1; j <= n; j++ {
		row := p[j] - 1
		col := j - 1
		if row >= 0 && row < rows && col < cols {
			rowToCol[row] = col
		}
	}
	return rowToCol
}
