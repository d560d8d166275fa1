/*
DESCRIPTION
  contours.go implements marching-squares contour extraction over an
  elevation.Grid (spec.md §4.5): for each threshold between min_elev_mm
  and max_elev_mm stepping by contour_step_mm, trace polylines through
  cells with four valid corners, chaining edge-crossing segments into
  polylines and closing loops where the chain returns to its start.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package feature

import (
	"github.com/arsandbox/engine/elevation"
)

// edgePoint is a contour-line crossing on one grid edge, in continuous
// grid-space coordinates.
type edgePoint struct {
	col, row float64
}

// segment is one marching-squares line segment within a single cell.
type segment struct {
	a, b edgePoint
}

// contours traces every threshold between minElevMM and maxElevMM
// stepping by stepMM.
func contours(g *elevation.Grid, minElevMM, maxElevMM, stepMM int) []Polyline {
	if stepMM <= 0 {
		stepMM = DefaultContourStepMM
	}
	var out []Polyline
	for threshold := minElevMM; threshold <= maxElevMM; threshold += stepMM {
		segs := traceThreshold(g, float32(threshold))
		out = append(out, chainSegments(segs, float32(threshold))...)
	}
	return out
}

// traceThreshold runs marching squares over every 2x2 cell block at one
// threshold, skipping any block with an invalid corner.
func traceThreshold(g *elevation.Grid, threshold float32) []segment {
	var segs []segment
	for row := 0; row < g.Rows-1; row++ {
		for col := 0; col < g.Cols-1; col++ {
			tl, tlOK := cellValue(g, col, row)
			tr, trOK := cellValue(g, col+1, row)
			br, brOK := cellValue(g, col+1, row+1)
			bl, blOK := cellValue(g, col, row+1)
			if !tlOK || !trOK || !brOK || !blOK {
				continue
			}

			state := 0
			if tl >= threshold {
				state |= 8
			}
			if tr >= threshold {
				state |= 4
			}
			if br >= threshold {
				state |= 2
			}
			if bl >= threshold {
				state |= 1
			}
			if state == 0 || state == 15 {
				continue
			}

			top := edgeCross(col, row, tl, col+1, row, tr, threshold)
			right := edgeCross(col+1, row, tr, col+1, row+1, br, threshold)
			bottom := edgeCross(col, row+1, bl, col+1, row+1, br, threshold)
			left := edgeCross(col, row, tl, col, row+1, bl, threshold)

			for _, pair := range marchingSquaresCases[state] {
				segs = append(segs, segment{a: pickEdge(pair[0], top, right, bottom, left), b: pickEdge(pair[1], top, right, bottom, left)})
			}
		}
	}
	return segs
}

func cellValue(g *elevation.Grid, col, row int) (float32, bool) {
	idx := row*g.Cols + col
	if !g.Valid[idx] {
		return 0, false
	}
	return g.Cells[idx], true
}

// edge identifiers within a cell: 0=top, 1=right, 2=bottom, 3=left.
func pickEdge(which int, top, right, bottom, left edgePoint) edgePoint {
	switch which {
	case 0:
		return top
	case 1:
		return right
	case 2:
		return bottom
	default:
		return left
	}
}

// marchingSquaresCases maps each of the 16 corner-sign states to the
// edge pairs a contour segment connects. States 5 and 10 are the
// ambiguous saddle cases; both are resolved here as two parallel
// segments rather than attempting center-value disambiguation.
var marchingSquaresCases = map[int][][2]int{
	1:  {{3, 2}},
	2:  {{2, 1}},
	3:  {{3, 1}},
	4:  {{0, 1}},
	5:  {{0, 3}, {1, 2}},
	6:  {{0, 2}},
	7:  {{0, 3}},
	8:  {{0, 3}},
	9:  {{0, 2}},
	10: {{0, 1}, {2, 3}},
	11: {{0, 1}},
	12: {{1, 3}},
	13: {{1, 2}},
	14: {{2, 3}},
}

// edgeCross linearly interpolates the threshold crossing between two
// corners. Endpoints are ordered lexicographically by (col, row) before
// interpolating so that two cells sharing an edge compute the identical
// crossing point, which chainSegments relies on to match endpoints
// exactly.
func edgeCross(c1, r1 int, v1 float32, c2, r2 int, v2 float32, threshold float32) edgePoint {
	if c2 < c1 || (c2 == c1 && r2 < r1) {
		c1, r1, v1, c2, r2, v2 = c2, r2, v2, c1, r1, v1
	}
	if v2 == v1 {
		return edgePoint{col: float64(c1), row: float64(r1)}
	}
	t := float64((threshold - v1) / (v2 - v1))
	return edgePoint{
		col: float64(c1) + t*float64(c2-c1),
		row: float64(r1) + t*float64(r2-r1),
	}
}

// chainSegments joins unordered segments sharing an endpoint into
// polylines, closing a chain into a loop when it returns to its
// starting point, spec.md §4.5/§8 scenario 6.
func chainSegments(segs []segment, threshold float32) []Polyline {
	type end struct {
		seg   int
		atA   bool
	}
	endpoints := make(map[edgePoint][]end)
	for i, s := range segs {
		endpoints[s.a] = append(endpoints[s.a], end{seg: i, atA: true})
		endpoints[s.b] = append(endpoints[s.b], end{seg: i, atA: false})
	}

	used := make([]bool, len(segs))
	var polylines []Polyline

	for start := 0; start < len(segs); start++ {
		if used[start] {
			continue
		}
		used[start] = true
		chain := []edgePoint{segs[start].a, segs[start].b}

		// Extend forward from the tail, and backward from the head,
		// until no unused segment shares the current endpoint.
		for {
			tail := chain[len(chain)-1]
			next, ok := nextUnused(endpoints[tail], used, segs, tail)
			if !ok {
				break
			}
			chain = append(chain, next)
		}
		for {
			head := chain[0]
			prev, ok := nextUnused(endpoints[head], used, segs, head)
			if !ok {
				break
			}
			chain = append([]edgePoint{prev}, chain...)
		}

		points := make([]Point, len(chain))
		for i, p := range chain {
			points[i] = Point{Col: int(p.col + 0.5), Row: int(p.row + 0.5), ElevMM: threshold}
		}
		polylines = append(polylines, Polyline{ThresholdMM: threshold, Points: points})
	}
	return polylines
}

// nextUnused finds an unused segment touching at and returns its other
// endpoint.
func nextUnused(cands []end, used []bool, segs []segment, at edgePoint) (edgePoint, bool) {
	for _, c := range cands {
		if used[c.seg] {
			continue
		}
		used[c.seg] = true
		if c.atA {
			return segs[c.seg].b, true
		}
		return segs[c.seg].a, true
	}
	return edgePoint{}, false
}
