package consolidation

import "github.com/fyrsmithlabs/reflexd/internal/similarity"

const noise = -1

// dbscan assigns a cluster label to every vector, or noise for points
// without a sufficiently dense neighborhood. Distance is cosine distance
// (1 - cosine similarity) over L2-normalized vectors.
//
// Points are visited and neighborhoods expanded in ascending input order,
// so membership is reproducible for a fixed corpus, eps, and minPts.
func dbscan(vectors [][]float32, eps float64, minPts int) []int {
	labels := make([]int, len(vectors))
	for i := range labels {
		labels[i] = noise
	}
	visited := make([]bool, len(vectors))

	cluster := 0
	for i := range vectors {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(vectors, i, eps)
		if len(neighbors) < minPts {
			continue // stays noise unless claimed by a later expansion
		}

		labels[i] = cluster
		for qi := 0; qi < len(neighbors); qi++ {
			j := neighbors[qi]
			if !visited[j] {
				visited[j] = true
				jNeighbors := regionQuery(vectors, j, eps)
				if len(jNeighbors) >= minPts {
					neighbors = append(neighbors, jNeighbors...)
				}
			}
			if labels[j] == noise {
				labels[j] = cluster
			}
		}
		cluster++
	}
	return labels
}

// regionQuery returns the indices within eps cosine distance of point i,
// including i itself, in ascending order.
func regionQuery(vectors [][]float32, i int, eps float64) []int {
	var neighbors []int
	for j := range vectors {
		if 1-similarity.Cosine(vectors[i], vectors[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
