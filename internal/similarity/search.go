package similarity

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultThreshold = 0.45
	DefaultTopK      = 50
)

// Candidate is one stored vector. Vectors are expected to be unit length already.
type Candidate struct {
	ID     uuid.UUID
	Vector []float32
}

// Match is a ranked search hit. Score is floor(Cosine*100) clamped to [0, 100].
type Match struct {
	ID     uuid.UUID
	Cosine float64
	Score  int
}

// Search ranks pool against query with one dense matrix-vector product and returns at
// most topK matches whose cosine strictly exceeds threshold, best first. Candidates
// whose dimension differs from the query are ignored. Ties keep pool order.
func Search(query []float32, pool []Candidate, topK int, threshold float64) []Match {
	out := []Match{}
	dim := len(query)
	if dim == 0 || len(pool) == 0 {
		return out
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	usable := make([]int, 0, len(pool))
	for i := range pool {
		if len(pool[i].Vector) == dim {
			usable = append(usable, i)
		}
	}
	if len(usable) == 0 {
		return out
	}

	data := make([]float64, len(usable)*dim)
	for row, idx := range usable {
		base := row * dim
		for j, x := range pool[idx].Vector {
			data[base+j] = float64(x)
		}
	}
	q := make([]float64, dim)
	for j, x := range query {
		q[j] = float64(x)
	}

	m := mat.NewDense(len(usable), dim, data)
	var scores mat.VecDense
	scores.MulVec(m, mat.NewVecDense(dim, q))

	order := make([]int, len(usable))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores.AtVec(order[a]) > scores.AtVec(order[b])
	})

	for _, row := range order {
		if len(out) >= topK {
			break
		}
		cos := scores.AtVec(row)
		if !(cos > threshold) {
			// sorted descending; nothing after this passes either
			break
		}
		out = append(out, Match{
			ID:     pool[usable[row]].ID,
			Cosine: cos,
			Score:  scoreOf(cos),
		})
	}
	return out
}

func scoreOf(cos float64) int {
	s := int(math.Floor(cos * 100))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
