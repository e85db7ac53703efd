package challenge

// BestPath performs greedy CTC decoding: take the most likely class at every
// timestep, collapse repeats, then drop blanks. Any class index outside the
// vocabulary is treated as blank.
func BestPath(scores [][]float32, vocab []rune) string {
	out := make([]rune, 0, len(scores))
	prev := -1
	for _, step := range scores {
		best := argmax(step)
		if best != prev && best >= 0 && best < len(vocab) {
			out = append(out, vocab[best])
		}
		prev = best
	}
	return string(out)
}

func argmax(values []float32) int {
	best := -1
	var bestVal float32
	for i, v := range values {
		if best == -1 || v > bestVal {
			best = i
			bestVal = v
		}
	}
	return best
}
