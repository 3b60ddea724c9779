package dataset

import "math/rand"

// Split shuffles items with a seeded source and cuts them at floor(len*ratio).
// The input slice is not modified.
func Split[T any](items []T, ratio float64, seed int64) (train, val []T) {
	shuffled := make([]T, len(items))
	copy(shuffled, items)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	idx := int(float64(len(shuffled)) * ratio)
	if idx < 0 {
		idx = 0
	}
	if idx > len(shuffled) {
		idx = len(shuffled)
	}
	return shuffled[:idx], shuffled[idx:]
}
