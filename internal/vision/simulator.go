package vision

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Simulator returns between three and six distinct tags drawn at random from
// its vocabulary, ignoring the image itself. It stands in for a real
// vision backend during demos and offline runs.
type Simulator struct {
	vocabulary Vocabulary

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator returns a simulator drawing from vocabulary, which is read on
// every call. A zero seed seeds from the clock; any other seed makes the tag
// sequence reproducible for an unchanged vocabulary.
func NewSimulator(vocabulary Vocabulary, seed uint64) *Simulator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if vocabulary == nil {
		vocabulary = Tags(nil)
	}
	return &Simulator{
		vocabulary: vocabulary,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Detect implements [Detector].
func (s *Simulator) Detect(ctx context.Context, _ string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vocab := s.vocabulary.AllTags()
	if len(vocab) == 0 {
		return []string{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(3+s.rng.IntN(4), len(vocab))
	picked := make([]string, 0, n)
	for _, i := range s.rng.Perm(len(vocab))[:n] {
		picked = append(picked, vocab[i])
	}
	return picked, nil
}
