// Package classifier содержит реализации domain.Classifier.
package classifier

import (
	"context"
	"hash/fnv"
	"time"

	"feed-engine/internal/domain"
)

// Labels — известные классы выражений лица.
var Labels = []string{"joy", "sadness", "anger", "surprise", "disgust", "fear", "neutral"}

// Stub детерминированно выводит метку из ссылки на снимок. Используется в dev и тестах.
type Stub struct {
	Delay time.Duration
}

var _ domain.Classifier = (*Stub)(nil)

// NewStub создаёт заглушку.
func NewStub(delay time.Duration) *Stub {
	return &Stub{Delay: delay}
}

// Classify возвращает распределение с одной доминирующей меткой.
func (s *Stub) Classify(ctx context.Context, req domain.ClassifyRequest) (domain.ClassifyResult, error) {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return domain.ClassifyResult{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(req.ImageRef))
	_, _ = h.Write(req.Image)
	sum := h.Sum32()

	dominant := Labels[sum%uint32(len(Labels))]
	confidence := 0.5 + float64(sum%50)/100
	rest := (1 - confidence) / float64(len(Labels)-1)
	scores := make(map[string]float64, len(Labels))
	for _, label := range Labels {
		scores[label] = rest
	}
	scores[dominant] = confidence
	return domain.ClassifyResult{Scores: scores}, nil
}
