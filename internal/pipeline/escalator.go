package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/jackzampolin/pagemerge/internal/adjudicate"
	"github.com/jackzampolin/pagemerge/internal/providers"
	"github.com/jackzampolin/pagemerge/internal/selector"
)

// boundedEscalator caps the number of adjudication calls in flight across
// all pages.
type boundedEscalator struct {
	sem   *semaphore.Weighted
	inner selector.Escalator
}

// Bound wraps esc so that at most n adjudications run at once. A nil esc
// stays nil.
func Bound(esc selector.Escalator, n int) selector.Escalator {
	if esc == nil {
		return nil
	}
	if n < 1 {
		n = 1
	}
	return &boundedEscalator{sem: semaphore.NewWeighted(int64(n)), inner: esc}
}

func (b *boundedEscalator) Adjudicate(ctx context.Context, req providers.AdjudicationRequest) (*adjudicate.Verdict, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.sem.Release(1)
	return b.inner.Adjudicate(ctx, req)
}

func (b *boundedEscalator) Backend() string {
	return b.inner.Backend()
}
