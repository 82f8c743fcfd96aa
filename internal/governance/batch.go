package governance

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result pairs one batch input with its own verdict or error.
type Result struct {
	Input   EvaluateInput `json:"input"`
	Verdict *Verdict      `json:"verdict,omitempty"`
	Err     error         `json:"-"`
	Error   string        `json:"error,omitempty"`
}

// EvaluateMany evaluates candidates concurrently with at most Workers in
// flight. A failing candidate does not stop the others; results keep the
// order of inputs.
func (s *Service) EvaluateMany(ctx context.Context, inputs []EvaluateInput) []Result {
	results := make([]Result, len(inputs))
	workers := s.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, in := range inputs {
		results[i].Input = in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			v, err := s.EvaluateCandidate(ctx, in)
			if err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			results[i].Verdict = &v
			return nil
		})
	}
	_ = g.Wait()
	return results
}
