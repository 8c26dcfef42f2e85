// Package adjudicate wraps an Adjudicator backend with retries and the
// verbatim-choice check: a reply is accepted only if its text equals the
// picked candidate modulo whitespace.
package adjudicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackzampolin/pagemerge/internal/backoff"
	"github.com/jackzampolin/pagemerge/internal/providers"
)

// ErrValidation is returned when a backend reply names a candidate but
// its text does not match that candidate.
var ErrValidation = errors.New("adjudication reply failed validation")

// Verdict is an accepted adjudication.
type Verdict struct {
	// Pick is providers.PickA or providers.PickB.
	Pick string

	// Text is the picked candidate exactly as supplied in the request, not
	// the backend's echo of it.
	Text string

	Backend  string
	Model    string
	Attempts int
}

// Client validates and retries calls to one adjudicator backend.
type Client struct {
	backend providers.Adjudicator
	policy  backoff.Policy
	logger  *slog.Logger
}

// New creates a Client. A nil logger discards output.
func New(backend providers.Adjudicator, policy backoff.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{backend: backend, policy: policy, logger: logger}
}

// Backend returns the backend identifier.
func (c *Client) Backend() string {
	return c.backend.Name()
}

// Adjudicate asks the backend to choose between req.CandidateA and
// req.CandidateB. Transport failures, malformed replies and validation
// failures are all retried under the client's policy; once it is
// exhausted the last error is returned wrapped in backoff.ErrExhausted.
func (c *Client) Adjudicate(ctx context.Context, req providers.AdjudicationRequest) (*Verdict, error) {
	var (
		verdict  *Verdict
		attempts int
	)
	err := c.policy.Do(ctx, "adjudicate", func(ctx context.Context) error {
		attempts++
		resp, err := c.backend.Select(ctx, &req)
		if err != nil {
			return err
		}
		v, err := Validate(&req, resp)
		if err != nil {
			c.logger.Debug("adjudication rejected",
				"backend", c.backend.Name(), "attempt", attempts, "pick", resp.Pick, "error", err)
			return err
		}
		v.Backend = c.backend.Name()
		v.Model = resp.Model
		verdict = v
		return nil
	})
	if err != nil {
		c.logger.Warn("adjudication failed", "backend", c.backend.Name(), "attempts", attempts, "error", err)
		return nil, err
	}
	verdict.Attempts = attempts
	return verdict, nil
}

// Validate checks resp against req and returns the verdict it encodes.
func Validate(req *providers.AdjudicationRequest, resp *providers.AdjudicationResponse) (*Verdict, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty reply", ErrValidation)
	}
	var candidate string
	switch strings.ToUpper(strings.TrimSpace(resp.Pick)) {
	case providers.PickA:
		candidate = req.CandidateA
	case providers.PickB:
		candidate = req.CandidateB
	default:
		return nil, fmt.Errorf("%w: pick %q is neither A nor B", ErrValidation, resp.Pick)
	}
	if !EqualIgnoringWhitespace(resp.Text, candidate) {
		return nil, fmt.Errorf("%w: returned text does not match option %s", ErrValidation, strings.ToUpper(strings.TrimSpace(resp.Pick)))
	}
	return &Verdict{Pick: strings.ToUpper(strings.TrimSpace(resp.Pick)), Text: candidate}, nil
}

// EqualIgnoringWhitespace compares a and b after collapsing every run of
// whitespace to a single space and trimming both ends.
func EqualIgnoringWhitespace(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}
