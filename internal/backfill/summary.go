package backfill

import "fmt"

// Outcome is the result of processing one listing.
type Outcome string

const (
	// OutcomeUpdated means coordinates were written for the listing.
	OutcomeUpdated Outcome = "updated"
	// OutcomeNoMatch means the provider had no usable result.
	OutcomeNoMatch Outcome = "no_match"
	// OutcomeSkipped means the listing had no address text to send.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeQuotaExhausted means the provider was still over quota after
	// the retry. The listing is left for a later run.
	OutcomeQuotaExhausted Outcome = "quota_exhausted"
	// OutcomeFailed means the geocode call failed for another reason.
	OutcomeFailed Outcome = "failed"
)

// Summary counts what a run did. Processed is the sum of the per-outcome
// counters.
type Summary struct {
	Total          int
	Processed      int
	Updated        int
	NoMatch        int
	Skipped        int
	QuotaExhausted int
	Failed         int
}

// Add returns s with one more processed row of the given outcome.
func (s Summary) Add(o Outcome) Summary {
	s.Processed++
	switch o {
	case OutcomeUpdated:
		s.Updated++
	case OutcomeNoMatch:
		s.NoMatch++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeQuotaExhausted:
		s.QuotaExhausted++
	case OutcomeFailed:
		s.Failed++
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("updated %d/%d rows (no match %d, skipped %d, quota exhausted %d, failed %d)",
		s.Updated, s.Total, s.NoMatch, s.Skipped, s.QuotaExhausted, s.Failed)
}
