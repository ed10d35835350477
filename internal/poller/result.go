package poller

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/model"
)

// Stage names the cycle step a source failed in.
type Stage string

const (
	StagePlan   Stage = "plan"
	StageFetch  Stage = "fetch"
	StageStore  Stage = "store"
	StageCommit Stage = "commit"
)

// SourceError is one source's failure within a cycle.
type SourceError struct {
	Source string
	Stage  Stage
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Stage, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }

// Mismatch is a secondary price that disagrees with the primary by at least
// the reconciliation threshold.
type Mismatch struct {
	Symbol         string
	Primary        string
	Secondary      string
	PrimaryPrice   decimal.Decimal
	SecondaryPrice decimal.Decimal
	Diff           decimal.Decimal
}

// CycleResult summarizes one poll cycle. A cycle with errors still counts as
// completed.
type CycleResult struct {
	ID         string
	Started    time.Time
	Duration   time.Duration
	Counts     map[model.EntityKind]int
	Errors     []SourceError
	Warnings   []string
	Mismatches []Mismatch
	// Committed is the number of watermarks advanced.
	Committed int
}

func newCycleResult(id string, started time.Time) CycleResult {
	return CycleResult{
		ID:      id,
		Started: started,
		Counts: map[model.EntityKind]int{
			model.KindMacroNews:   0,
			model.KindCompanyNews: 0,
			model.KindPrice:       0,
			model.KindSocial:      0,
		},
	}
}

// Total returns the number of items processed across all kinds.
func (r CycleResult) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// FailedSources returns the names of sources with at least one error.
func (r CycleResult) FailedSources() []string {
	seen := make(map[string]bool, len(r.Errors))
	var out []string
	for _, e := range r.Errors {
		if !seen[e.Source] {
			seen[e.Source] = true
			out = append(out, e.Source)
		}
	}
	return out
}
