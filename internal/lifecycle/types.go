// Package lifecycle decides what happens to defects after a test runs: file a
// new one, refresh the one already tracking the failure, close duplicates, or
// close the defect when the test passes again.
//
// Per test case, defects move through NoBug -> Open -> (Duplicate | Stale) ->
// Closed. Closed and stale defects are never reopened; a later failure with
// the same fingerprint files a new defect.
package lifecycle

import (
	"github.com/steveyegge/defects/internal/fingerprint"
	"github.com/steveyegge/defects/internal/table"
	"github.com/steveyegge/defects/internal/tracker"
)

// Outcome is the result of one test execution, as reported by the runner.
type Outcome struct {
	TestKey     string                  `json:"test" yaml:"test"`
	Summary     string                  `json:"summary,omitempty" yaml:"summary,omitempty"`
	Passed      bool                    `json:"passed" yaml:"passed"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint" yaml:"fingerprint"`
	Details     string                  `json:"details,omitempty" yaml:"details,omitempty"`
	Attachments []string                `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	// Resolution closes the tracking defect when the test passes. Empty uses
	// Options.FixedResolution.
	Resolution string `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// Action is what the manager did for one outcome.
type Action string

const (
	ActionCreated Action = "created" // NoBug -> Open
	ActionUpdated Action = "updated" // Open -> Open, body and evidence refreshed
	ActionTracked Action = "tracked" // an open defect covers another iteration; nothing written
	ActionClosed  Action = "closed"  // Open -> Closed after a pass
	ActionNone    Action = "none"    // passed with nothing open
	ActionSkipped Action = "skipped" // a collaborator call failed; state left as it was
)

// Result reports the handling of one outcome. Err is set when a collaborator
// call failed; Action is then ActionSkipped unless the main transition had
// already succeeded (e.g. the defect was created but an upload failed).
type Result struct {
	TestKey    string   `json:"test"`
	Action     Action   `json:"action"`
	Defect     string   `json:"defect,omitempty"`
	Duplicates []string `json:"duplicates,omitempty"`
	Err        error    `json:"-"`
}

// Options are the already-resolved settings the manager runs with.
type Options struct {
	Project             string
	IssueType           string
	LinkType            string
	Labels              []string
	ClosedStatus        string
	FixedResolution     string
	DuplicateResolution string
	DuplicateLabel      string
	Statuses            tracker.StatusPolicy
	BucketSize          int
	IncludeDataSource   bool
	Codec               table.CodecOptions
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		IssueType:           "Bug",
		LinkType:            "Relates",
		ClosedStatus:        "Done",
		FixedResolution:     "Fixed",
		DuplicateResolution: "Duplicate",
		DuplicateLabel:      "Duplicate",
		Statuses:            tracker.DefaultStatusPolicy(),
		BucketSize:          8,
		Codec:               table.DefaultCodecOptions(),
	}
}

// Stats summarizes a batch of results.
type Stats struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Tracked    int `json:"tracked"`
	Closed     int `json:"closed"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
}

// Summarize counts results by action.
func Summarize(results []Result) Stats {
	var s Stats
	for _, r := range results {
		switch r.Action {
		case ActionCreated:
			s.Created++
		case ActionUpdated:
			s.Updated++
		case ActionTracked:
			s.Tracked++
		case ActionClosed:
			s.Closed++
		case ActionSkipped:
			s.Skipped++
		}
		s.Duplicates += len(r.Duplicates)
		if r.Err != nil {
			s.Errors++
		}
	}
	return s
}
