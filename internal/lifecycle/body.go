package lifecycle

import (
	"fmt"
	"strings"

	"github.com/steveyegge/defects/internal/fingerprint"
)

// Body renders the description for a defect: the fingerprint document,
// followed by the failure details when there are any. Details go in a
// {noformat} block, which the fingerprint parser skips; a "{noformat}" inside
// them is broken up so the block cannot end early.
func Body(o Outcome, opts Options) string {
	lb := opts.Codec.LineBreak
	if lb == "" {
		lb = DefaultOptions().Codec.LineBreak
	}
	body := fingerprint.Render(o.Fingerprint, opts.Codec)
	if o.Details != "" {
		body += lb + "h4. Failure" + lb + "{noformat}" + detailsMarker.Replace(o.Details) + "{noformat}"
	}
	return body
}

var detailsMarker = strings.NewReplacer("{noformat}", "{ noformat}")

func summary(o Outcome) string {
	if o.Summary != "" {
		return o.Summary
	}
	if o.Fingerprint.Driver == "" {
		return fmt.Sprintf("%s failed", o.TestKey)
	}
	return fmt.Sprintf("%s failed on %s", o.TestKey, o.Fingerprint.Driver)
}
