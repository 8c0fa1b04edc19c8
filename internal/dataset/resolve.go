package dataset

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/defects/internal/fingerprint"
	"github.com/steveyegge/defects/internal/table"
	"github.com/steveyegge/defects/internal/tracker"
)

// DefaultFetchLimit bounds concurrent issue fetches in Resolve.
const DefaultFetchLimit = 4

// Resolver gathers precondition tables from the issues linked to a test case.
type Resolver struct {
	Store    tracker.IssueStore
	LinkType string // e.g. "Precondition"; empty follows every link
	Logger   *slog.Logger
}

// Resolve merges primary with the table found in every issue linked to
// testKey. Linked issues are applied in key order; issues without a table
// are skipped.
func (r *Resolver) Resolve(ctx context.Context, testKey string, primary table.Table) (table.Table, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keys, err := r.Store.GetLinkedIssues(ctx, testKey, r.LinkType)
	if err != nil {
		return table.Table{}, tracker.Wrap("links", testKey, err)
	}
	sort.Strings(keys)

	bodies := make([]string, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultFetchLimit)
	for i, key := range keys {
		g.Go(func() error {
			issue, err := r.Store.GetIssue(gctx, key)
			if err != nil {
				return tracker.Wrap("get", key, err)
			}
			bodies[i] = issue.Body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return table.Table{}, err
	}

	var others []table.Table
	for i, body := range bodies {
		t, ok := TableFromBody(body)
		if !ok {
			logger.Debug("linked issue has no data table", "test", testKey, "issue", keys[i])
			continue
		}
		others = append(others, t)
	}
	merged := Merge(primary, others...)
	logger.Debug("resolved data set", "test", testKey, "sources", len(others), "rows", merged.Len())
	return merged, nil
}

// TableFromBody returns the "Local Data Source" table of an issue body, or
// failing that the first pipe table in it that is not a rendered
// environment table. A table is a header line followed by data lines, up to
// the next non-pipe line or header.
func TableFromBody(body string) (table.Table, bool) {
	doc := fingerprint.Parse(body)
	if ds := doc.Fingerprint.DataSource; ds != nil && !ds.IsEmpty() {
		return *ds, true
	}
	for _, block := range pipeTables(body) {
		t := table.DecodeTable(strings.Join(block, "\n"))
		if t.IsEmpty() || fingerprint.IsEnvironmentTable(t.Columns) {
			continue
		}
		return t, true
	}
	return table.Table{}, false
}

// pipeTables splits body into runs of pipe lines, each starting at a header.
// Pipe lines before any header are ignored.
func pipeTables(body string) [][]string {
	var (
		blocks  [][]string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, current)
		}
		current = nil
	}
	for _, line := range table.SplitLines(body) {
		line = strings.TrimSpace(line)
		switch {
		case table.IsHeaderRow(line):
			flush()
			current = []string{line}
		case strings.HasPrefix(line, "|") && current != nil:
			current = append(current, line)
		default:
			flush()
		}
	}
	flush()
	return blocks
}
