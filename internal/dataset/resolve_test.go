package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/defects/internal/fingerprint"
	"github.com/steveyegge/defects/internal/storage/memory"
	"github.com/steveyegge/defects/internal/table"
	"github.com/steveyegge/defects/internal/tracker"
)

func TestResolve(t *testing.T) {
	ctx := context.Background()
	store := memory.New("PRE")
	store.Put(&tracker.Issue{Key: "PRE-2", Body: `h4. Local Data Source\r\n||browser||\r\n|chrome|\r\n|firefox|\r\n|edge|`})
	store.Put(&tracker.Issue{Key: "PRE-1", Body: "||env||\n|qa|"})
	store.Put(&tracker.Issue{Key: "PRE-3", Body: "Just prose, no table."})
	for _, k := range []string{"PRE-2", "PRE-1", "PRE-3"} {
		store.Link("TC-1", k, "Precondition")
	}
	store.Link("TC-1", "BUG-9", "Relates")

	primary := mk([]string{"user"}, []any{"alice"}, []any{"bob"})
	r := &Resolver{Store: store, LinkType: "Precondition"}
	got, err := r.Resolve(ctx, "TC-1", primary)
	require.NoError(t, err)

	// PRE-1 (1 row) broadcasts env onto both users; PRE-2 (3 rows) then
	// expands them: 3 + 3*1 rows.
	assert.Equal(t, 6, got.Len())
	assert.ElementsMatch(t, []string{"user", "env", "browser"}, got.Columns)
	for _, row := range got.Rows {
		assert.Equal(t, "qa", row["env"])
	}
}

func TestResolve_CollaboratorFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New("PRE")
	store.Put(&tracker.Issue{Key: "PRE-1", Body: "||env||\n|qa|"})
	store.Link("TC-1", "PRE-1", "Precondition")
	boom := errors.New("timeout")
	store.FailOn("get", "PRE-1", boom)

	r := &Resolver{Store: store, LinkType: "Precondition"}
	_, err := r.Resolve(ctx, "TC-1", table.Table{})
	require.Error(t, err)

	var ce *tracker.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "PRE-1", ce.Key)
	assert.True(t, errors.Is(err, boom))
}

func TestTableFromBody(t *testing.T) {
	rendered := fingerprint.Render(fingerprint.Fingerprint{
		Driver:       "Chrome",
		Platform:     "Linux",
		Capabilities: table.KeyValueMap{"browserName": "chrome"},
	}, table.DefaultCodecOptions())

	tests := []struct {
		name string
		body string
		ok   bool
		cols []string
		rows [][]string
	}{
		{"labelled section", "|Driver|Chrome|\nOn Iteration: 0\nLocal Data Source\n||a||b||\n|1|2|", true, []string{"a", "b"}, [][]string{{"1", "2"}}},
		{"bare table", "||x||\n|1|", true, []string{"x"}, [][]string{{"1"}}},
		{"header only", "||x||", false, nil, nil},
		{"no table", "prose", false, nil, nil},
		{"environment table only", rendered, false, nil, nil},
		{"environment table then data", rendered + `\r\n||user||\r\n|alice|`, true, []string{"user"}, [][]string{{"alice"}}},
		{"first of two tables", "||a||b||\n|1|2|\ntext\n||c||\n|3|", true, []string{"a", "b"}, [][]string{{"1", "2"}}},
		{"header ends a table", "||a||\n|1|\n||c||\n|3|", true, []string{"a"}, [][]string{{"1"}}},
		{"header only then table", "||x||\n\n||y||\n|2|", true, []string{"y"}, [][]string{{"2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TableFromBody(tt.body)
			if ok != tt.ok {
				t.Fatalf("TableFromBody() ok = %v, want %v (got %+v)", ok, tt.ok, got)
			}
			if ok {
				assert.Equal(t, tt.cols, got.Columns)
				assert.Equal(t, tt.rows, got.Strings())
			}
		})
	}
}
