//go:build integration

package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/steveyegge/defects/internal/tracker"
)

func TestStoreAgainstDoltServer(t *testing.T) {
	ctx := context.Background()

	ctr, err := dolt.Run(ctx, "dolthub/dolt-sql-server:1.43.0",
		dolt.WithDatabase("defects"),
		dolt.WithUsername("defects"),
		dolt.WithPassword("defects"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := Open(ctx, dsn, "QA")
	require.NoError(t, err)
	defer s.Close()

	// Schema creation is idempotent.
	require.NoError(t, s.EnsureSchema(ctx))

	test, err := s.CreateIssue(ctx, tracker.IssueFields{Project: "QA", IssueType: "Test", Summary: "Login test"})
	require.NoError(t, err)

	first, err := s.CreateIssue(ctx, tracker.IssueFields{
		Project: "QA", IssueType: "Bug", Summary: "Login failed", Body: "v1",
		Labels: []string{"automation"},
		Link:   &tracker.Link{Type: "Relates", Key: test},
	})
	require.NoError(t, err)
	second, err := s.CreateIssue(ctx, tracker.IssueFields{
		Summary: "Login failed again",
		Link:    &tracker.Link{Type: "Relates", Key: test},
	})
	require.NoError(t, err)

	linked, err := s.GetLinkedIssues(ctx, test, "Relates")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, second}, linked)

	none, err := s.GetLinkedIssues(ctx, test, "Blocks")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.UpdateIssue(ctx, first, tracker.IssueFields{Body: "v2", AddLabels: []string{"Duplicate"}}))
	require.NoError(t, s.TransitionIssue(ctx, second, "Done", "Duplicate", "Duplicate of "+first+"."))

	got, err := s.GetIssue(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Body)
	assert.Equal(t, []string{"automation", "Duplicate"}, got.Labels)

	got, err = s.GetIssue(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "Done", got.Status)
	assert.Equal(t, "Duplicate", got.Fields["resolution"])

	path := filepath.Join(t.TempDir(), "screenshot.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))
	require.NoError(t, s.Upload(ctx, first, path))
	require.NoError(t, s.DeleteAll(ctx, first))
	assert.ErrorIs(t, s.Upload(ctx, "QA-999", path), tracker.ErrNotFound)

	_, err = s.GetIssue(ctx, "QA-999")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}
