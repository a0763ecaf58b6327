package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	statements []string
}

func (r *recordingExecer) Exec(_ context.Context, sql string) error {
	r.statements = append(r.statements, sql)
	return nil
}

func TestCache_SchemaStatements(t *testing.T) {
	t.Parallel()

	content := `-- comment
CREATE TABLE a (
    id INT -- trailing notes stay with the statement
);

  -- indented comment
CREATE INDEX i ON a (id);;
SELECT 1`
	require.Equal(t, []string{
		"CREATE TABLE a (\n    id INT -- trailing notes stay with the statement\n)",
		"CREATE INDEX i ON a (id)",
		"SELECT 1",
	}, schemaStatements(content))
	require.Empty(t, schemaStatements("-- nothing here\n\n"))
}

func TestCache_RunMigrations_AppliesEmbeddedSchema(t *testing.T) {
	t.Parallel()

	rec := &recordingExecer{}
	require.NoError(t, RunMigrations(t.Context(), discardLogger(), rec))
	require.Len(t, rec.statements, 2)
	require.Contains(t, rec.statements[0], "CREATE TABLE IF NOT EXISTS cached_queries")
	require.Contains(t, rec.statements[1], "CREATE INDEX IF NOT EXISTS")
}
