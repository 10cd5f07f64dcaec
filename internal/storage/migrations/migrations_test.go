package migrations

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- leading comment; with a semicolon
CREATE TABLE a (x String DEFAULT 'a;b');
/* block; comment */ INSERT INTO a VALUES ('it''s;ok');
SELECT ` + "`weird;col`" + ` FROM a -- trailing; comment
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x String DEFAULT 'a;b')", stmts[0])
	assert.Equal(t, "INSERT INTO a VALUES ('it''s;ok')", stmts[1])
	assert.Equal(t, "SELECT `weird;col` FROM a", stmts[2])
}

func TestSplitStatements_Empty(t *testing.T) {
	assert.Empty(t, splitStatements("-- nothing here\n\n;;\n"))
}

func TestRender_QualifiesAggregatesTable(t *testing.T) {
	all, err := Load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, 1, all[0].Version)

	stmts, err := render(all[0].SQL, "olist_analytics")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS olist_analytics.sla_aggregates")
	assert.NotContains(t, stmts[0], DatasetPlaceholder)
}

func TestRender_RejectsBadDataset(t *testing.T) {
	for _, ds := range []string{"", "a.b", "x; DROP DATABASE y", "1abc"} {
		_, err := render("SELECT 1", ds)
		assert.Error(t, err, "dataset %q", ds)
	}
}

func TestLoad_OrdersAndValidates(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.sql":  {Data: []byte("SELECT 10")},
		"m/002_second.sql": {Data: []byte("SELECT 2")},
		"m/README.md":      {Data: []byte("ignored")},
	}
	all, err := Load(fsys, "m")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Version)
	assert.Equal(t, "010_later.sql", all[1].Name)

	fsys["m/abc_bad.sql"] = &fstest.MapFile{Data: []byte("SELECT 0")}
	_, err = Load(fsys, "m")
	assert.Error(t, err)

	delete(fsys, "m/abc_bad.sql")
	fsys["m/002_dup.sql"] = &fstest.MapFile{Data: []byte("SELECT 2")}
	_, err = Load(fsys, "m")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "share version 2"))
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := pending(all, map[int]bool{1: true, 3: true})
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Version)

	assert.Empty(t, pending(all, map[int]bool{1: true, 2: true, 3: true}))
}

func TestEmbeddedPostgresMigrations(t *testing.T) {
	all, err := Load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Contains(t, all[0].SQL, "pipeline_runs")
}
