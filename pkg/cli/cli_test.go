package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruddy/internal/client"
	"ruddy/internal/config"
	"ruddy/internal/domain"
	"ruddy/internal/engine"
	"ruddy/internal/flight"
	"ruddy/internal/locator"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	engine *engine.DuckDB
	loc    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	isolateEnv(t)

	e, err := engine.Open(context.Background(), domain.ConnectionDefaults{}, discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	srv := flight.NewServer(locator.MustParse("grpc://127.0.0.1:0"), e, discard, flight.Options{})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &fixture{engine: e, loc: srv.Location()}
}

// isolateEnv keeps the developer's profile file and environment out of
// the command under test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RUDDY_LOCATOR", "")
	t.Setenv("RUDDY_OUTPUT", "")
	t.Setenv("RUDDY_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("LOG_LEVEL", "error")
}

func (f *fixture) exec(t *testing.T, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		require.NoError(t, f.engine.Exec(context.Background(), stmt))
	}
}

func (f *fixture) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(append([]string{"--locator", f.loc}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func jsonLines(t *testing.T, s string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var row map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		out = append(out, row)
	}
	return out
}

func TestTablesCommand(t *testing.T) {
	f := newFixture(t)
	f.exec(t,
		"CREATE TABLE t1 (a INTEGER, b VARCHAR)",
		"CREATE TABLE t2 (x DOUBLE)",
	)

	t.Run("json", func(t *testing.T) {
		stdout, stderr, code := f.run(t, "tables", "-o", "json")
		require.Equal(t, 0, code, stderr)

		var views []datasetView
		require.NoError(t, json.Unmarshal([]byte(stdout), &views))
		require.Len(t, views, 2)
		assert.Equal(t, "t1", views[0].Name)
		assert.Equal(t, "memory", views[0].Catalog)
		assert.Equal(t, "main", views[0].Schema)
		require.Len(t, views[0].Columns, 2)
		assert.Equal(t, columnView{Name: "a", Type: "int32", Nullable: true}, views[0].Columns[0])
		assert.Equal(t, "t2", views[1].Name)
	})

	t.Run("table", func(t *testing.T) {
		stdout, stderr, code := f.run(t, "tables", "-o", "table")
		require.Equal(t, 0, code, stderr)
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, []string{"CATALOG", "SCHEMA", "NAME", "COLUMNS"}, strings.Fields(lines[0]))
		assert.Equal(t, []string{"memory", "main", "t1", "2"}, strings.Fields(lines[1]))
		assert.Equal(t, []string{"memory", "main", "t2", "1"}, strings.Fields(lines[2]))
	})
}

func TestTablesCommand_EmptyServerFails(t *testing.T) {
	f := newFixture(t)

	stdout, _, code := f.run(t, "tables", "-o", "json")
	assert.Equal(t, 1, code)

	var errObj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &errObj))
	assert.Equal(t, flight.ReasonNoSuchDataset, errObj["reason"])
}

func TestDescribeCommand(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "CREATE TABLE t1 (a INTEGER, b VARCHAR)")

	stdout, stderr, code := f.run(t, "describe", "main.t1", "-o", "table")
	require.Equal(t, 0, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "memory.main.t1", lines[0])
	assert.Equal(t, []string{"COLUMN", "TYPE", "NULLABLE"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"a", "int32", "true"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"b", "utf8", "true"}, strings.Fields(lines[3]))

	t.Run("sql", func(t *testing.T) {
		stdout, stderr, code := f.run(t, "describe", "--sql", "SELECT 1::BIGINT AS n", "-o", "json")
		require.Equal(t, 0, code, stderr)
		var v datasetView
		require.NoError(t, json.Unmarshal([]byte(stdout), &v))
		assert.Equal(t, []columnView{{Name: "n", Type: "int64", Nullable: true}}, v.Columns)
	})

	t.Run("missing", func(t *testing.T) {
		stdout, _, code := f.run(t, "describe", "nope", "-o", "json")
		assert.Equal(t, 1, code)
		assert.Contains(t, stdout, flight.ReasonNoSuchDataset)
	})

	t.Run("invalid address", func(t *testing.T) {
		stdout, _, code := f.run(t, "describe", "a.b.c.d", "-o", "json")
		assert.Equal(t, 1, code)
		assert.Contains(t, stdout, flight.ReasonInvalidAddress)
	})
}

func TestQueryCommand(t *testing.T) {
	f := newFixture(t)

	t.Run("json lines", func(t *testing.T) {
		stdout, stderr, code := f.run(t, "query", "SELECT range AS n FROM range(3)", "-o", "json")
		require.Equal(t, 0, code, stderr)
		rows := jsonLines(t, stdout)
		require.Len(t, rows, 3)
		for i, row := range rows {
			assert.EqualValues(t, i, row["n"])
		}
	})

	t.Run("table with nulls", func(t *testing.T) {
		stdout, stderr, code := f.run(t, "query", "SELECT", "1 AS a, NULL::VARCHAR AS b", "-o", "table")
		require.Equal(t, 0, code, stderr)
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, []string{"A", "B"}, strings.Fields(lines[0]))
		assert.Equal(t, []string{"1", "NULL"}, strings.Fields(lines[1]))
	})

	t.Run("engine error", func(t *testing.T) {
		stdout, _, code := f.run(t, "query", "SELEKT 1", "-o", "json")
		assert.Equal(t, 1, code)
		assert.Contains(t, stdout, flight.ReasonEngine)
	})
}

func TestReadCommand(t *testing.T) {
	f := newFixture(t)
	f.exec(t,
		"CREATE TABLE people (id BIGINT, name VARCHAR)",
		"INSERT INTO people VALUES (1, 'ada'), (2, 'grace')",
	)

	stdout, stderr, code := f.run(t, "read", "people", "-o", "json")
	require.Equal(t, 0, code, stderr)
	rows := jsonLines(t, stdout)
	require.Len(t, rows, 2)
	assert.Equal(t, "ada", rows[0]["name"])
	assert.Equal(t, "grace", rows[1]["name"])
}

func TestWriteCommand(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,ada\n2,grace\n"), 0o600))

	stdout, stderr, code := f.run(t, "write", "staging.people", "--csv", path, "-o", "table")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "wrote 2 rows to staging.people\n", stdout)

	stdout, stderr, code = f.run(t, "write", "staging.people", "--csv", path, "-o", "json")
	require.Equal(t, 0, code, stderr)
	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.EqualValues(t, 2, res["rows"])

	var n int
	require.NoError(t, f.engine.DB().QueryRow("SELECT count(*) FROM staging.people").Scan(&n))
	assert.Equal(t, 4, n)
}

func TestWriteCommand_Errors(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("id,name\n"), 0o600))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing csv flag", []string{"write", "t"}, "csv"},
		{"missing file", []string{"write", "t", "--csv", filepath.Join(dir, "nope.csv")}, "open csv"},
		{"no rows", []string{"write", "t", "--csv", empty}, "no rows"},
		{"bad delimiter", []string{"write", "t", "--csv", empty, "--delimiter", ";;"}, "delimiter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := f.run(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute([]string{"version", "-o", "json"}, &stdout, &stderr))

	var v map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &v))
	assert.Equal(t, version, v["version"])
	assert.Equal(t, commit, v["commit"])
}

func TestCommandsCommand(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute([]string{"commands", "--filter", "csv", "-o", "json"}, &stdout, &stderr), stderr.String())

	var entries []CommandEntry
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "write", entries[0].Path)
	assert.Equal(t, "NAME --csv FILE", entries[0].Args)

	var names []string
	for _, f := range entries[0].Flags {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"csv", "delimiter"}, names)
}

func TestCommandsCommand_Table(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, execute([]string{"commands", "-o", "table"}, &stdout, &stderr))

	out := stdout.String()
	for _, name := range []string{"serve", "tables", "describe", "query", "read", "write", "version"} {
		assert.Contains(t, out, name)
	}
	assert.NotContains(t, out, "completion")
}

func TestInvalidOutputFormat(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, execute([]string{"version", "-o", "yaml"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unsupported output format")
}

func TestInvalidLocator(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, execute([]string{"tables", "--locator", "no-scheme"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "missing scheme")
}

func TestProfileSuppliesLocatorAndOutput(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "CREATE TABLE t1 (a INTEGER)")

	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "default",
		Profiles: map[string]Profile{
			"dev": {Locator: f.loc, Output: "table"},
		},
	}))

	var stdout, stderr bytes.Buffer
	code := execute([]string{"tables", "--profile", "dev"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "CATALOG")

	stdout.Reset()
	stderr.Reset()
	code = execute([]string{"tables", "--profile", "prod"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `profile "prod" not found`)
}

func TestEnvLocatorOverridesProfile(t *testing.T) {
	f := newFixture(t)
	f.exec(t, "CREATE TABLE t1 (a INTEGER)")
	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "default",
		Profiles:       map[string]Profile{"default": {Locator: "grpc://127.0.0.1:1"}},
	}))
	t.Setenv("RUDDY_LOCATOR", f.loc)

	var stdout, stderr bytes.Buffer
	code := execute([]string{"tables", "-o", "json"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"t1"`)
}

func TestServe(t *testing.T) {
	isolateEnv(t)
	a := &app{
		locator: "grpc://127.0.0.1:0?schema=sales",
		settings: &config.Settings{
			MetricsAddr:     "127.0.0.1:0",
			ShutdownTimeout: 5 * time.Second,
		},
		logger: discard,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan *flight.Server, 1)
	done := make(chan error, 1)
	go func() {
		done <- a.serve(ctx, 2, func(s *flight.Server) { ready <- s })
	}()

	var srv *flight.Server
	select {
	case srv = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	c, err := client.New(locator.MustParse(srv.Location()), discard)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	n, err := c.Write(context.Background(), "events", mustCSV(t, "id\n1\n2\n3\n"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	ds, err := c.DescribePath(context.Background(), "events")
	require.NoError(t, err)
	assert.Equal(t, "sales", ds.Table.SchemaName)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestErrorReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrInvalidAddress("x"), flight.ReasonInvalidAddress},
		{domain.ErrInvalidTicket("x"), flight.ReasonInvalidTicket},
		{fmt.Errorf("wrapped: %w", domain.ErrNoSuchDataset("x")), flight.ReasonNoSuchDataset},
		{domain.ErrEngine("q", io.ErrUnexpectedEOF), flight.ReasonEngine},
		{domain.ErrTransport("dial", io.ErrUnexpectedEOF), "TRANSPORT"},
		{io.EOF, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorReason(tt.err), tt.err.Error())
	}
}

func mustCSV(t *testing.T, data string) array.RecordReader {
	t.Helper()
	rdr, err := readCSV(strings.NewReader(data), ',')
	require.NoError(t, err)
	t.Cleanup(rdr.Release)
	return rdr
}
