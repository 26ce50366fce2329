package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

// execute runs the root command with args and captures its output.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

type cliFixture struct {
	t     *testing.T
	db    string
	clock *testutil.DeterministicClock
}

func newCLIFixture(t *testing.T) *cliFixture {
	return &cliFixture{
		t:     t,
		db:    filepath.Join(t.TempDir(), "cli.db"),
		clock: testutil.NewDeterministicClock(),
	}
}

func (f *cliFixture) run(args ...string) (string, string, error) {
	f.t.Helper()
	return execute(f.t, &RootOptions{Clock: f.clock}, append([]string{"--db", f.db}, args...)...)
}

func TestSync_MessageScenario(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run("sync", "mymessage", "Hello=29")
	require.NoError(t, err)
	assert.Equal(t, "✓ Synced mymessage: pushed=1 pulled=0 unchanged=0 discovered=0\n", out)

	out, _, err = f.run("sync", "mymessage", "Goodbye=73")
	require.NoError(t, err)
	assert.Equal(t, "✓ Synced mymessage: pushed=1 pulled=0 unchanged=1 discovered=0\n", out)

	out, _, err = f.run("get", "mymessage")
	require.NoError(t, err)
	assert.Equal(t, "Goodbye=73\nHello=29\n", out)

	out, _, err = f.run("sync", "mymessage", "Goodbye=20")
	require.NoError(t, err)
	assert.Equal(t, "✓ Synced mymessage: pushed=1 pulled=0 unchanged=1 discovered=0\n", out)

	out, _, err = f.run("get", "mymessage")
	require.NoError(t, err)
	assert.Equal(t, "Goodbye=20\nHello=29\n", out)
}

func TestSync_SameValueIsUnchanged(t *testing.T) {
	f := newCLIFixture(t)

	_, _, err := f.run("sync", "doc", "a=1")
	require.NoError(t, err)

	out, _, err := f.run("sync", "doc", "a=1")
	require.NoError(t, err)
	assert.Contains(t, out, "pushed=0 pulled=0 unchanged=1")
}

func TestSync_FileAndArguments(t *testing.T) {
	f := newCLIFixture(t)
	file := filepath.Join(t.TempDir(), "updates.yaml")
	require.NoError(t, os.WriteFile(file, []byte("a: 1\nb: two\n"), 0o644))

	_, _, err := f.run("sync", "doc", "--file", file, "b=three", "c=x=y")
	require.NoError(t, err)

	out, _, err := f.run("get", "doc")
	require.NoError(t, err)
	assert.Equal(t, "a=1\nb=three\nc=x=y\n", out)
}

func TestSync_InvalidAssignment(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run("sync", "doc", "novalue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeArgs)

	_, _, err = f.run("sync", "doc", "=v")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSync_InvalidName(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run("sync", "bad-name", "a=1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeShapeMismatch)
}

func TestSync_VerboseLogsToStderr(t *testing.T) {
	f := newCLIFixture(t)

	out, errOut, err := f.run("sync", "doc", "a=1", "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Set a=1")
	assert.Contains(t, errOut, "sync pass committed")
	assert.NotContains(t, out, "Set a=1")
}

func TestSync_JSON(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run("sync", "doc", "a=1", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   SyncResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, SyncResult{Name: "doc", Pushed: 1}, resp.Data)
}

func TestGet_JSON(t *testing.T) {
	f := newCLIFixture(t)
	_, _, err := f.run("sync", "doc", "a=1", "b=2")
	require.NoError(t, err)

	out, _, err := f.run("get", "doc", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string  `json:"status"`
		Data   []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []Entry{
		{Key: "a", Value: "1", Time: 1},
		{Key: "b", Value: "2", Time: 2},
	}, resp.Data)
}

func TestGet_NotFound(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run("get", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestGet_ShapeMismatch(t *testing.T) {
	f := newCLIFixture(t)

	// Store a group under the name through the engine directly.
	st, err := store.Open(f.db)
	require.NoError(t, err)
	e, err := engine.New(st)
	require.NoError(t, err)
	p := testutil.NewProfile(f.clock, "u1", "Ada", 36)
	_, err = e.SyncRemote(context.Background(), "profile", &p)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := f.run("get", "profile")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeShapeMismatch)
}

func TestTables(t *testing.T) {
	f := newCLIFixture(t)
	_, _, err := f.run("sync", "mymessage", "Hello=29")
	require.NoError(t, err)
	_, _, err = f.run("sync", "mymessage", "Hello=30")
	require.NoError(t, err)

	out, _, err := f.run("tables")
	require.NoError(t, err)
	assert.Equal(t, "Roots (1):\n  mymessage: collection[leaf], 2 pass(es)\nTables (1):\n  mymessage\n", out)

	out, _, err = f.run("tables", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data TablesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Roots, 1)
	assert.Equal(t, int64(2), resp.Data.Roots[0].Passes)
	assert.Equal(t, []string{"mymessage"}, resp.Data.Tables)
}
