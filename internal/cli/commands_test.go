package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/charsort/pkg/logger"
)

func init() {
	if err := logger.InitWith(io.Discard, "error", logger.FormatText); err != nil {
		panic(err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// executeJSON runs a command with --format json and decodes its data.
func executeJSON(t *testing.T, into any, args ...string) {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	require.NoError(t, err, out)
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	if into != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, into))
	}
}

type idOnly struct {
	ID int64 `json:"id"`
}

func newList(t *testing.T, db, algorithm string, names ...string) (int64, []int64) {
	t.Helper()
	var l idOnly
	executeJSON(t, &l, "list", "create", "favourites", "--algorithm", algorithm, "--db", db)
	chars := make([]int64, len(names))
	for i, name := range names {
		var c idOnly
		executeJSON(t, &c, "char", "add", fmt.Sprint(l.ID), name, "--fandom", "show", "--db", db)
		chars[i] = c.ID
	}
	return l.ID, chars
}

func TestInsertionSortSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "charsort.db")
	listID, chars := newList(t, db, "IS", "Ann", "Ben", "Cat")
	list := fmt.Sprint(listID)

	// Ann > Ben > Cat.
	rank := map[int64]int{chars[0]: 0, chars[1]: 1, chars[2]: 2}
	for i := 0; i < 10; i++ {
		var m *struct {
			A int64 `json:"a"`
			B int64 `json:"b"`
		}
		executeJSON(t, &m, "next", list, "--db", db)
		if m == nil {
			break
		}
		verdict := "a"
		if rank[m.B] < rank[m.A] {
			verdict = "b"
		}
		_, err := execute(t, "compare", list, fmt.Sprint(m.A), fmt.Sprint(m.B), verdict, "--db", db)
		require.NoError(t, err)
	}

	out, err := execute(t, "show", list, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "favourites (InsertionSort)")
	assert.Contains(t, out, "2/3 sorted")
	assert.NotContains(t, out, "next:")
	ann := strings.Index(out, "Ann (show)")
	ben := strings.Index(out, "Ben (show)")
	cat := strings.Index(out, "Cat (show)")
	assert.True(t, ann < ben && ben < cat, out)

	out, err = execute(t, "next", list, "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "nothing left to compare\n", out)

	_, err = execute(t, "graph", list, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err = execute(t, "list", "ls", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "InsertionSort")
	assert.Contains(t, out, "favourites")
}

func TestGlickoSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "charsort.db")
	listID, chars := newList(t, db, "glicko", "Vader", "Sauron")
	list := fmt.Sprint(listID)

	out, err := execute(t, "show", list, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Average confidence: 0.500")
	assert.Contains(t, out, "800")

	out, err = execute(t, "compare", list, fmt.Sprint(chars[0]), fmt.Sprint(chars[1]), "a", "--key", "k1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "recorded comparison")

	out, err = execute(t, "graph", list, "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Vader"), out)

	out, err = execute(t, "undo", list, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "removed comparison")

	_, err = execute(t, "undo", list, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCompareRejections(t *testing.T) {
	db := filepath.Join(t.TempDir(), "charsort.db")
	listID, chars := newList(t, db, "IS", "Ann", "Ben")
	list := fmt.Sprint(listID)
	a, b := fmt.Sprint(chars[0]), fmt.Sprint(chars[1])

	cases := []struct {
		name string
		args []string
	}{
		{"same character", []string{"compare", list, a, a, "a"}},
		{"foreign character", []string{"compare", list, a, "999", "a"}},
		{"bad verdict", []string{"compare", list, a, b, "maybe"}},
		{"bad list id", []string{"compare", "x", a, b, "a"}},
		{"unknown list", []string{"show", "999"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, append(tc.args, "--db", db)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "Error:")
		})
	}
}

func TestCreateListRejectsUnknownAlgorithm(t *testing.T) {
	db := filepath.Join(t.TempDir(), "charsort.db")
	out, err := execute(t, "list", "create", "x", "--algorithm", "bubble", "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"status":"error"`)
}
