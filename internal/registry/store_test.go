package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return s
}

func TestOpen_CreatesLayout(t *testing.T) {
	s := openTestStore(t)

	for _, dir := range []string{"runs", "capabilities", "mocks/tools", "mocks/resources", "mocks/prompts"} {
		info, err := os.Stat(filepath.Join(s.DataDir(), dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
}

func TestMockKey_OrderIndependent(t *testing.T) {
	a, err := MockKey(CategoryTools, "search", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := MockKey(CategoryTools, "search", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, `tools:search:{"a":1,"b":2}`, a)
}

func TestMockKey_OrderIndependent_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		args := rapid.MapOf(rapid.StringMatching(`[a-z]{1,6}`), rapid.IntRange(-1000, 1000)).Draw(t, "args")

		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))

		// Build the same object with keys written in reverse order.
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%q:%d", k, args[k]))
		}
		var reordered map[string]any
		if err := json.Unmarshal([]byte("{"+strings.Join(parts, ",")+"}"), &reordered); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		original := make(map[string]any, len(args))
		for k, v := range args {
			original[k] = v
		}

		k1, err := MockKey(CategoryTools, "t", original)
		if err != nil {
			t.Fatal(err)
		}
		k2, err := MockKey(CategoryTools, "t", reordered)
		if err != nil {
			t.Fatal(err)
		}
		if k1 != k2 {
			t.Fatalf("keys differ: %s vs %s", k1, k2)
		}

		h1, _ := ArgsHash(original)
		h2, _ := ArgsHash(reordered)
		if h1 != h2 || len(h1) != 8 {
			t.Fatalf("hash mismatch: %s vs %s", h1, h2)
		}
	})
}

func TestRecordReplayRoundTrip(t *testing.T) {
	s := openTestStore(t)
	response := map[string]any{"result": "x found", "source": "index"}

	rel, err := s.SaveMock(CategoryTools, "search", map[string]any{"q": "x"}, response)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "mocks/tools/search_"))
	assert.True(t, strings.HasSuffix(rel, ".json"))

	got, err := s.LoadMock(CategoryTools, "search", map[string]any{"q": "x"})
	require.NoError(t, err)
	assert.Equal(t, response, got)

	_, err = s.LoadMock(CategoryTools, "search", map[string]any{"q": "y"})
	assert.ErrorIs(t, err, ErrMockNotFound)

	_, err = s.LoadMock(CategoryPrompts, "search", map[string]any{"q": "x"})
	assert.ErrorIs(t, err, ErrMockNotFound)
}

func TestSaveMock_LastWriteWins(t *testing.T) {
	s := openTestStore(t)
	args := map[string]any{"q": "x"}

	_, err := s.SaveMock(CategoryTools, "search", args, map[string]any{"result": "old"})
	require.NoError(t, err)
	_, err = s.SaveMock(CategoryTools, "search", args, map[string]any{"result": "new"})
	require.NoError(t, err)

	got, err := s.LoadMock(CategoryTools, "search", args)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "new"}, got)

	mocks, err := s.ListMocks(CategoryTools)
	require.NoError(t, err)
	assert.Len(t, mocks, 1)
}

func TestIndexConsistentWithDisk(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveMock(CategoryTools, "a", map[string]any{"n": 1}, "r1")
	require.NoError(t, err)
	_, err = s.SaveMock(CategoryResources, "file:///etc/motd", nil, "r2")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.DataDir(), "mocks", "index.json"))
	require.NoError(t, err)
	var index map[string]string
	require.NoError(t, json.Unmarshal(data, &index))
	require.Len(t, index, 2)

	for key, rel := range index {
		_, err := os.Stat(filepath.Join(s.DataDir(), filepath.FromSlash(rel)))
		assert.NoError(t, err, key)
	}

	// A fresh Store sees the same index.
	reopened, err := Open(s.DataDir())
	require.NoError(t, err)
	assert.True(t, reopened.HasMock(CategoryResources, "file:///etc/motd", map[string]any{}))
}

func TestOpen_CorruptIndexIsAMiss(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mocks"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mocks", "index.json"), []byte("{not json"), 0644))

	s, err := Open(dir)
	require.NoError(t, err)

	_, err = s.LoadMock(CategoryTools, "x", nil)
	assert.ErrorIs(t, err, ErrMockNotFound)

	// The next write rebuilds a valid index.
	_, err = s.SaveMock(CategoryTools, "x", nil, "ok")
	require.NoError(t, err)
	got, err := s.LoadMock(CategoryTools, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestLoadMock_CorruptFileIsAMiss(t *testing.T) {
	s := openTestStore(t)
	rel, err := s.SaveMock(CategoryTools, "x", nil, "ok")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.DataDir(), rel), []byte("garbage"), 0644))

	_, err = s.LoadMock(CategoryTools, "x", nil)
	assert.ErrorIs(t, err, ErrMockNotFound)
}

func TestClearMocks(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveMock(CategoryTools, "a", nil, "1")
	require.NoError(t, err)
	_, err = s.SaveMock(CategoryPrompts, "p", map[string]any{"topic": "go"}, "2")
	require.NoError(t, err)

	removed, err := s.ClearMocks(CategoryTools)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, s.HasMock(CategoryTools, "a", nil))
	assert.True(t, s.HasMock(CategoryPrompts, "p", map[string]any{"topic": "go"}))

	removed, err = s.ClearMocks("")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMocks)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveMock(CategoryTools, "a", nil, "1")
	require.NoError(t, err)
	_, err = s.SaveMock(CategoryTools, "b", nil, "2")
	require.NoError(t, err)
	_, err = s.SaveRun(RunRecord{SessionID: "s1", SpecName: "spec.yaml", Timestamp: time.Now()})
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMocks)
	assert.Equal(t, 2, stats.ByCategory[CategoryTools])
	assert.Equal(t, 0, stats.ByCategory[CategoryPrompts])
	assert.Equal(t, 1, stats.TotalRuns)
	assert.True(t, filepath.IsAbs(stats.DataDir))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("tool")
	require.NoError(t, err)
	assert.Equal(t, CategoryTools, c)

	c, err = ParseCategory("prompts")
	require.NoError(t, err)
	assert.Equal(t, CategoryPrompts, c)

	_, err = ParseCategory("widgets")
	assert.Error(t, err)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "file____tmp_a.txt", SafeName("file:///tmp/a.txt"))
	assert.Equal(t, "echo", SafeName("echo"))
	assert.Equal(t, "_", SafeName(""))
}

func TestSaveMock_RewrittenNamesKeepSeparateFiles(t *testing.T) {
	s := openTestStore(t)

	relA, err := s.SaveMock(CategoryResources, "file:///a/b.txt", nil, "content of a/b")
	require.NoError(t, err)
	relB, err := s.SaveMock(CategoryResources, "file:///a_b.txt", nil, "content of a_b")
	require.NoError(t, err)
	assert.NotEqual(t, relA, relB)

	got, err := s.LoadMock(CategoryResources, "file:///a/b.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "content of a/b", got)

	got, err = s.LoadMock(CategoryResources, "file:///a_b.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "content of a_b", got)

	mocks, err := s.ListMocks(CategoryResources)
	require.NoError(t, err)
	assert.Len(t, mocks, 2)
}

func TestLoadMock_ForeignRecordIsAMiss(t *testing.T) {
	s := openTestStore(t)
	rel, err := s.SaveMock(CategoryTools, "search", map[string]any{"q": "x"}, "x found")
	require.NoError(t, err)

	foreign, err := json.Marshal(MockRecord{
		Category:  CategoryTools,
		Name:      "search",
		Arguments: map[string]any{"q": "y"},
		Response:  "y found",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.DataDir(), rel), foreign, 0644))

	_, err = s.LoadMock(CategoryTools, "search", map[string]any{"q": "x"})
	assert.ErrorIs(t, err, ErrMockNotFound)
}

func TestMockFileStem(t *testing.T) {
	stem, err := MockFileStem("echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	hash, err := ArgsHash(map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo_"+hash, stem)

	a, err := MockFileStem("file:///a/b.txt", nil)
	require.NoError(t, err)
	b, err := MockFileStem("file:///a_b.txt", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a, "file____a_b.txt_"))
	assert.NotEqual(t, a, b)
}
