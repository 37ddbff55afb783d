package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/phpflow/pkg/lint"
)

func sampleEntry(path string) Entry {
	return Entry{
		Path:        path,
		Hash:        "abc",
		Fingerprint: "unused-variable",
		Callables:   2,
		Diagnostics: []lint.Diagnostic{{
			File: path, Function: "f", Line: 3, Column: 5,
			Rule: lint.RuleUnusedVariable, Variable: "x",
			Message: "variable $x is assigned but never used",
		}},
		CheckedAt: 1700000000,
	}
}

func TestStore_LookupHitAndMiss(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.php")
	s := New(WithDir(dir))

	_, ok := s.Lookup(path, "abc", "unused-variable")
	assert.False(t, ok)

	s.Put(sampleEntry(path))

	e, ok := s.Lookup(path, "abc", "unused-variable")
	require.True(t, ok)
	assert.Equal(t, 2, e.Callables)
	require.Len(t, e.Diagnostics, 1)
	assert.Equal(t, "x", e.Diagnostics[0].Variable)

	_, err := s.Get(path, "changed", "unused-variable")
	assert.ErrorIs(t, err, ErrStaleEntry)

	_, err = s.Get(path, "abc", "unused-variable,undefined-variable")
	assert.ErrorIs(t, err, ErrStaleEntry)

	_, err = s.Get(filepath.Join(dir, "other.php"), "abc", "unused-variable")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	s := New(WithDir(dir))
	a := filepath.Join(dir, "a.php")
	b := filepath.Join(dir, "b.php")
	s.Put(sampleEntry(a))
	s.Put(sampleEntry(b))

	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf))

	loaded := New(WithDir(dir))
	require.NoError(t, loaded.Load(&buf))
	assert.Equal(t, 2, loaded.Len())

	e, ok := loaded.Lookup(a, "abc", "unused-variable")
	require.True(t, ok)
	assert.Equal(t, sampleEntry(a), e)
}

func TestStore_SaveFileLoadFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	s := New(WithDir(dir))
	s.Put(sampleEntry("/src/a.php"))
	require.NoError(t, s.SaveFile())
	assert.FileExists(t, filepath.Join(dir, DefaultFile))

	loaded := New(WithDir(dir))
	require.NoError(t, loaded.LoadFile())
	assert.Equal(t, 1, loaded.Len())
}

func TestStore_LoadFileMissing(t *testing.T) {
	s := New(WithDir(t.TempDir()))
	require.NoError(t, s.LoadFile())
	assert.Equal(t, 0, s.Len())
}

func TestStore_LoadCorrupt(t *testing.T) {
	s := New()
	err := s.Load(bytes.NewReader([]byte{0xc1}))
	assert.Error(t, err)
}

func TestStore_LoadOtherVersionDiscards(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, msgpack.NewEncoder(&buf).Encode(cacheData{
		Version: formatVersion + 1,
		Entries: []Entry{sampleEntry("/src/a.php")},
	}))

	s := New()
	s.Put(sampleEntry("/src/b.php"))
	require.NoError(t, s.Load(&buf))
	assert.Equal(t, 0, s.Len())
}

func TestStore_Prune(t *testing.T) {
	s := New()
	s.Put(sampleEntry("/src/a.php"))
	s.Put(sampleEntry("/src/b.php"))
	s.Put(sampleEntry("/src/c.php"))

	removed := s.Prune([]string{"/src/a.php", "/src/c.php"})
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"/src/a.php", "/src/c.php"}, s.Paths())

	_, ok := s.Lookup("/src/b.php", "abc", "unused-variable")
	assert.False(t, ok)

	s.Clear()
	assert.Equal(t, 0, s.Len())
}
