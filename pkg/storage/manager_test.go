package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(m *Manager, artifact, name string, r io.Reader) (string, int64, error) {
	return m.Save(artifact, name, func(w io.Writer) (int64, error) {
		return io.Copy(w, r)
	})
}

func TestSave(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "raw"))
	require.NoError(t, err)

	assert.False(t, m.IsStaged("rsdebate.nic.in.7", "debate.pdf"))

	path, n, err := stage(m, "rsdebate.nic.in.7", "debate.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, filepath.Join(m.Dir(), "rsdebate.nic.in.7", "debate.pdf"), path)
	assert.True(t, m.IsStaged("rsdebate.nic.in.7", "debate.pdf"))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, _, err = m.Save("item", "doc.pdf", func(w io.Writer) (int64, error) {
		_, _ = w.Write([]byte("partial"))
		return 7, errors.New("connection reset")
	})
	require.Error(t, err)
	assert.False(t, m.IsStaged("item", "doc.pdf"))

	usage, err := m.Usage()
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestUsageAndRemove(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, _, err = stage(m, "a", "1.pdf", strings.NewReader(strings.Repeat("x", 100)))
	require.NoError(t, err)
	_, _, err = stage(m, "b", "2.pdf", strings.NewReader(strings.Repeat("y", 50)))
	require.NoError(t, err)

	usage, err := m.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(150), usage)

	require.NoError(t, m.Remove("a"))
	usage, err = m.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(50), usage)

	assert.NoError(t, m.Remove("never-staged"))
}

func TestNewManagerDropsPartials(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "item"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "item", "doc.pdf.tmp"), []byte("half"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "item", "done.pdf"), []byte("full"), 0644))

	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.False(t, m.IsStaged("item", "doc.pdf.tmp"))
	assert.True(t, m.IsStaged("item", "done.pdf"))
}

func TestPathForSanitises(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	got := m.PathFor("telanganalegislature.assembly.x", "../../etc/passwd")
	assert.Equal(t, m.Dir(), filepath.Dir(filepath.Dir(got)))
}
