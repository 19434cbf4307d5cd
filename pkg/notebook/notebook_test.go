package notebook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHeader = "# Lab Notebook\n"

func TestInitializeWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab_notebook.md")
	nb := New(path, testHeader)

	require.NoError(t, nb.Initialize())
	_, err := nb.Append("first entry", EntryNote, "engineer")
	require.NoError(t, err)

	// A second Initialize must not clobber existing content.
	require.NoError(t, nb.Initialize())

	content, err := nb.Read()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, testHeader))
	assert.Contains(t, content, "first entry")
}

func TestAppendFormatsEntry(t *testing.T) {
	nb := New(filepath.Join(t.TempDir(), "lab_notebook.md"), testHeader)

	written, err := nb.Append("split data 80/20", EntryPlan, "principal_scientist")
	require.NoError(t, err)

	assert.Contains(t, written, "principal_scientist - PLAN")
	assert.Contains(t, written, "split data 80/20")

	content, err := nb.Read()
	require.NoError(t, err)
	assert.Contains(t, content, written)
}

func TestAppendCreatesFileOnDemand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab_notebook.md")
	nb := New(path, testHeader)

	_, err := nb.Append("entry without prior init", EntryOutput, "code_runner")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), testHeader))
}

func TestReadKeepsMostRecentContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab_notebook.md")
	nb := New(path, testHeader)
	require.NoError(t, nb.Initialize())

	old := strings.Repeat("x", ReadCharLimit)
	_, err := nb.Append(old, EntryNote, "engineer")
	require.NoError(t, err)
	_, err = nb.Append("the latest finding", EntryOutput, "engineer")
	require.NoError(t, err)

	content, err := nb.Read()
	require.NoError(t, err)
	assert.Len(t, content, ReadCharLimit)
	assert.Contains(t, content, "the latest finding")
	assert.NotContains(t, content, testHeader, "oldest content is dropped first")
}
