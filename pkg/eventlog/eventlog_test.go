package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLogNumbersArtifacts(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	log, err := NewTaskLog(root, "T-001", now)
	require.NoError(t, err)
	defer log.Close()

	assert.Equal(t, filepath.Join(root, "task_T-001", "20250304_050607"), log.Dir())

	require.NoError(t, log.WriteText("developer_request.txt", "hello"))
	require.NoError(t, log.WriteJSON("review.json", map[string]int{"comments": 0}))

	data, err := os.ReadFile(filepath.Join(log.Dir(), "00_developer_request.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = os.ReadFile(filepath.Join(log.Dir(), "01_review.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"comments":0}`, string(data))

	entries, err := ReadIndex(filepath.Join(log.Dir(), IndexFilename))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "developer_request.txt", entries[0].Name)
	assert.Equal(t, 5, entries[0].Bytes)
	assert.Equal(t, "01_review.json", entries[1].File)
}

func TestTaskLogSanitizesNames(t *testing.T) {
	log, err := NewTaskLog(t.TempDir(), "../escape", time.Now())
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.WriteText("cat ../../etc/passwd", "x"))
	_, err = os.Stat(filepath.Join(log.Dir(), "00_cat_.._.._etc_passwd"))
	assert.NoError(t, err)
	assert.NotContains(t, filepath.Base(filepath.Dir(log.Dir())), "/")
}

func TestTaskLogClosed(t *testing.T) {
	log, err := NewTaskLog(t.TempDir(), "T", time.Now())
	require.NoError(t, err)
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())
	assert.Error(t, log.WriteText("late", "x"))
}

type failingSink struct{ err error }

func (f failingSink) WriteText(string, string) error { return f.err }
func (f failingSink) WriteJSON(string, any) error    { return f.err }

func TestMultiFansOut(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	sink := Multi(a, Discard, b)

	require.NoError(t, sink.WriteText("one", "1"))
	require.NoError(t, sink.WriteJSON("two", []int{2}))

	assert.Equal(t, []string{"one", "two"}, a.Names())
	assert.Equal(t, a.Artifacts(), b.Artifacts())
	assert.Equal(t, "[2]", b.Artifacts()[1].Text)

	boom := errors.New("disk full")
	mem := &Memory{}
	err := Multi(failingSink{boom}, mem).WriteText("x", "y")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, mem.Artifacts(), 1)
}
