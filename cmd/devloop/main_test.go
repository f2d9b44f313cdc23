package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devloop/pkg/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeProject(t *testing.T, backlog, done string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	knowledge := filepath.Join(dir, "docs", "knowledge")
	require.NoError(t, os.MkdirAll(knowledge, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(knowledge, "facts.md"), []byte("# Facts\n"), 0o644))
	tasks := filepath.Join(dir, "docs", "tasks")
	require.NoError(t, os.MkdirAll(tasks, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tasks, "backlog.yaml"), []byte(backlog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tasks, "done.yaml"), []byte(done), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tasks, "problems.yaml"), []byte("[]\n"), 0o644))
	return dir
}

func TestNextPrintsEligibleTask(t *testing.T) {
	dir := writeProject(t,
		"- id: A\n  title: First\n  status: ready\n- id: B\n  title: Second\n  status: ready\n  deps: [A]\n",
		"- id: A\n  title: First\n")

	out, err := execute(t, "next", "--repo", dir)
	require.NoError(t, err)
	assert.Equal(t, "B\tSecond\n", out)
}

func TestNextWithNothingEligible(t *testing.T) {
	dir := writeProject(t, "- id: A\n  title: First\n  status: ready\n", "- id: A\n  title: First\n")

	out, err := execute(t, "next", "--repo", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No eligible task.")
}

func TestNextRejectsIncompleteProject(t *testing.T) {
	_, err := execute(t, "next", "--repo", t.TempDir())
	assert.Error(t, err)
}

func TestSecretsSet(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(PasswordEnv, "hunter2")

	out, err := execute(t, "secrets", "set", "ANTHROPIC_API_KEY", "sk-test", "--repo", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored ANTHROPIC_API_KEY")

	_, err = execute(t, "secrets", "set", "OPENAI_API_KEY", "sk-other", "--repo", dir)
	require.NoError(t, err)

	secrets, err := config.DecryptSecretsFile(dir, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ANTHROPIC_API_KEY": "sk-test", "OPENAI_API_KEY": "sk-other"}, secrets)
}

func TestSecretsSetRequiresName(t *testing.T) {
	_, err := execute(t, "secrets", "set", "--repo", t.TempDir())
	assert.Error(t, err)
}

func TestMetricsServerRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "devloop_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	srv := newMetricsServer("127.0.0.1:0", reg)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "devloop_test_total 1")

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "devloop dev (commit none, built unknown)\n", out)
}
