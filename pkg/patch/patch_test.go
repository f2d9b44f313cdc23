package patch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devloop/pkg/proto"
	"devloop/pkg/sandbox"
)

func newEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	acc, err := sandbox.New(dir)
	require.NoError(t, err)
	return New(acc), acc.Root()
}

func seedFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func fileText(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name))
	require.NoError(t, err)
	return string(data)
}

func hunks(hs ...proto.Hunk) proto.PatchBody {
	return proto.PatchBody{Hunks: hs}
}

func TestApplyHunksReplacesRange(t *testing.T) {
	out, err := ApplyHunks("f", []string{"L1", "L2", "L3", "L4"}, []proto.Hunk{
		{OldStart: 1, OldLen: 2, NewLines: []string{"X"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "X", "L4"}, out)
}

func TestApplyHunksMultipleIsOrderIndependent(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}
	first := proto.Hunk{OldStart: 0, OldLen: 1, NewLines: []string{"A1", "A2"}}
	second := proto.Hunk{OldStart: 3, OldLen: 0, NewLines: []string{"ins"}}
	third := proto.Hunk{OldStart: 4, OldLen: 1, NewLines: nil}

	want := []string{"A1", "A2", "b", "c", "ins", "d"}
	got, err := ApplyHunks("f", lines, []proto.Hunk{first, second, third})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ApplyHunks("f", lines, []proto.Hunk{third, first, second})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, lines, "input must not be modified")
}

func TestApplyHunksAppendAtEnd(t *testing.T) {
	got, err := ApplyHunks("f", []string{"a"}, []proto.Hunk{{OldStart: 1, OldLen: 0, NewLines: []string{"b"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestApplyHunksRejects(t *testing.T) {
	lines := []string{"a", "b", "c", "d"}
	tests := []struct {
		name    string
		hunks   []proto.Hunk
		overlap bool
	}{
		{"past end", []proto.Hunk{{OldStart: 3, OldLen: 2}}, false},
		{"start past end", []proto.Hunk{{OldStart: 5, OldLen: 0}}, false},
		{"overlapping", []proto.Hunk{{OldStart: 0, OldLen: 2}, {OldStart: 1, OldLen: 1}}, true},
		{"same insertion point", []proto.Hunk{{OldStart: 2, OldLen: 0}, {OldStart: 2, OldLen: 0}}, true},
		{"insert inside replaced range", []proto.Hunk{{OldStart: 0, OldLen: 3}, {OldStart: 1, OldLen: 0}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyHunks("f.txt", lines, tt.hunks)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "f.txt")
			if tt.overlap {
				var oe *OverlapError
				assert.ErrorAs(t, err, &oe)
			} else {
				var re *RangeError
				assert.ErrorAs(t, err, &re)
			}
		})
	}
}

func TestOverlapErrorMessages(t *testing.T) {
	lines := []string{"a", "b", "c", "d"}

	_, err := ApplyHunks("f.txt", lines, []proto.Hunk{{OldStart: 2, OldLen: 0}, {OldStart: 2, OldLen: 1}})
	var oe *OverlapError
	require.ErrorAs(t, err, &oe)
	assert.True(t, oe.Ambiguous())
	assert.Contains(t, err.Error(), "ambiguous insertion at line 2")
	assert.NotContains(t, err.Error(), "overlaps")

	_, err = ApplyHunks("f.txt", lines, []proto.Hunk{{OldStart: 0, OldLen: 2}, {OldStart: 1, OldLen: 1}})
	require.ErrorAs(t, err, &oe)
	assert.False(t, oe.Ambiguous())
	assert.Contains(t, err.Error(), "hunk range [0, 2) overlaps hunk range [1, 2)")
}

func TestAdjacentHunksAreAllowed(t *testing.T) {
	got, err := ApplyHunks("f", []string{"a", "b"}, []proto.Hunk{
		{OldStart: 0, OldLen: 1, NewLines: []string{"A"}},
		{OldStart: 1, OldLen: 1, NewLines: []string{"B"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got)
}

func TestSplitLinesRoundTrip(t *testing.T) {
	for _, text := range []string{"", "a", "a\n", "a\nb", "a\nb\n", "\n"} {
		assert.Equal(t, text, SplitLines(text).String(), "text %q", text)
	}
}

func TestEngineAppliesHunksToFile(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "a.txt", "hello\n")

	res, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "a.txt", Patch: hunks(proto.Hunk{OldStart: 0, OldLen: 1, NewLines: []string{"hi"}})},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", fileText(t, root, "a.txt"))

	require.Len(t, res.Files, 1)
	assert.Equal(t, FileResult{
		Path: "a.txt", AbsPath: filepath.Join(root, "a.txt"), Kind: proto.PatchHunks,
		LinesBefore: 1, LinesAfter: 1,
	}, res.Files[0])
}

func TestEngineOverlapLeavesFileUntouched(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "a.txt", "1\n2\n3\n")

	_, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "a.txt", Patch: hunks(proto.Hunk{OldStart: 0, OldLen: 2, NewLines: []string{"x"}})},
		{Path: "a.txt", Patch: hunks(proto.Hunk{OldStart: 1, OldLen: 1, NewLines: []string{"y"}})},
	})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	var oe *OverlapError
	assert.ErrorAs(t, err, &oe)
	assert.Equal(t, "1\n2\n3\n", fileText(t, root, "a.txt"))
	assert.Contains(t, failure.Feedback(), "no files were changed")
}

func TestEngineIsAllOrNothingAcrossFiles(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "good.txt", "keep\n")
	seedFile(t, root, "bad.txt", "one\n")

	_, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "good.txt", Patch: proto.FullContent("changed\n")},
		{Path: "new/file.txt", Patch: proto.FullContent("new\n")},
		{Path: "bad.txt", Patch: hunks(proto.Hunk{OldStart: 0, OldLen: 5})},
	})
	var re *RangeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "bad.txt", re.Path)

	assert.Equal(t, "keep\n", fileText(t, root, "good.txt"))
	assert.NoFileExists(t, filepath.Join(root, "new", "file.txt"))
}

func TestEngineCreatesFilesFromContentAndHunks(t *testing.T) {
	e, root := newEngine(t)

	res, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "pkg/x/doc.go", Patch: proto.FullContent("package x\n")},
		{Path: "notes.md", Patch: hunks(proto.Hunk{OldStart: 0, OldLen: 0, NewLines: []string{"# Notes"}})},
	})
	require.NoError(t, err)
	assert.Equal(t, "package x\n", fileText(t, root, "pkg/x/doc.go"))
	assert.Equal(t, "# Notes\n", fileText(t, root, "notes.md"))
	require.Len(t, res.Files, 2)
	assert.True(t, res.Files[0].Created)
	assert.True(t, res.Files[1].Created)
}

func TestEnginePreservesModeAndMissingTrailingNewline(t *testing.T) {
	e, root := newEngine(t)
	p := filepath.Join(root, "run.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\necho a"), 0o755))

	_, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "run.sh", Patch: hunks(proto.Hunk{OldStart: 1, OldLen: 1, NewLines: []string{"echo b"}})},
	})
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho b", fileText(t, root, "run.sh"))

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestEngineRejectsMixedVariantsForOnePath(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "a.txt", "a\n")

	_, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "a.txt", Patch: proto.FullContent("b\n")},
		{Path: "./a.txt", Patch: hunks(proto.Hunk{OldStart: 0, OldLen: 1, NewLines: []string{"c"}})},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only hunk patches can be combined")
	assert.Equal(t, "a\n", fileText(t, root, "a.txt"))
}

func TestEngineRejectsSandboxEscape(t *testing.T) {
	e, root := newEngine(t)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	for _, path := range []string{"../evil.txt", "/etc/passwd", "link/evil.txt", "."} {
		t.Run(path, func(t *testing.T) {
			_, err := e.Apply(context.Background(), []proto.FileChange{{Path: path, Patch: proto.FullContent("x")}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, sandbox.ErrForbiddenPath), "got %v", err)
		})
	}
	assert.NoFileExists(t, filepath.Join(outside, "evil.txt"))
}

func TestEngineRefusesRepositoryMetadata(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, ".git/config", "[core]\n")
	seedFile(t, root, "a.txt", "a\n")

	_, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "a.txt", Patch: proto.FullContent("b\n")},
		{Path: ".git/hooks/pre-commit", Patch: proto.FullContent("#!/bin/sh\necho hi\n")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sandbox.ErrForbiddenPath), "got %v", err)
	assert.NoFileExists(t, filepath.Join(root, ".git", "hooks", "pre-commit"))
	assert.Equal(t, "a\n", fileText(t, root, "a.txt"))
	assert.Equal(t, "[core]\n", fileText(t, root, ".git/config"))
}

func TestEngineAppliesUnifiedDiff(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "main.go", "package main\n\nfunc main() {\n\tprintln(\"a\")\n}\n")

	diffText := "--- a/main.go\n+++ b/main.go\n@@ -3,3 +3,4 @@\n func main() {\n-\tprintln(\"a\")\n+\tprintln(\"b\")\n+\tprintln(\"c\")\n }\n"
	res, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "main.go", Patch: proto.PatchBody{Diff: diffText}},
	})
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc main() {\n\tprintln(\"b\")\n\tprintln(\"c\")\n}\n", fileText(t, root, "main.go"))
	assert.Equal(t, proto.PatchDiff, res.Files[0].Kind)
}

func TestEngineAppliesBareHunkDiff(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "a.txt", "one\ntwo\n")

	_, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "a.txt", Patch: proto.PatchBody{Diff: "@@ -2,0 +3,1 @@\n+three"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", fileText(t, root, "a.txt"))
}

func TestEngineRejectsDiffContextMismatch(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "a.txt", "one\ntwo\n")

	_, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "a.txt", Patch: proto.PatchBody{Diff: "@@ -1,2 +1,2 @@\n one\n-deux\n+2\n"}},
	})
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 2, me.Line)
	assert.Equal(t, "deux", me.Expected)
	assert.Equal(t, "two", me.Actual)
	assert.Equal(t, "one\ntwo\n", fileText(t, root, "a.txt"))
}

func TestEngineCheckDoesNotWrite(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "a.txt", "a\n")

	require.NoError(t, e.Check([]proto.FileChange{{Path: "a.txt", Patch: proto.FullContent("b\n")}}))
	assert.Equal(t, "a\n", fileText(t, root, "a.txt"))

	err := e.Check([]proto.FileChange{{Path: "a.txt", Patch: hunks(proto.Hunk{OldStart: 2, OldLen: 0})}})
	assert.Error(t, err)
}

func TestFailureCollectsEveryFile(t *testing.T) {
	e, root := newEngine(t)
	seedFile(t, root, "a.txt", "a\n")
	seedFile(t, root, "b.txt", "b\n")

	_, err := e.Apply(context.Background(), []proto.FileChange{
		{Path: "a.txt", Patch: hunks(proto.Hunk{OldStart: 9, OldLen: 0})},
		{Path: "b.txt", Patch: hunks(proto.Hunk{OldStart: 0, OldLen: 1}, proto.Hunk{OldStart: 0, OldLen: 1})},
	})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Len(t, failure.Files, 2)
	assert.Equal(t, "a.txt", failure.Files[0].Path)
	assert.Equal(t, "b.txt", failure.Files[1].Path)
	fb := failure.Feedback()
	assert.Contains(t, fb, "a.txt: hunk range [9, 9) exceeds file length 1")
	assert.Contains(t, fb, "b.txt: hunk range [0, 1) overlaps hunk range [0, 1)")
}
