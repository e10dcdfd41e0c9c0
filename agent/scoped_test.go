package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/substratelabs/orbit/llm"
)

// scopedFixture builds a root with a scope subtree, a sibling outside the
// scope, and a symlink inside the scope pointing at the sibling.
func scopedFixture(t *testing.T) (root string, scoped *ScopedExecutionEnvironment) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlink fixtures require unix")
	}

	root = t.TempDir()
	// TempDir may itself sit behind a symlink (macOS /tmp).
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{"scope/sub", "outside"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeFixture(t, filepath.Join(root, "scope", "inside.txt"), "inside content\n")
	writeFixture(t, filepath.Join(root, "outside", "secret.txt"), "secret content\n")
	if err := os.Symlink(filepath.Join(root, "outside"), filepath.Join(root, "scope", "escape")); err != nil {
		t.Fatal(err)
	}

	inner := NewLocalExecutionEnvironment(root)
	scoped, err = NewScopedExecutionEnvironment(inner, "scope")
	if err != nil {
		t.Fatal(err)
	}
	return root, scoped
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScopedReadInside(t *testing.T) {
	_, scoped := scopedFixture(t)

	content, err := scoped.ReadFile("inside.txt", 0, 0)
	if err != nil {
		t.Fatalf("read inside scope: %v", err)
	}
	if content != "inside content\n" {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestScopedSymlinkEscapeDenied(t *testing.T) {
	_, scoped := scopedFixture(t)

	_, err := scoped.ReadFile("escape/secret.txt", 0, 0)
	var pde *llm.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
	// The error must name the requested path, not the resolved target.
	if pde.Path != "escape/secret.txt" {
		t.Errorf("error leaked resolved path: %q", pde.Path)
	}
}

func TestScopedWriteThroughSymlinkDirDenied(t *testing.T) {
	_, scoped := scopedFixture(t)

	// The target does not exist yet; containment must still catch the
	// symlinked intermediate directory.
	err := scoped.WriteFile("escape/new.txt", "x")
	var pde *llm.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestScopedAbsolutePathOutsideDenied(t *testing.T) {
	root, scoped := scopedFixture(t)

	_, err := scoped.ReadFile(filepath.Join(root, "outside", "secret.txt"), 0, 0)
	var pde *llm.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestScopedDotDotDenied(t *testing.T) {
	_, scoped := scopedFixture(t)

	_, err := scoped.ReadFile("../outside/secret.txt", 0, 0)
	var pde *llm.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestScopedFileExistsDegrades(t *testing.T) {
	_, scoped := scopedFixture(t)

	if !scoped.FileExists("inside.txt") {
		t.Error("inside.txt should exist")
	}
	// Outside the scope, inaccessible reads as nonexistent.
	if scoped.FileExists("escape/secret.txt") {
		t.Error("escaping path must read as nonexistent")
	}
	if scoped.FileExists("no-such-file.txt") {
		t.Error("missing file must read as nonexistent")
	}
}

func TestScopedWriteAndDeleteInside(t *testing.T) {
	root, scoped := scopedFixture(t)

	if err := scoped.WriteFile("sub/new.txt", "hello"); err != nil {
		t.Fatalf("write inside scope: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "scope", "sub", "new.txt")); err != nil {
		t.Fatalf("file not created at expected location: %v", err)
	}
	if err := scoped.DeleteFile("sub/new.txt"); err != nil {
		t.Fatalf("delete inside scope: %v", err)
	}
	if scoped.FileExists("sub/new.txt") {
		t.Error("file still exists after delete")
	}
}

func TestScopedListDirectoryFiltersEscapes(t *testing.T) {
	_, scoped := scopedFixture(t)

	entries, err := scoped.ListDirectory(".")
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name == "escape" {
			t.Error("listing included an entry that resolves outside the scope")
		}
	}
	found := false
	for _, e := range entries {
		if e.Name == "inside.txt" {
			found = true
		}
	}
	if !found {
		t.Error("listing dropped a contained entry")
	}
}

func TestScopedExecDefaultsToScopeDir(t *testing.T) {
	root, scoped := scopedFixture(t)

	result, err := scoped.ExecCommand(context.Background(), "pwd", 5000, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "scope")
	if got != want {
		t.Errorf("cwd = %q, want %q", got, want)
	}
}

func TestScopedExecWorkingDirValidated(t *testing.T) {
	_, scoped := scopedFixture(t)

	_, err := scoped.ExecCommand(context.Background(), "pwd", 5000, "escape", nil)
	var pde *llm.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestScopedGlobFiltersEscapes(t *testing.T) {
	_, scoped := scopedFixture(t)

	matches, err := scoped.Glob("*.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if filepath.Base(m) == "secret.txt" {
			t.Error("glob leaked a file outside the scope")
		}
	}
}

func TestScopedWorkingDirectoryIsScope(t *testing.T) {
	root, scoped := scopedFixture(t)
	want := filepath.Join(root, "scope")
	if scoped.WorkingDirectory() != want {
		t.Errorf("WorkingDirectory = %q, want %q", scoped.WorkingDirectory(), want)
	}
}

func TestScopeOutsideInnerCwdDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix fixture")
	}
	root := t.TempDir()
	inner := NewLocalExecutionEnvironment(filepath.Join(root, "does-not-contain"))
	if err := os.MkdirAll(filepath.Join(root, "does-not-contain"), 0755); err != nil {
		t.Fatal(err)
	}

	_, err := NewScopedExecutionEnvironment(inner, "/")
	var pde *llm.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestCanonicalizeNonexistentTail(t *testing.T) {
	root := t.TempDir()
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := canonicalize(filepath.Join(root, "a", "b", "c.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "a", "b", "c.txt") {
		t.Errorf("unexpected canonical form: %q", got)
	}
}

func TestGrepLinePath(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "plain.go"), "package x\n")

	path, ok := grepLinePath("plain.go:3:some match text", dir)
	if !ok || path != "plain.go" {
		t.Errorf("simple line: got %q ok=%v", path, ok)
	}

	// A filename containing ":<digits>:" must win over the earlier boundary
	// when it exists on disk.
	tricky := "weird:12:name.txt"
	writeFixture(t, filepath.Join(dir, tricky), "x\n")
	path, ok = grepLinePath(tricky+":5:match", dir)
	if !ok || path != tricky {
		t.Errorf("tricky line: got %q ok=%v", path, ok)
	}

	if _, ok := grepLinePath("no colons here", dir); ok {
		t.Error("line without separators should not parse")
	}
}

// cannedGrepEnv returns fixed grep output so the post-filter can be
// exercised deterministically, without depending on the installed grep's
// symlink behavior.
type cannedGrepEnv struct {
	*LocalExecutionEnvironment
	grepOutput string
}

func (e *cannedGrepEnv) Grep(ctx context.Context, pattern, path string, options GrepOptions) (string, error) {
	return e.grepOutput, nil
}

func TestScopedGrepFiltersEscapes(t *testing.T) {
	root, _ := scopedFixture(t)

	inner := &cannedGrepEnv{
		LocalExecutionEnvironment: NewLocalExecutionEnvironment(root),
		grepOutput: "inside.txt:1:inside content\n" +
			"escape/secret.txt:1:secret content\n" +
			filepath.Join(root, "outside", "secret.txt") + ":1:secret content\n",
	}
	scoped, err := NewScopedExecutionEnvironment(inner, "scope")
	if err != nil {
		t.Fatal(err)
	}

	out, err := scoped.Grep(context.Background(), "content", "", GrepOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "inside.txt:1:inside content") {
		t.Errorf("contained match dropped: %q", out)
	}
	// A lexically-contained line through the symlink and an absolute line
	// outside the scope must both be filtered out.
	if strings.Contains(out, "secret") {
		t.Errorf("escaping match survived the filter: %q", out)
	}
}
