package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/substratelabs/orbit/llm"
)

// ScopedExecutionEnvironment confines every operation of an inner
// ExecutionEnvironment to a subtree. It wraps, not clones, the inner
// environment; containment rests entirely on path validation here, there is
// no process isolation underneath.
type ScopedExecutionEnvironment struct {
	inner    ExecutionEnvironment
	scopeDir string // canonical
}

// NewScopedExecutionEnvironment resolves scopeDir against the inner
// environment's working directory, canonicalizes it, and requires the result
// to sit within the inner environment's own canonical working directory. A
// nested scope can therefore never escape its parent.
func NewScopedExecutionEnvironment(inner ExecutionEnvironment, scopeDir string) (*ScopedExecutionEnvironment, error) {
	requested := scopeDir
	if !filepath.IsAbs(scopeDir) {
		scopeDir = filepath.Join(inner.WorkingDirectory(), scopeDir)
	}

	canonical, err := filepath.EvalSymlinks(filepath.Clean(scopeDir))
	if err != nil {
		return nil, &llm.PermissionDeniedError{Path: requested}
	}
	innerCwd, err := filepath.EvalSymlinks(inner.WorkingDirectory())
	if err != nil {
		return nil, &llm.PermissionDeniedError{Path: requested}
	}
	if !pathWithin(canonical, innerCwd) {
		return nil, &llm.PermissionDeniedError{Path: requested}
	}

	return &ScopedExecutionEnvironment{inner: inner, scopeDir: canonical}, nil
}

// ScopeDir returns the canonical scope directory.
func (s *ScopedExecutionEnvironment) ScopeDir() string { return s.scopeDir }

// WorkingDirectory reports the scope directory: to the sandboxed caller the
// scope is the world.
func (s *ScopedExecutionEnvironment) WorkingDirectory() string { return s.scopeDir }

func (s *ScopedExecutionEnvironment) Platform() string  { return s.inner.Platform() }
func (s *ScopedExecutionEnvironment) OSVersion() string { return s.inner.OSVersion() }

// pathWithin reports whether path equals or descends from root. Both must be
// canonical.
func pathWithin(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// canonicalize resolves symlinks along path. For a path that does not exist
// yet, the longest existing ancestor is resolved and the remaining (and
// therefore symlink-free) components are rejoined, so a write routed through
// a symlinked intermediate directory is still caught.
func canonicalize(path string) (string, error) {
	path = filepath.Clean(path)
	var pending []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{resolved}, pending...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		pending = append([]string{filepath.Base(current)}, pending...)
		current = parent
	}
}

// validateAndResolve maps a caller path to a canonical real path inside the
// scope. Relative paths resolve against the scope directory, never the inner
// environment's cwd. The error surfaces only the originally requested path.
func (s *ScopedExecutionEnvironment) validateAndResolve(path string) (string, error) {
	requested := path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.scopeDir, path)
	}
	resolved, err := canonicalize(path)
	if err != nil {
		return "", &llm.PermissionDeniedError{Path: requested}
	}
	if !pathWithin(resolved, s.scopeDir) {
		return "", &llm.PermissionDeniedError{Path: requested}
	}
	return resolved, nil
}

func (s *ScopedExecutionEnvironment) ReadFile(path string, offset, limit int) (string, error) {
	resolved, err := s.validateAndResolve(path)
	if err != nil {
		return "", err
	}
	return s.inner.ReadFile(resolved, offset, limit)
}

func (s *ScopedExecutionEnvironment) WriteFile(path string, content string) error {
	resolved, err := s.validateAndResolve(path)
	if err != nil {
		return err
	}
	return s.inner.WriteFile(resolved, content)
}

func (s *ScopedExecutionEnvironment) DeleteFile(path string) error {
	resolved, err := s.validateAndResolve(path)
	if err != nil {
		return err
	}
	return s.inner.DeleteFile(resolved)
}

// FileExists degrades a validation failure to false: to a sandboxed caller,
// inaccessible and nonexistent are indistinguishable.
func (s *ScopedExecutionEnvironment) FileExists(path string) bool {
	resolved, err := s.validateAndResolve(path)
	if err != nil {
		return false
	}
	return s.inner.FileExists(resolved)
}

// ListDirectory lists a validated directory, dropping entries that resolve
// outside the scope after symlink resolution.
func (s *ScopedExecutionEnvironment) ListDirectory(path string) ([]DirEntry, error) {
	resolved, err := s.validateAndResolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := s.inner.ListDirectory(resolved)
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, entry := range entries {
		real, err := canonicalize(filepath.Join(resolved, entry.Name))
		if err != nil || !pathWithin(real, s.scopeDir) {
			continue
		}
		kept = append(kept, entry)
	}
	return kept, nil
}

// ExecCommand runs commands with cwd defaulting to the scope directory. A
// supplied working directory is validated like any other path.
func (s *ScopedExecutionEnvironment) ExecCommand(ctx context.Context, command string, timeoutMs int, workingDir string, envVars map[string]string) (*ExecResult, error) {
	if workingDir == "" {
		workingDir = s.scopeDir
	} else {
		resolved, err := s.validateAndResolve(workingDir)
		if err != nil {
			return nil, err
		}
		workingDir = resolved
	}
	return s.inner.ExecCommand(ctx, command, timeoutMs, workingDir, envVars)
}

// Grep searches within the scope and post-filters every result line: the
// path component is re-resolved and the line dropped if it points outside
// the scope, even when its lexical form looked contained.
func (s *ScopedExecutionEnvironment) Grep(ctx context.Context, pattern string, path string, options GrepOptions) (string, error) {
	searchDir := s.scopeDir
	if path != "" {
		resolved, err := s.validateAndResolve(path)
		if err != nil {
			return "", err
		}
		searchDir = resolved
	}

	output, err := s.inner.Grep(ctx, pattern, searchDir, options)
	if err != nil {
		return "", err
	}

	var kept []string
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		matchPath, ok := grepLinePath(line, searchDir)
		if !ok {
			continue
		}
		if !filepath.IsAbs(matchPath) {
			matchPath = filepath.Join(searchDir, matchPath)
		}
		real, err := canonicalize(matchPath)
		if err != nil || !pathWithin(real, s.scopeDir) {
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return "", nil
	}
	return strings.Join(kept, "\n") + "\n", nil
}

// grepLinePath extracts the path component from a "path:line:content" grep
// line. Filenames may themselves contain ":<digits>:", so every candidate
// boundary is scanned left to right and the first whose prefix exists as a
// real file wins; failing that, the first candidate, then the first colon.
// This probes the live filesystem and is heuristic under concurrent
// mutation.
func grepLinePath(line, searchDir string) (string, bool) {
	var candidates []int
	for i := 0; i < len(line); i++ {
		if line[i] != ':' {
			continue
		}
		j := i + 1
		for j < len(line) && line[j] >= '0' && line[j] <= '9' {
			j++
		}
		if j > i+1 && j < len(line) && line[j] == ':' {
			candidates = append(candidates, i)
		}
	}

	probe := func(prefix string) bool {
		if !filepath.IsAbs(prefix) {
			prefix = filepath.Join(searchDir, prefix)
		}
		info, err := os.Stat(prefix)
		return err == nil && !info.IsDir()
	}

	for _, i := range candidates {
		if probe(line[:i]) {
			return line[:i], true
		}
	}
	if len(candidates) > 0 {
		return line[:candidates[0]], true
	}
	if i := strings.IndexByte(line, ':'); i > 0 {
		return line[:i], true
	}
	return "", false
}

// Glob matches within the scope and post-filters results that resolve
// outside it.
func (s *ScopedExecutionEnvironment) Glob(pattern string, path string) ([]string, error) {
	searchDir := s.scopeDir
	if path != "" {
		resolved, err := s.validateAndResolve(path)
		if err != nil {
			return nil, err
		}
		searchDir = resolved
	}

	matches, err := s.inner.Glob(pattern, searchDir)
	if err != nil {
		return nil, err
	}

	var kept []string
	for _, m := range matches {
		abs := m
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(s.inner.WorkingDirectory(), m)
		}
		real, err := canonicalize(abs)
		if err != nil || !pathWithin(real, s.scopeDir) {
			continue
		}
		if rel, err := filepath.Rel(s.scopeDir, real); err == nil {
			kept = append(kept, rel)
		} else {
			kept = append(kept, real)
		}
	}
	return kept, nil
}
