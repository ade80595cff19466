package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildSelectsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", "package main\n\n// comment\nfunc main() {}\n")
	writeFile(t, root, "web/app.TSX", "export const A = 1\n")
	writeFile(t, root, "README.md", "# readme\n")
	writeFile(t, root, "node_modules/lib/index.js", "module.exports = 1\n")
	writeFile(t, root, "build/gen/Out.java", "class Out {}\n")
	writeFile(t, root, ".git/hooks/pre-commit.py", "print(1)\n")
	writeFile(t, root, "pkg/dist/bundle.js", "var x = 1\n")

	cat, err := NewBuilder(nil).Build(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"src/main.go", "web/app.TSX"}, cat.Files)
	assert.Equal(t, 2, cat.TotalFiles())
	assert.Equal(t, 3, cat.LinesOfCode)
}

func TestBuildNoFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "logo.png", "\x89PNG")
	writeFile(t, root, "docs/guide.md", "hello\n")

	_, err := NewBuilder(nil).Build(root)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestBuildExtraExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vendor/x/y.go", "package y\n")
	writeFile(t, root, "internal/a_test.go", "package a\n")
	writeFile(t, root, "internal/a.go", "package a\n")

	cat, err := NewBuilder([]string{"vendor/**", "**/*_test.go", "[bad"}).Build(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"internal/a.go"}, cat.Files)
}

func TestInExcludedDirHandlesBackslashes(t *testing.T) {
	assert.True(t, inExcludedDir(normalisePath(`app\node_modules\x.js`)))
	assert.True(t, inExcludedDir("a/target/B.java"))
	assert.False(t, inExcludedDir("a/targets/B.java"))
	assert.False(t, inExcludedDir("build.go"))
}

func TestCountLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.java", `/*
 * License
 */
package x;

// single
public class X {
    int a = 1; // trailing comments still count
}
`)
	n, err := CountLines(filepath.Join(root, "x.java"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = CountLines(filepath.Join(root, "missing.java"))
	assert.Error(t, err)
}
