package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine installs an executable "semgrep" shell script in a temp bin dir.
// The script receives: --config <rules> --json -o <file> .
func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fakes need a POSIX shell")
	}
	binDir := t.TempDir()
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "semgrep"), []byte(script), 0o755))
	return binDir
}

func newTestAnalyzer(binDir string, timeout time.Duration) *Analyzer {
	return NewAnalyzer(Options{Engine: EngineSemgrep, BinDir: binDir, Timeout: timeout})
}

func TestAnalyzeToleratesNonZeroExitWithResults(t *testing.T) {
	binDir := fakeEngine(t, `cat > "$5" <<JSON
{"results": [
  {"check_id": "r1", "path": "a.go", "start": {"line": 3},
   "extra": {"severity": "ERROR", "message": "utf8=$PYTHONUTF8", "lines": "x()"}},
  {"check_id": "r2", "path": "b.go", "start": {"line": 4},
   "extra": {"severity": "INFO", "message": "noise", "lines": "y"}}
]}
JSON
echo "findings present" >&2
exit 1`)
	ws := t.TempDir()

	report, err := newTestAnalyzer(binDir, 10*time.Second).Analyze(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RawCount)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "utf8=1", report.Findings[0].Message)

	_, statErr := os.Stat(filepath.Join(ws, resultsFile))
	assert.True(t, os.IsNotExist(statErr), "results file is removed after parsing")
}

func TestAnalyzeFailsWithoutResultsFile(t *testing.T) {
	binDir := fakeEngine(t, `echo "rule download failed" >&2
exit 2`)

	_, err := newTestAnalyzer(binDir, 10*time.Second).Analyze(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecution)
	assert.Contains(t, err.Error(), "rule download failed")
}

func TestAnalyzeTimeoutKillsProcess(t *testing.T) {
	binDir := fakeEngine(t, `exec sleep 30`)

	start := time.Now()
	_, err := newTestAnalyzer(binDir, 200*time.Millisecond).Analyze(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestAnalyzeDockerTimeoutKillsContainer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fakes need a POSIX shell")
	}
	binDir := t.TempDir()
	runLog := filepath.Join(binDir, "run.log")
	killLog := filepath.Join(binDir, "kill.log")
	script := `#!/bin/sh
case "$1" in
  info) exit 0 ;;
  run) echo "$@" > ` + runLog + `; exec sleep 30 ;;
  kill) echo "$2" > ` + killLog + ` ;;
esac
`
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "docker"), []byte(script), 0o755))
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	a := NewAnalyzer(Options{Engine: EngineSemgrep, PreferDocker: true, DockerImage: "semgrep/semgrep", Timeout: 200 * time.Millisecond})
	_, err := a.Analyze(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	killed, err := os.ReadFile(killLog)
	require.NoError(t, err, "container must be killed after the timeout")
	name := strings.TrimSpace(string(killed))
	assert.True(t, strings.HasPrefix(name, "devsecwatch-scan-"))

	run, err := os.ReadFile(runLog)
	require.NoError(t, err)
	assert.Contains(t, string(run), "--name "+name)
}

func TestRunToolParentCancelled(t *testing.T) {
	binDir := fakeEngine(t, `exec sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := RunTool(ctx, Tool{Name: filepath.Join(binDir, "semgrep"), Timeout: 10 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestAnalyzeMalformedOutput(t *testing.T) {
	binDir := fakeEngine(t, `echo "not json at all" > "$5"`)

	_, err := newTestAnalyzer(binDir, 10*time.Second).Analyze(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestAnalyzeDrainsLargeOutput(t *testing.T) {
	// Well past a 64KiB pipe buffer on both streams.
	binDir := fakeEngine(t, `i=0
while [ $i -lt 4000 ]; do
  echo "stdout line $i padding padding padding padding padding"
  echo "stderr line $i padding padding padding padding padding" >&2
  i=$((i+1))
done
echo '{"results": []}' > "$5"`)

	report, err := newTestAnalyzer(binDir, 30*time.Second).Analyze(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestRunToolKeepsStderrTail(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	res, err := RunTool(context.Background(), Tool{
		Name:    "sh",
		Args:    []string{"-c", `i=0; while [ $i -lt 2000 ]; do echo "line $i" >&2; i=$((i+1)); done; exit 3`},
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.LessOrEqual(t, len(res.Stderr), stderrTailBytes)
	assert.True(t, strings.HasSuffix(res.Stderr, "line 1999\n"))
}

func TestRunToolMissingBinary(t *testing.T) {
	_, err := RunTool(context.Background(), Tool{Name: "definitely-not-a-real-binary-xyz"})
	assert.ErrorIs(t, err, ErrExecution)
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 5}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "cdefg", b.String())
}
