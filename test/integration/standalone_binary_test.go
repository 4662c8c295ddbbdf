package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func buildBinary(t *testing.T) string {
	t.Helper()
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	goModPath := strings.TrimSpace(string(goModPathBytes))
	if goModPath == "" {
		t.Fatalf("go env GOMOD returned empty")
	}
	repoRoot := filepath.Dir(goModPath)

	binaryPath := filepath.Join(t.TempDir(), "phonelens")
	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/phonelens")
	build.Dir = repoRoot
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}
	return binaryPath
}

// isolatedEnv keeps the binary away from the developer's config and data.
func isolatedEnv(t *testing.T) []string {
	t.Helper()
	home := t.TempDir()
	return append(os.Environ(),
		"HOME="+home,
		"XDG_CONFIG_HOME="+filepath.Join(home, "config"),
		"XDG_DATA_HOME="+filepath.Join(home, "data"),
		"PHONELENS_STORE_ENABLED=false",
	)
}

func TestStandaloneBinaryVersionAndHelpWorkOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	binary := buildBinary(t)
	outside := t.TempDir()
	env := isolatedEnv(t)

	for _, args := range [][]string{{"version"}, {"--help"}, {"selectors", "--defaults"}} {
		command := exec.Command(binary, args...)
		command.Dir = outside
		command.Env = env
		out, err := command.CombinedOutput()
		if err != nil {
			t.Fatalf("%v failed: %v\n%s", args, err, string(out))
		}
		if args[0] == "selectors" && !strings.Contains(string(out), "{phone}") {
			t.Fatalf("selectors output has no search url:\n%s", string(out))
		}
	}
}

func TestBatchRejectsInputWithoutPhoneColumn(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	binary := buildBinary(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "numbers.csv")
	if err := os.WriteFile(input, []byte("0912345678\n0912345679\n"), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}

	command := exec.Command(binary, "batch", input)
	command.Dir = dir
	command.Env = isolatedEnv(t)
	out, err := command.CombinedOutput()
	if err == nil {
		t.Fatalf("batch accepted input without a phone column:\n%s", string(out))
	}
	if _, ok := err.(*exec.ExitError); !ok {
		t.Fatalf("batch did not run: %v", err)
	}
}
