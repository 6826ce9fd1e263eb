// Package tests contains repo-wide acceptance checks.
//
// Run with: go test -v ./tests/...
package tests

import (
	"os/exec"
	"strings"
	"testing"
)

// TestBuildSucceeds validates the project compiles without errors.
func TestBuildSucceeds(t *testing.T) {
	cmd := exec.Command("go", "build", "./...")
	cmd.Dir = ".."
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Build failed: %v\nOutput: %s", err, output)
	}
}

// TestUnitTestsPass ensures all package-level unit tests pass.
func TestUnitTestsPass(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping nested test run in short mode")
	}
	cmd := exec.Command("go", "test", "./internal/...", "./pkg/...", "./cmd/...")
	cmd.Dir = ".."
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Unit tests failed: %v\nOutput: %s", err, output)
	}
}

// TestNoVetErrors ensures go vet passes.
func TestNoVetErrors(t *testing.T) {
	cmd := exec.Command("go", "vet", "./...")
	cmd.Dir = ".."
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go vet failed: %v\nOutput: %s", err, output)
	}
}

// TestFormattingCorrect ensures gofmt passes.
func TestFormattingCorrect(t *testing.T) {
	cmd := exec.Command("gofmt", "-l", "cmd", "internal", "pkg", "migrations", "scripts", "tests")
	cmd.Dir = ".."
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("gofmt check failed: %v", err)
	}
	if len(strings.TrimSpace(string(output))) > 0 {
		t.Fatalf("Files need formatting:\n%s", output)
	}
}
