package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// fixture lays out two iterations of two realizations each, with a volume
// table per realization.
func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	volumes := map[string][2]string{
		"iter-0": {"ZONE,VOLUME\nA,10\nB,20\n", "ZONE,VOLUME\nA,30\nB,40\n"},
		"iter-1": {"ZONE,VOLUME\nA,11\nB,22\n", "ZONE,VOLUME\nA,33\nB,44\n"},
	}
	for iteration, tables := range volumes {
		for i, table := range tables {
			dir := filepath.Join(root, "realization-"+string(rune('0'+i)), iteration)
			writeFile(t, filepath.Join(dir, "volumes.csv"), table)
			writeFile(t, filepath.Join(dir, "npv.txt"), string(rune('1'+i))+"\n")
		}
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestAggregateCommand(t *testing.T) {
	root := fixture(t)
	out, err := run(t, "aggregate",
		"-e", "iter-0="+filepath.Join(root, "realization-*", "iter-0"),
		"-l", "volumes.csv", "--stat", "mean", "--key", "volumes.csv")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if out != "ZONE,VOLUME\nA,20\nB,30\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestDiffCommand(t *testing.T) {
	root := fixture(t)
	out, err := run(t, "diff",
		"-e", "iter-0="+filepath.Join(root, "realization-*", "iter-0"),
		"-e", "iter-1="+filepath.Join(root, "realization-*", "iter-1"),
		"-l", "csv:volumes.csv", "--key", "volumes.csv")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	for _, line := range []string{"0,A,1", "0,B,2", "1,A,3", "1,B,4"} {
		if !strings.Contains(out, line) {
			t.Fatalf("expected %q in output %q", line, out)
		}
	}
}

func TestStackCommand(t *testing.T) {
	root := fixture(t)
	out, err := run(t, "stack",
		"-e", "iter-0="+filepath.Join(root, "realization-*", "iter-0"),
		"-e", "iter-1="+filepath.Join(root, "realization-*", "iter-1"),
		"-l", "scalar:npv.txt", "-l", "volumes.csv", "--key", "npv")
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	want := "ENSEMBLE,REAL,value\niter-0,0,1\niter-0,1,2\niter-1,0,1\niter-1,1,2\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestCommandRejectsDuplicateEnsembleNames(t *testing.T) {
	root := fixture(t)
	pattern := filepath.Join(root, "realization-*", "iter-0")
	_, err := run(t, "stack", "-e", "a="+pattern, "-e", "a="+pattern, "--key", "npv")
	if err == nil || !strings.Contains(err.Error(), "duplicate ensemble") {
		t.Fatalf("expected a duplicate ensemble error, got %v", err)
	}
}

func TestArchiveAndRestore(t *testing.T) {
	root := fixture(t)
	store := filepath.Join(t.TempDir(), "archive")
	out, err := run(t, "archive", "--store", store,
		"-e", "iter-0="+filepath.Join(root, "realization-*", "iter-0"),
		"-l", "scalar:npv.txt")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(out, "iter-0 ") || !strings.HasSuffix(out, " 2\n") {
		t.Fatalf("unexpected archive output %q", out)
	}

	out, err = run(t, "restore", "iter-0", "--store", store, "--key", "npv.txt")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(out, "0,1") || !strings.Contains(out, "1,2") {
		t.Fatalf("unexpected restore output %q", out)
	}
}

func TestMismatchCommand(t *testing.T) {
	root := fixture(t)
	obs := filepath.Join(t.TempDir(), "observations.yml")
	writeFile(t, obs, "scalar:\n  - key: npv.txt\n    value: 2\n")
	out, err := run(t, "mismatch", "--misfit", "--observations", obs,
		"-e", "iter-0="+filepath.Join(root, "realization-*", "iter-0"),
		"-l", "scalar:npv.txt")
	if err != nil {
		t.Fatalf("mismatch: %v", err)
	}
	if out != "REAL,MISFIT\n0,1\n1,0\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing ensemble", args: []string{"aggregate", "--key", "x.csv"}, want: "--ensemble"},
		{name: "malformed ensemble", args: []string{"aggregate", "--key", "x.csv", "-e", "nameless"}, want: "name=glob"},
		{name: "empty glob", args: []string{"aggregate", "--key", "x.csv", "-e", "a=" + t.TempDir()}, want: "no realization"},
		{name: "no store", args: []string{"restore", "iter-0", "--key", "x.csv"}, want: "no store configured"},
		{name: "bad log format", args: []string{"restore", "iter-0", "--key", "x", "--log-format", "xml"}, want: "log format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
