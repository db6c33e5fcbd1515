package config_test

import (
	"errors"
	"log"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/louisbranch/signals.agent/internal/platform/config"
)

// os.Exit cannot be intercepted in-process, so the failing branch runs in a
// subprocess.
func TestExitfWritesPrefixedMessageAndExits(t *testing.T) {
	if os.Getenv("SIGNALS_AGENT_EXITF_SUBPROCESS") == "1" {
		log.SetPrefix("[SIGNALS] ")
		config.Exitf("load .env: %s", "permission denied")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExitfWritesPrefixedMessageAndExits$")
	cmd.Env = append(os.Environ(), "SIGNALS_AGENT_EXITF_SUBPROCESS=1")
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	if got := exitErr.ExitCode(); got != 1 {
		t.Fatalf("exit code = %d, want 1", got)
	}
	want := "[SIGNALS] load .env: permission denied"
	if !strings.Contains(string(out), want) {
		t.Fatalf("output = %q, want it to contain %q", out, want)
	}
}
