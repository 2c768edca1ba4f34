package execx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunCapturesStreamsAndExitCode(t *testing.T) {
	res, err := Run(context.Background(),
		[]string{"sh", "-c", "echo out; echo err 1>&2; exit 3"}, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RC != 3 {
		t.Errorf("rc = %d, want 3", res.RC)
	}
	if res.Stdout != "out\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	res, err := Run(context.Background(),
		[]string{"sleep", "5"}, nil, 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if res.RC != -1 {
		t.Errorf("rc = %d, want -1", res.RC)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout did not interrupt the command")
	}
}

func TestRunEnvOverlay(t *testing.T) {
	res, err := Run(context.Background(),
		[]string{"sh", "-c", `printf "%s" "$FAXUSER"`},
		map[string]string{"FAXUSER": "faxworker"}, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "faxworker" {
		t.Errorf("overlay not applied: %q", res.Stdout)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	if _, err := Run(context.Background(), nil, nil, 0); err == nil {
		t.Fatal("want error for empty argv")
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(context.Background(),
		[]string{"/nonexistent/definitely-not-a-binary"}, nil, time.Second)
	if err == nil {
		t.Fatal("want error for missing binary")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("missing binary must not report timeout")
	}
}
