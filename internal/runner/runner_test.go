package runner

import (
	"context"
	"errors"
	"testing"
)

func TestRunCapture(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), false, Capture, "echo", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestRunCaptureNonZeroExit(t *testing.T) {
	r := New()
	_, err := r.Run(context.Background(), false, Capture, "false")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}

	var cmdErr *ExternalCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *ExternalCommandError, got %T", err)
	}
	if cmdErr.Exit != 1 {
		t.Fatalf("exit = %d, want 1", cmdErr.Exit)
	}
}

func TestRunBackgroundReturnsPID(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), false, Background, "sleep", "0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout == "" {
		t.Fatal("expected a pid in stdout")
	}
}

func TestPrivilegeRequiredWithoutSudo(t *testing.T) {
	r := &Runner{SudoPath: "/nonexistent/sudo"}
	if IsRoot() {
		t.Skip("test process is root; sudo elevation path is not exercised")
	}
	_, err := r.prefix(true)
	if !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("expected ErrPrivilegeRequired, got %v", err)
	}
}
