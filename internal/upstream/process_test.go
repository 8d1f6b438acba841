package upstream

import (
	"bufio"
	"testing"

	"go.uber.org/zap"
)

func TestStart_EmptyCommand(t *testing.T) {
	if _, err := Start(nil, zap.NewNop()); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestStart_PipesAndExit(t *testing.T) {
	// cat echoes stdin to stdout and exits on stdin EOF, which is exactly
	// the stdio contract the pump relies on.
	proc, err := Start([]string{"cat"}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := proc.Stdin().Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	line, err := bufio.NewReader(proc.Stdout()).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "hello\n" {
		t.Fatalf("unexpected echo %q", line)
	}

	if err := proc.Stdin().Close(); err != nil {
		t.Fatal(err)
	}
	if code := proc.Wait(); code != 0 {
		t.Fatalf("expected clean exit, got %d", code)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	if _, err := Start([]string{"definitely-not-a-real-binary-xyz"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
