package ptychannel

import (
	"bytes"
	"testing"
	"time"
)

func TestOpenEchoAndReadAvailable(t *testing.T) {
	ch, err := Open("/bin/echo", []string{"hello"}, 24, 80, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close(100 * time.Millisecond)

	buf := make([]byte, 4096)
	var out []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := ch.ReadAvailable(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	if !bytes.Contains(out, []byte("hello")) {
		t.Fatalf("output = %q, want it to contain %q", out, "hello")
	}
}

func TestWriteRoundTripsThroughCat(t *testing.T) {
	ch, err := Open("/bin/cat", nil, 24, 80, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close(100 * time.Millisecond)

	if _, err := ch.Write([]byte("ping\n"), time.Second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 4096)
	var out []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !bytes.Contains(out, []byte("ping")) {
		n, err := ch.ReadAvailable(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	if !bytes.Contains(out, []byte("ping")) {
		t.Fatalf("output = %q, want echo of %q", out, "ping")
	}
}

func TestResizeAndDimensions(t *testing.T) {
	ch, err := Open("/bin/cat", nil, 24, 80, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close(100 * time.Millisecond)

	if err := ch.Resize(40, 120); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	rows, cols := ch.Dimensions()
	if rows != 40 || cols != 120 {
		t.Fatalf("Dimensions() = (%d, %d), want (40, 120)", rows, cols)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ch, err := Open("/bin/cat", nil, 24, 80, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ch.Close(50 * time.Millisecond); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(50 * time.Millisecond); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestExitedAfterChildExits(t *testing.T) {
	ch, err := Open("/bin/echo", []string{"done"}, 24, 80, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close(100 * time.Millisecond)

	buf := make([]byte, 4096)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := ch.ReadAvailable(buf); err != nil {
			break
		}
	}
	exited, _ := ch.Exited()
	if !exited {
		t.Fatal("expected Exited() true after child closed its output")
	}
}

func TestExtraEnvOverridesInherited(t *testing.T) {
	ch, err := Open("/bin/sh", []string{"-c", "printenv PILOTY_TEST_VAR"}, 24, 80, map[string]string{
		"PILOTY_TEST_VAR": "override-value",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close(100 * time.Millisecond)

	buf := make([]byte, 4096)
	var out []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := ch.ReadAvailable(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	if !bytes.Contains(out, []byte("override-value")) {
		t.Fatalf("output = %q, want env override to be visible", out)
	}
}
