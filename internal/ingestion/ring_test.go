package ingestion

import (
	"context"
	"testing"
	"time"
)

func TestRingReadSinceReturnsAppendedData(t *testing.T) {
	r := NewRing(64)
	r.Append([]byte("hello"))

	data, cursor := r.ReadSince(0)
	if string(data) != "hello" {
		t.Fatalf("ReadSince = %q, want %q", data, "hello")
	}
	if cursor != 5 {
		t.Fatalf("cursor = %d, want 5", cursor)
	}

	data, _ = r.ReadSince(cursor)
	if len(data) != 0 {
		t.Fatalf("expected no new data at caught-up cursor, got %q", data)
	}
}

func TestRingWrapDiscardsOldestForSlowConsumer(t *testing.T) {
	r := NewRing(4)
	r.Append([]byte("abcd"))
	r.Append([]byte("efgh")) // wraps, discarding "abcd"

	data, cursor := r.ReadSince(0)
	if string(data) != "efgh" {
		t.Fatalf("ReadSince(0) = %q, want %q (oldest bytes discarded)", data, "efgh")
	}
	if cursor != 8 {
		t.Fatalf("cursor = %d, want 8", cursor)
	}
}

func TestRingOffsetReflectsWrites(t *testing.T) {
	r := NewRing(64)
	if r.Offset() != 0 {
		t.Fatalf("Offset() = %d, want 0", r.Offset())
	}
	r.Append([]byte("12345"))
	if r.Offset() != 5 {
		t.Fatalf("Offset() = %d, want 5", r.Offset())
	}
}

func TestRingWaitSinceUnblocksOnAppend(t *testing.T) {
	r := NewRing(64)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan []byte, 1)
	go func() {
		data, _, err := r.WaitSince(ctx, 0)
		if err != nil {
			resultCh <- nil
			return
		}
		resultCh <- data
	}()

	time.Sleep(20 * time.Millisecond)
	r.Append([]byte("new data"))

	select {
	case got := <-resultCh:
		if string(got) != "new data" {
			t.Fatalf("WaitSince returned %q, want %q", got, "new data")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitSince did not unblock after Append")
	}
}

func TestRingWaitSinceRespectsContextCancellation(t *testing.T) {
	r := NewRing(64)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, _, err := r.WaitSince(ctx, 0)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected context.Canceled, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitSince did not return after context cancellation")
	}
}

func TestRingCloseUnblocksWaiters(t *testing.T) {
	r := NewRing(64)
	doneCh := make(chan struct{})
	go func() {
		r.WaitSince(context.Background(), 0) //nolint:errcheck
		close(doneCh)
	}()

	time.Sleep(20 * time.Millisecond)
	r.Close()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock WaitSince")
	}
}
