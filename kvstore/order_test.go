package kvstore

import (
	"context"
	"testing"
	"time"
)

func TestOrderSourceMintsIncreasingTokens(t *testing.T) {
	var s OrderSource
	a := s.Next("read")
	b := s.Next("write")
	if b.Sequence <= a.Sequence {
		t.Fatalf("expected strictly increasing sequence numbers, got %d then %d", a.Sequence, b.Sequence)
	}
}

func TestTokenSourceReadsProceedConcurrently(t *testing.T) {
	ts := NewTokenSource()
	h1 := ts.NewReadToken()
	h2 := ts.NewReadToken()
	ctx := context.Background()
	if err := h1.Wait(ctx); err != nil {
		t.Fatalf("h1: %v", err)
	}
	if err := h2.Wait(ctx); err != nil {
		t.Fatalf("h2: two concurrent reads must both be admitted: %v", err)
	}
	h1.Release()
	h2.Release()
}

func TestTokenSourceWriteIsExclusive(t *testing.T) {
	ts := NewTokenSource()
	reader := ts.NewReadToken()
	ctx := context.Background()
	if err := reader.Wait(ctx); err != nil {
		t.Fatalf("reader: %v", err)
	}
	writer := ts.NewWriteToken()
	admitted := make(chan struct{})
	go func() {
		writer.Wait(ctx)
		close(admitted)
	}()
	select {
	case <-admitted:
		t.Fatalf("writer must not be admitted while a reader is active")
	case <-time.After(30 * time.Millisecond):
	}
	reader.Release()
	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatalf("writer should be admitted once the reader releases")
	}
	writer.Release()
}

func TestTokenSourcePreservesFIFOAmongWriters(t *testing.T) {
	ts := NewTokenSource()
	ctx := context.Background()
	first := ts.NewWriteToken()
	if err := first.Wait(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	second := ts.NewWriteToken()
	order := make(chan int, 2)
	go func() {
		second.Wait(ctx)
		order <- 2
	}()
	time.Sleep(20 * time.Millisecond)
	order <- 1
	first.Release()
	if got := <-order; got != 1 {
		t.Fatalf("expected the first writer's marker to have already been sent")
	}
	if got := <-order; got != 2 {
		t.Fatalf("expected the second writer admitted only after the first released, got %d", got)
	}
	second.Release()
}

func TestAdmissionHandleWaitRespectsCancellation(t *testing.T) {
	ts := NewTokenSource()
	writer := ts.NewWriteToken()
	ctx := context.Background()
	if err := writer.Wait(ctx); err != nil {
		t.Fatalf("writer: %v", err)
	}
	blocked := ts.NewWriteToken()
	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := blocked.Wait(cctx); err != ErrInterrupted {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	writer.Release()
}
