package redislock

import (
	"context"
	"errors"
	"testing"
)

func TestNoopLockerRunsBody(t *testing.T) {
	l := NewNoopLocker()
	ran := false
	err := l.WithSlotLock(context.Background(), "slot-1", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithSlotLock: %v", err)
	}
	if !ran {
		t.Error("body was not invoked")
	}
}

func TestNoopLockerPropagatesBodyError(t *testing.T) {
	l := NewNoopLocker()
	want := errors.New("backend down")
	err := l.WithSlotLock(context.Background(), "slot-1", func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}
