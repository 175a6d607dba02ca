package kv

import (
	"context"
	"testing"
	"time"
)

func TestLimiterFailsOpenWithoutRedis(t *testing.T) {
	l, err := NewLoginLimiter("", 3, time.Minute)
	if err != nil {
		t.Fatalf("NewLoginLimiter: %v", err)
	}
	if l.Available() {
		t.Fatal("expected no backend")
	}
	for i := 0; i < 10; i++ {
		ok, err := l.Allow(context.Background(), "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	l.Reset(context.Background(), "1.2.3.4")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewLoginLimiterRejectsBadURL(t *testing.T) {
	if _, err := NewLoginLimiter("not a url", 3, time.Minute); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}
