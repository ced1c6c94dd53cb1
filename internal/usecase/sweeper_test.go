package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{expr: "@every 1m"},
		{expr: "0 9 * * 1-5"},
		{expr: "*/10 * * * * *"},
		{expr: "@hourly"},
		{expr: "every minute", wantErr: true},
		{expr: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestSweeperNext(t *testing.T) {
	svc, _ := newService(t, &fakeClassifier{answer: "Access"})
	w, err := NewSweeper(svc, "@every 30s", 10, nil)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := w.Next(now); !got.Equal(now.Add(30 * time.Second)) {
		t.Errorf("Next = %v, want %v", got, now.Add(30*time.Second))
	}
}

func TestSweeperRunOnce(t *testing.T) {
	svc, tickets := newService(t, &fakeClassifier{answer: "Access"})
	ctx := context.Background()
	for _, text := range []string{"Locked out of SSO", "MFA token expired"} {
		if _, err := tickets.Create(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	w, err := NewSweeper(svc, "@every 1m", 0, nil)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	n, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("dispatched %d tickets, want 2", n)
	}
	if got := svc.Stats().AICalls; got != 2 {
		t.Errorf("AICalls = %d, want 2", got)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	svc, _ := newService(t, &fakeClassifier{answer: "Access"})
	w, err := NewSweeper(svc, "@every 1h", 0, nil)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	svc, _ := newService(t, &fakeClassifier{answer: "Access"})
	if _, err := NewSweeper(svc, "not a schedule", 0, nil); err == nil {
		t.Fatal("expected error")
	}
}
