package refresh

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
)

func BenchmarkRefreshShortcut(b *testing.B) {
	c, err := New(Config{
		Exchange: func(context.Context) (string, error) { return "", nil },
		Current:  func() string { return "fresh" },
	})
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Refresh(ctx, "stale"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRefreshExchange(b *testing.B) {
	box := &tokenBox{}
	var n atomic.Int64
	c, err := New(Config{
		Exchange: func(context.Context) (string, error) {
			return "tok-" + strconv.FormatInt(n.Add(1), 10), nil
		},
		Current:   box.get,
		OnSuccess: box.store,
	})
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Refresh(ctx, box.get()); err != nil {
			b.Fatal(err)
		}
	}
}
