package errors

import (
	"errors"
	"fmt"
	"testing"
)

func BenchmarkErrorCollector_AddError(b *testing.B) {
	collector := NewErrorCollector()
	err := errors.New("upstream returned 503")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.AddError("community-plugins", err)
	}
}

func BenchmarkErrorCollector_GetErrors(b *testing.B) {
	collector := NewErrorCollector()
	for i := 0; i < 100; i++ {
		collector.AddError(fmt.Sprintf("loader-%d", i%5), errors.New("failed"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = collector.GetErrors()
	}
}

func BenchmarkErrorCollector_Concurrent(b *testing.B) {
	collector := NewErrorCollector()
	err := errors.New("failed")

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			collector.AddError("official-plugins", err)
			_ = collector.HasErrors()
		}
	})
}

func BenchmarkHasCode(b *testing.B) {
	err := fmt.Errorf("build: %w", WrapUpstream(errors.New("429"), ErrCodeRateLimited, "rate limited"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = HasCode(err, ErrCodeRateLimited)
	}
}
