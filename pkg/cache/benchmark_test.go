package cache

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

// BenchmarkCacheGet benchmarks TTL cache Get operations.
func BenchmarkCacheGet(b *testing.B) {
	cache, err := NewTTL[string](context.Background(), 5*time.Minute, 1*time.Minute)
	if err != nil {
		b.Fatal(err)
	}
	defer cache.Close()

	for i := 0; i < 1000; i++ {
		_, _ = cache.Set(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("key%d", rand.Intn(1000))
			cache.Get(key)
		}
	})
}

// BenchmarkCacheSet benchmarks TTL cache Set operations.
func BenchmarkCacheSet(b *testing.B) {
	cache, err := NewTTL[string](context.Background(), 5*time.Minute, 1*time.Minute)
	if err != nil {
		b.Fatal(err)
	}
	defer cache.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key%d", i)
			value := fmt.Sprintf("value%d", i)
			_, _ = cache.Set(key, value)
			i++
		}
	})
}

// BenchmarkCacheMixed benchmarks mixed Get/Set/Delete operations.
func BenchmarkCacheMixed(b *testing.B) {
	cache, err := NewTTL[string](context.Background(), 5*time.Minute, 1*time.Minute)
	if err != nil {
		b.Fatal(err)
	}
	defer cache.Close()

	for i := 0; i < 500; i++ {
		_, _ = cache.Set(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 500
		for pb.Next() {
			switch rand.Intn(5) {
			case 0, 1: // 40% reads
				key := fmt.Sprintf("key%d", rand.Intn(1000))
				cache.Get(key)
			case 2, 3: // 40% writes
				key := fmt.Sprintf("key%d", i)
				value := fmt.Sprintf("value%d", i)
				_, _ = cache.Set(key, value)
				i++
			case 4: // 20% deletes
				key := fmt.Sprintf("key%d", rand.Intn(1000))
				_, _ = cache.Delete(key)
			}
		}
	})
}

// BenchmarkTTLCleanup benchmarks TTL cleanup performance.
func BenchmarkTTLCleanup(b *testing.B) {
	cache, err := NewTTL[string](context.Background(), 1*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		b.Fatal(err)
	}
	defer cache.Close()

	for i := 0; i < 1000; i++ {
		_, _ = cache.Set(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))
	}

	time.Sleep(20 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get(fmt.Sprintf("key%d", i%1000))
	}
}

// BenchmarkConcurrentAccess benchmarks concurrent access patterns.
func BenchmarkConcurrentAccess(b *testing.B) {
	cache, err := NewTTL[string](context.Background(), 5*time.Minute, 1*time.Minute)
	if err != nil {
		b.Fatal(err)
	}
	defer cache.Close()

	for i := 0; i < 1000; i++ {
		_, _ = cache.Set(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			go func() {
				cache.Get(fmt.Sprintf("key%d", rand.Intn(1000)))
			}()

			go func() {
				_, _ = cache.Set(fmt.Sprintf("key%d", rand.Intn(2000)), "new_value")
			}()

			if rand.Intn(100) == 0 {
				cache.Size()
			}
		}
	})
}

// BenchmarkConfigCreation benchmarks cache creation from configuration.
func BenchmarkConfigCreation(b *testing.B) {
	config := Config{Enabled: true, TTL: 5 * time.Minute, CleanupInterval: 1 * time.Minute}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache, err := NewFromConfig[string](context.Background(), config)
		if err != nil {
			b.Fatal(err)
		}
		cache.Close()
	}
}

// BenchmarkExample_ReadHeavy simulates a read-heavy workload (90% reads, 10% writes).
func BenchmarkExample_ReadHeavy(b *testing.B) {
	cache, err := NewTTL[string](context.Background(), 5*time.Minute, 1*time.Minute)
	if err != nil {
		b.Fatal(err)
	}
	defer cache.Close()

	for i := 0; i < 1000; i++ {
		_, _ = cache.Set(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if rand.Intn(10) == 0 { // 10% writes
				key := fmt.Sprintf("key%d", rand.Intn(2000))
				_, _ = cache.Set(key, "updated_value")
			} else { // 90% reads
				key := fmt.Sprintf("key%d", rand.Intn(1000))
				cache.Get(key)
			}
		}
	})
}

// BenchmarkExample_WriteHeavy simulates a write-heavy workload (70% writes, 30% reads).
func BenchmarkExample_WriteHeavy(b *testing.B) {
	cache, err := NewTTL[string](context.Background(), 5*time.Minute, 1*time.Minute)
	if err != nil {
		b.Fatal(err)
	}
	defer cache.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if rand.Intn(10) < 7 { // 70% writes
				key := fmt.Sprintf("key%d", i)
				_, _ = cache.Set(key, fmt.Sprintf("value%d", i))
				i++
			} else { // 30% reads
				key := fmt.Sprintf("key%d", rand.Intn(i+1))
				cache.Get(key)
			}
		}
	})
}
