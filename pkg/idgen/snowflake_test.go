package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestSnowflakeUniqueAndIncreasing(t *testing.T) {
	s := &Snowflake{workerID: 3}
	var last int64
	for i := 0; i < 10000; i++ {
		id := s.Generate()
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestSnowflakeConcurrent(t *testing.T) {
	s := &Snowflake{workerID: 7}
	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := s.Generate()
				mu.Lock()
				if seen[id] {
					mu.Unlock()
					t.Errorf("duplicate id %d", id)
					return
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestGenerateNumbers(t *testing.T) {
	cor := GenerateCorrectionNo()
	if !strings.HasPrefix(cor, "COR") || len(cor) != 3+14+8 {
		t.Fatalf("unexpected correction no %q", cor)
	}
	adj := GenerateAdjustmentNo()
	if !strings.HasPrefix(adj, "ADJ") || len(adj) != 3+14+8 {
		t.Fatalf("unexpected adjustment no %q", adj)
	}
}
