package worker_test

import (
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/mathspractice/adaptive/internal/worker"
)

func TestPool_RunsEveryJob(t *testing.T) {
	p := worker.NewPool[int](4, 8)

	const jobs = 50
	go func() {
		for i := 0; i < jobs; i++ {
			n := i
			p.Submit(fmt.Sprintf("job-%d", n), func() int { return n * n })
		}
		p.Close()
	}()

	var got []int
	seen := map[string]bool{}
	for r := range p.Results() {
		if seen[r.JobID] {
			t.Errorf("duplicate result for %s", r.JobID)
		}
		seen[r.JobID] = true
		got = append(got, r.Output)
	}

	if len(got) != jobs {
		t.Fatalf("expected %d results, got %d", jobs, len(got))
	}
	sort.Ints(got)
	for i, v := range got {
		if v != i*i {
			t.Errorf("expected %d, got %d", i*i, v)
		}
	}
}

func TestPool_LimitsConcurrency(t *testing.T) {
	const workers = 3
	p := worker.NewPool[struct{}](workers, 0)

	var running, peak int64
	release := make(chan struct{})
	go func() {
		for i := 0; i < 9; i++ {
			p.Submit(fmt.Sprint(i), func() struct{} {
				n := atomic.AddInt64(&running, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt64(&running, -1)
				return struct{}{}
			})
		}
		p.Close()
	}()

	close(release)
	count := 0
	for range p.Results() {
		count++
	}
	if count != 9 {
		t.Errorf("expected 9 results, got %d", count)
	}
	if peak > workers {
		t.Errorf("expected at most %d concurrent jobs, got %d", workers, peak)
	}
}

func TestPool_CloseTwice(t *testing.T) {
	p := worker.NewPool[int](1, 1)
	p.Close()
	p.Close()

	if _, ok := <-p.Results(); ok {
		t.Error("expected results to be closed")
	}
}
