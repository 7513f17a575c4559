package licensing

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestKeyedMutex_SerialisesSameName(t *testing.T) {
	km := newKeyedMutex()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("key:A")
			n := atomic.AddInt32(&inside, 1)
			for {
				old := atomic.LoadInt32(&maxInside)
				if n <= old || atomic.CompareAndSwapInt32(&maxInside, old, n) {
					break
				}
			}
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("Expected at most one holder, saw %d", maxInside)
	}
	if km.size() != 0 {
		t.Errorf("Expected lock table to drain, has %d entries", km.size())
	}
}

func TestKeyedMutex_DistinctNamesDoNotBlock(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("key:A")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("key:B")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()

	if km.size() != 0 {
		t.Errorf("Expected empty lock table, has %d entries", km.size())
	}
}
