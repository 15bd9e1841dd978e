//nolint:thelper // ok for tests
package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func collect(ch <-chan int, wg *sync.WaitGroup, out *[]int) {
	defer wg.Done()
	for v := range ch {
		*out = append(*out, v)
	}
}

func TestFanOut(t *testing.T) {
	src := make(chan int)
	b := NewBroadcastServer("test", "fanout", src, WithSendTimeout[int](time.Second))

	var wg sync.WaitGroup
	var got1, got2 []int
	wg.Add(2)
	go collect(b.Subscribe(), &wg, &got1)
	go collect(b.Subscribe(), &wg, &got2)

	for i := range 5 {
		src <- i
	}
	close(src)
	wg.Wait()
	<-b.Done()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got2)
}

func TestCancelSubscription(t *testing.T) {
	src := make(chan int)
	b := NewBroadcastServer("test", "cancel", src)
	defer b.Close()

	ch := b.Subscribe()
	b.CancelSubscription(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestSlowSubscriberIsSkipped(t *testing.T) {
	src := make(chan int)
	b := NewBroadcastServer("test", "slow", src, WithSendTimeout[int](5*time.Millisecond))
	_ = b.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := range 3 {
			src <- i
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("source blocked by slow subscriber")
	}
	b.Close()
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBroadcastServer("test", "closed", make(chan int))
	b.Close()
	_, ok := <-b.Subscribe()
	assert.False(t, ok)
}
