package membership

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thirstycrow/atomix/internal/domain"
)

func TestScheduler_SubmitRunsTask(t *testing.T) {
	s := newScheduler()
	s.start()
	defer s.stop()

	done := make(chan struct{})
	s.submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted task did not run")
	}
}

func TestScheduler_RunsTasksInOrder(t *testing.T) {
	s := newScheduler()
	s.start()
	defer s.stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		s.submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of submission order: %v", order)
		}
	}
}

func TestScheduler_RecoversPanickingTask(t *testing.T) {
	s := newScheduler()
	s.start()
	defer s.stop()

	done := make(chan struct{})
	s.submit(func() { panic("boom") })
	s.submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler must continue running tasks after a panic")
	}
}

func TestScheduler_Every_FiresRepeatedly(t *testing.T) {
	s := newScheduler()
	s.start()
	defer s.stop()

	var count int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.every(ctx, 10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	time.Sleep(60 * time.Millisecond)
	cancel()
	if atomic.LoadInt32(&count) < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", count)
	}
}

func TestEventBus_DeliversInOrder(t *testing.T) {
	b := newEventBus()
	b.start()
	defer b.stop()

	var mu sync.Mutex
	var received []domain.EventType
	done := make(chan struct{})
	b.subscribe(func(e domain.Event) {
		mu.Lock()
		received = append(received, e.Type)
		n := len(received)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	})

	b.post(domain.Event{Type: domain.MemberAdded})
	b.post(domain.Event{Type: domain.ReachabilityChanged})
	b.post(domain.Event{Type: domain.MemberRemoved})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not receive all events")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []domain.EventType{domain.MemberAdded, domain.ReachabilityChanged, domain.MemberRemoved}
	for i, w := range want {
		if received[i] != w {
			t.Fatalf("received = %v, want %v", received, want)
		}
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	b := newEventBus()
	b.start()
	defer b.stop()

	var count int32
	token := b.subscribe(func(domain.Event) { atomic.AddInt32(&count, 1) })
	b.unsubscribe(token)

	b.post(domain.Event{Type: domain.MemberAdded})
	time.Sleep(20 * time.Millisecond)

	if atomic.LoadInt32(&count) != 0 {
		t.Error("an unsubscribed listener must not receive further events")
	}
}
