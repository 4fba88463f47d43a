package realtime

import (
	"math/rand/v2"
	"sync"
	"testing"

	"mktstream/internal/application/port"
)

const testChannel = "market.quote.SSI"

func newTestRegistry(t *testing.T, state StateReader, opts ...DispatcherOption) (*Registry, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	r := NewRegistry(ft, state, opts...)
	t.Cleanup(r.Close)
	return r, ft
}

func TestAcquireSubscribesOnFirstReference(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	r.Acquire(testChannel, nil)
	r.Acquire(testChannel, nil)
	r.Acquire(testChannel, nil)
	r.flush()

	if got := ft.subCount(testChannel); got != 1 {
		t.Fatalf("subscribe count=%d, want 1", got)
	}
	if got := r.Refs(testChannel); got != 3 {
		t.Fatalf("refs=%d, want 3", got)
	}
}

func TestReleaseUnsubscribesOnLastReference(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	r.Acquire(testChannel, nil)
	r.Acquire(testChannel, nil)
	r.Release(testChannel, nil)
	r.flush()

	if got := ft.unsubCount(testChannel); got != 0 {
		t.Fatalf("unsubscribe after partial release=%d, want 0", got)
	}

	r.Release(testChannel, nil)
	r.flush()

	if got := ft.unsubCount(testChannel); got != 1 {
		t.Fatalf("unsubscribe count=%d, want 1", got)
	}
	if got := ft.closeCount(testChannel); got != 1 {
		t.Fatalf("close channel count=%d, want 1", got)
	}
	if got := r.Refs(testChannel); got != 0 {
		t.Fatalf("refs=%d, want 0", got)
	}
	if chs := r.Channels(); len(chs) != 0 {
		t.Fatalf("channels=%v, want none", chs)
	}
}

func TestReleaseWithoutReferencesIsNoop(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	r.Release(testChannel, nil)
	r.Acquire(testChannel, nil)
	r.Release(testChannel, nil)
	r.Release(testChannel, nil)
	r.flush()

	if got := ft.subCount(testChannel); got != 1 {
		t.Fatalf("subscribe count=%d, want 1", got)
	}
	if got := ft.unsubCount(testChannel); got != 1 {
		t.Fatalf("unsubscribe count=%d, want 1", got)
	}
	if got := r.Refs(testChannel); got != 0 {
		t.Fatalf("refs=%d, want 0", got)
	}

	// 计数归零后重新订阅
	r.Acquire(testChannel, nil)
	r.flush()
	if got := ft.subCount(testChannel); got != 2 {
		t.Fatalf("subscribe count after re-acquire=%d, want 2", got)
	}
}

func TestCallbackRegistrationIsIdempotent(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	var rec recorder
	cb := rec.callback()
	r.Acquire(testChannel, cb)
	r.Acquire(testChannel, cb)
	r.flush()

	if got := len(r.Callbacks(testChannel)); got != 1 {
		t.Fatalf("callbacks=%d, want 1", got)
	}

	ft.publish(t, testChannel, `{"s":"SSI"}`)
	ft.publish(t, testChannel, `{"s":"SSI"}`)
	waitFor(t, "two deliveries", func() bool { return rec.count() == 2 })

	// 同一回调释放一次后不再收到消息，但频道仍被引用
	r.Release(testChannel, cb)
	r.flush()
	if got := r.Refs(testChannel); got != 1 {
		t.Fatalf("refs=%d, want 1", got)
	}
	if got := len(r.Callbacks(testChannel)); got != 0 {
		t.Fatalf("callbacks=%d, want 0", got)
	}
}

func TestDistinctCallbacksAllReceive(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	var a, b recorder
	cbA, cbB := a.callback(), b.callback()
	r.Acquire(testChannel, cbA)
	r.Acquire(testChannel, cbB)
	r.flush()

	ft.publish(t, testChannel, `{}`)
	waitFor(t, "both callbacks", func() bool { return a.count() == 1 && b.count() == 1 })

	r.Release(testChannel, cbA)
	ft.publish(t, testChannel, `{}`)
	waitFor(t, "second delivery to b", func() bool { return b.count() == 2 })
	if got := a.count(); got != 1 {
		t.Fatalf("released callback received %d messages, want 1", got)
	}
}

func TestPanickingCallbackDoesNotStopDelivery(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	var rec recorder
	r.Acquire(testChannel, NewCallback(func(port.Message) { panic("boom") }))
	r.Acquire(testChannel, rec.callback())
	r.flush()

	ft.publish(t, testChannel, `{}`)
	ft.publish(t, testChannel, `{}`)
	waitFor(t, "deliveries after panic", func() bool { return rec.count() == 2 })
}

func TestDeferredSubscribeUntilReconcile(t *testing.T) {
	state := newFixedState(StateDisconnected)
	r, ft := newTestRegistry(t, state)

	r.Acquire(testChannel, nil)
	r.Acquire("market.status", nil)
	r.flush()
	if got := ft.subCount(testChannel); got != 0 {
		t.Fatalf("subscribe while disconnected=%d, want 0", got)
	}

	state.set(StateConnected)
	r.Reconcile()
	r.Reconcile()
	r.flush()

	if got := ft.subCount(testChannel); got != 1 {
		t.Fatalf("subscribe after reconcile=%d, want 1", got)
	}
	if got := ft.subCount("market.status"); got != 1 {
		t.Fatalf("status subscribe after reconcile=%d, want 1", got)
	}
}

func TestDeferredReleaseSendsNoUnsubscribe(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateDisconnected))

	r.Acquire(testChannel, nil)
	r.Release(testChannel, nil)
	r.flush()

	if got := ft.unsubCount(testChannel); got != 0 {
		t.Fatalf("unsubscribe count=%d, want 0", got)
	}
}

func TestInvalidateReissuesOnReconcile(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	r.Acquire(testChannel, nil)
	r.Acquire(testChannel, nil)
	r.flush()

	r.Invalidate()
	r.Reconcile()
	r.flush()

	if got := ft.subCount(testChannel); got != 2 {
		t.Fatalf("subscribe count=%d, want 2", got)
	}
	if got := r.Refs(testChannel); got != 2 {
		t.Fatalf("refs=%d, want 2", got)
	}
}

func TestSubscribeFailureRetriedOnReconcile(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	ft.failSubscribe(testChannel)
	r.Acquire(testChannel, nil)
	r.flush()
	if got := ft.subCount(testChannel); got != 0 {
		t.Fatalf("subscribe count=%d, want 0", got)
	}

	r.Reconcile()
	r.flush()
	if got := ft.subCount(testChannel); got != 1 {
		t.Fatalf("subscribe count after reconcile=%d, want 1", got)
	}
}

func TestAcquireWithAuthForwardsToken(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	r.AcquireWithAuth(testChannel, nil, "token-1")
	r.flush()

	ft.mu.Lock()
	got := ft.auths[testChannel]
	ft.mu.Unlock()
	if got != "token-1" {
		t.Fatalf("auth=%v, want token-1", got)
	}
}

func TestHoldReleasesOnce(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	r.Acquire(testChannel, nil)
	lease := r.Hold(testChannel, nil)
	lease.Release()
	lease.Release()
	r.flush()

	if got := r.Refs(testChannel); got != 1 {
		t.Fatalf("refs=%d, want 1", got)
	}
	if got := ft.unsubCount(testChannel); got != 0 {
		t.Fatalf("unsubscribe count=%d, want 0", got)
	}
}

func TestJoinLeasesReleasesAll(t *testing.T) {
	r, _ := newTestRegistry(t, newFixedState(StateConnected))

	joined := JoinLeases(r.Hold("a", nil), r.Hold("b", nil), nil)
	joined.Release()

	if chs := r.Channels(); len(chs) != 0 {
		t.Fatalf("channels=%v, want none", chs)
	}
}

func TestConcurrentAcquireReleaseBalancesWireTraffic(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	const workers, rounds = 32, 500
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var rec recorder
			cb := rec.callback()
			for j := 0; j < rounds; j++ {
				r.Acquire(testChannel, cb)
				r.Release(testChannel, cb)
			}
		}()
	}
	wg.Wait()
	r.flush()

	subs, unsubs := ft.subCount(testChannel), ft.unsubCount(testChannel)
	if subs == 0 {
		t.Fatal("expected at least one subscribe")
	}
	if subs != unsubs {
		t.Fatalf("subscribes=%d unsubscribes=%d, want equal", subs, unsubs)
	}
	if got := r.Refs(testChannel); got != 0 {
		t.Fatalf("refs=%d, want 0", got)
	}
	if got := len(r.Callbacks(testChannel)); got != 0 {
		t.Fatalf("callbacks=%d, want 0", got)
	}
}

func TestRandomSequenceMatchesReferenceCount(t *testing.T) {
	r, ft := newTestRegistry(t, newFixedState(StateConnected))

	names := []string{"market.quote.SSI", "market.bidoffer.SSI", "market.status"}
	refs := make(map[string]int)
	ups := make(map[string]int)
	downs := make(map[string]int)

	rng := rand.New(rand.NewPCG(7, 42))
	for i := 0; i < 5000; i++ {
		name := names[rng.IntN(len(names))]
		if rng.IntN(2) == 0 {
			r.Acquire(name, nil)
			refs[name]++
			if refs[name] == 1 {
				ups[name]++
			}
			continue
		}
		r.Release(name, nil)
		if refs[name] == 0 {
			continue
		}
		refs[name]--
		if refs[name] == 0 {
			downs[name]++
		}
	}
	r.flush()

	for _, name := range names {
		if got := ft.subCount(name); got != ups[name] {
			t.Errorf("%s subscribes=%d, want %d", name, got, ups[name])
		}
		if got := ft.unsubCount(name); got != downs[name] {
			t.Errorf("%s unsubscribes=%d, want %d", name, got, downs[name])
		}
		if got := r.Refs(name); got != refs[name] {
			t.Errorf("%s refs=%d, want %d", name, got, refs[name])
		}
	}
}
