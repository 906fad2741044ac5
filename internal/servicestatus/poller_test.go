package servicestatus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"opsdash/internal/command"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner 按服务名返回固定状态，可选阻塞直到 release 关闭
type fakeRunner struct {
	states  map[string]command.ServiceState
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, target command.Target, timeout time.Duration) *command.Result {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	state, ok := f.states[target.Service]
	if !ok {
		state = command.StateNotFound
	}
	return &command.Result{Status: command.StatusCompleted, ServiceState: state}
}

func TestRefreshAllUpdatesCache(t *testing.T) {
	store := NewStore(setupStatusTestDB(t))
	runner := &fakeRunner{states: map[string]command.ServiceState{
		"openvpn": command.StateActive,
		"squid":   command.StateInactive,
	}}
	p := NewPoller(runner, store, PollerOptions{Services: []string{"openvpn", "squid", "ghost"}, Concurrency: 2}, nil)

	require.NoError(t, p.RefreshAll(context.Background()))
	assert.Equal(t, int32(3), runner.calls.Load())

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	got := map[string]command.ServiceState{}
	for _, r := range records {
		got[r.ServiceName] = r.Status
	}
	assert.Equal(t, command.StateActive, got["openvpn"])
	assert.Equal(t, command.StateInactive, got["squid"])
	assert.Equal(t, command.StateNotFound, got["ghost"])
}

func TestRefreshCoalescesConcurrentProbes(t *testing.T) {
	store := NewStore(setupStatusTestDB(t))
	runner := &fakeRunner{
		states:  map[string]command.ServiceState{"squid": command.StateActive},
		release: make(chan struct{}),
	}
	p := NewPoller(runner, store, PollerOptions{Services: []string{"squid"}}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := p.Refresh(context.Background(), "squid")
			assert.NoError(t, err)
			assert.Equal(t, command.StateActive, state)
		}()
	}

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(runner.release)
	wg.Wait()

	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	store := NewStore(setupStatusTestDB(t))
	runner := &fakeRunner{states: map[string]command.ServiceState{"squid": command.StateActive}}
	p := NewPoller(runner, store, PollerOptions{Services: []string{"squid"}, Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
