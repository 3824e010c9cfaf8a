package presence

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeHandle struct {
	name string
}

func (f *fakeHandle) Emit(event string, payload any) error { return nil }

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls [][]uuid.UUID
}

func (b *recordingBroadcaster) BroadcastOnline(ids []uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, ids)
}

func (b *recordingBroadcaster) last() []uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.calls) == 0 {
		return nil
	}
	return b.calls[len(b.calls)-1]
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func TestRegisterLastWriteWins(t *testing.T) {
	r := NewRegistry(nil, zaptest.NewLogger(t).Sugar())
	user := uuid.New()
	h1, h2 := &fakeHandle{"h1"}, &fakeHandle{"h2"}

	r.Register(user, h1)
	r.Register(user, h2)

	got, ok := r.Lookup(user)
	require.True(t, ok)
	assert.Same(t, h2, got)
	assert.Equal(t, 1, r.Len())
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	b := &recordingBroadcaster{}
	r := NewRegistry(b, zaptest.NewLogger(t).Sugar())

	assert.NotPanics(t, func() { r.Unregister(uuid.New()) })
	assert.Equal(t, 0, b.count(), "no-op unregister must not broadcast")
}

func TestEveryChangeBroadcastsOnlineSet(t *testing.T) {
	b := &recordingBroadcaster{}
	r := NewRegistry(b, zaptest.NewLogger(t).Sugar())
	alice, bob := uuid.New(), uuid.New()

	r.Register(alice, &fakeHandle{})
	assert.Equal(t, []uuid.UUID{alice}, b.last())

	r.Register(bob, &fakeHandle{})
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, b.last())

	r.Unregister(alice)
	assert.Equal(t, []uuid.UUID{bob}, b.last())
	assert.Equal(t, 3, b.count())
}

func TestUnregisterHandleKeepsNewerConnection(t *testing.T) {
	r := NewRegistry(nil, zaptest.NewLogger(t).Sugar())
	user := uuid.New()
	stale, fresh := &fakeHandle{"stale"}, &fakeHandle{"fresh"}

	r.Register(user, stale)
	r.Register(user, fresh)

	assert.False(t, r.UnregisterHandle(user, stale))
	got, ok := r.Lookup(user)
	require.True(t, ok)
	assert.Same(t, fresh, got)

	assert.True(t, r.UnregisterHandle(user, fresh))
	assert.False(t, r.IsOnline(user))
}

func TestOnlineUserIDsIsSnapshot(t *testing.T) {
	r := NewRegistry(nil, zaptest.NewLogger(t).Sugar())
	user := uuid.New()
	r.Register(user, &fakeHandle{})

	snapshot := r.OnlineUserIDs()
	r.Unregister(user)

	assert.Equal(t, []uuid.UUID{user}, snapshot)
	assert.Empty(t, r.OnlineUserIDs())
}

func TestResetClearsEntries(t *testing.T) {
	b := &recordingBroadcaster{}
	r := NewRegistry(b, zaptest.NewLogger(t).Sugar())
	var online []int
	r.OnChange(func(n int) { online = append(online, n) })

	r.Register(uuid.New(), &fakeHandle{})
	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, b.last())
	assert.Equal(t, []int{1, 0}, online)
}

func TestConcurrentRegistration(t *testing.T) {
	r := NewRegistry(&recordingBroadcaster{}, zaptest.NewLogger(t).Sugar())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New()
			h := &fakeHandle{}
			r.Register(id, h)
			r.Lookup(id)
			r.UnregisterHandle(id, h)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
