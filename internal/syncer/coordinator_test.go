package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/localstore"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/testutil"
)

type fakeRemote struct {
	name      string
	available bool

	mu      sync.Mutex
	pushes  []models.Snapshot
	pushErr error
	pullRec *models.RemoteRecord
	pullErr error
	pulls   int
}

func newFakeRemote(name string) *fakeRemote {
	return &fakeRemote{name: name, available: true, pullErr: apperr.ErrNotFound}
}

func (f *fakeRemote) Name() string    { return f.name }
func (f *fakeRemote) Available() bool { return f.available }

func (f *fakeRemote) Push(_ context.Context, snap models.Snapshot) error {
	if !f.available {
		return apperr.ErrUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, snap)
	return f.pushErr
}

func (f *fakeRemote) Pull(context.Context) (*models.RemoteRecord, error) {
	if !f.available {
		return nil, apperr.ErrUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return f.pullRec, f.pullErr
}

func (f *fakeRemote) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeRemote) lastPush() models.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[len(f.pushes)-1]
}

func (f *fakeRemote) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

func testLocal(t *testing.T) *localstore.Store {
	return testutil.LocalStore(t)
}

// startCoordinator wires the write hook and runs the loop until the test ends.
func startCoordinator(t *testing.T, local *localstore.Store, primary Remote, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.Logger())}, opts...)
	c := New(local, primary, opts...)
	local.SetWriteHook(c.Notify)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func TestDebounceCoalescesBurst(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	startCoordinator(t, local, remote, WithDebounce(80*time.Millisecond))

	for i := 1; i <= 5; i++ {
		notes := make([]models.Note, i)
		for j := range notes {
			notes[j] = models.Note{ID: "n_" + string(rune('a'+j))}
		}
		require.NoError(t, local.Set(models.KeyNotes, notes))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return remote.pushCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, remote.pushCount(), "burst must produce exactly one push")
	assert.Len(t, remote.lastPush().Notes, 5, "push carries the last write's state")
}

func TestTwoKeysOnePush(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	startCoordinator(t, local, remote, WithDebounce(150*time.Millisecond))

	require.NoError(t, local.Set(models.KeyHabits, []models.Habit{{ID: "h_1", Name: "Run"}}))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, local.Set(models.KeyRecords, models.Records{"h_1_2024-01-01": models.StatusWin}))

	require.Eventually(t, func() bool { return remote.pushCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 1, remote.pushCount())

	got := remote.lastPush()
	require.Len(t, got.Habits, 1)
	assert.Equal(t, "Run", got.Habits[0].Name)
	assert.Equal(t, models.StatusWin, got.Records["h_1_2024-01-01"])
}

func TestLastWriteWinsConvergence(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	startCoordinator(t, local, remote, WithDebounce(40*time.Millisecond))

	pw := "first"
	require.NoError(t, local.Set(models.KeyPassword, pw))
	require.NoError(t, local.Set(models.KeyFinance, models.DefaultFinance()))
	require.Eventually(t, func() bool { return remote.pushCount() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, local.Set(models.KeyPassword, "second"))
	require.NoError(t, local.Set(models.KeyNotes, []models.Note{{ID: "n_1", Title: "t"}}))
	require.Eventually(t, func() bool { return remote.pushCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	want, err := local.Snapshot()
	require.NoError(t, err)
	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(remote.lastPush())
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func TestAuthFlagNeverPushedNorTriggers(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	startCoordinator(t, local, remote, WithDebounce(30*time.Millisecond))

	require.NoError(t, local.Set(models.KeyAuth, "session"))
	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, remote.pushCount(), "session flag writes do not replicate")

	require.NoError(t, local.Set(models.KeyNotes, []models.Note{}))
	require.Eventually(t, func() bool { return remote.pushCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	out, err := json.Marshal(remote.lastPush())
	require.NoError(t, err)
	assert.NotContains(t, string(out), string(models.KeyAuth))
}

func TestUnconfiguredRemoteIsNonFatal(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	remote.available = false
	c := startCoordinator(t, local, remote, WithDebounce(20*time.Millisecond))

	assert.Equal(t, SourceLocal, c.Hydrate(context.Background()).Source)
	require.NoError(t, local.Set(models.KeyHabits, []models.Habit{{ID: "h_1", Name: "Read"}}))
	time.Sleep(80 * time.Millisecond)

	got := localstore.Get(local, models.KeyHabits, []models.Habit(nil))
	require.Len(t, got, 1)
	assert.Zero(t, remote.pushCount())
	assert.Zero(t, remote.pullCount())
	assert.Zero(t, c.Status().Failures)
}

func TestPushFailureIsSwallowedAndRetriedOnNextWrite(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	remote.pushErr = errors.New("network down")
	c := startCoordinator(t, local, remote, WithDebounce(20*time.Millisecond))

	require.NoError(t, local.Set(models.KeyNotes, []models.Note{}))
	require.Eventually(t, func() bool { return c.Status().Failures == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, c.Status().LastError, "network down")

	remote.mu.Lock()
	remote.pushErr = nil
	remote.mu.Unlock()

	require.NoError(t, local.Set(models.KeyNotes, []models.Note{{ID: "n_1"}}))
	require.Eventually(t, func() bool { return c.Status().Pushes == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, remote.pushCount())
}

func TestFlushPushesPendingImmediately(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	c := startCoordinator(t, local, remote, WithDebounce(time.Hour))

	require.NoError(t, local.Set(models.KeyNotes, []models.Note{}))
	require.Eventually(t, func() bool { return c.Status().Pending }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)
	assert.Equal(t, 1, remote.pushCount())
	assert.False(t, c.Status().Pending)

	// Nothing pending: flushing again is a no-op.
	c.Flush(ctx)
	assert.Equal(t, 1, remote.pushCount())
}

func TestShutdownFlushesPendingReplication(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	c := New(local, remote, WithLogger(testutil.Logger()), WithDebounce(time.Hour))
	local.SetWriteHook(c.Notify)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	require.NoError(t, local.Set(models.KeyHabits, []models.Habit{}))
	require.Eventually(t, func() bool { return c.Status().Pending }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, remote.pushCount())
}

func TestFallbackReplicationWhenPrimaryUnconfigured(t *testing.T) {
	local := testLocal(t)
	primary := newFakeRemote("primary")
	primary.available = false
	legacy := newFakeRemote("legacy")
	c := startCoordinator(t, local, primary,
		WithDebounce(20*time.Millisecond),
		WithFallback(legacy),
		WithFallbackReplication())

	assert.Equal(t, "legacy", c.Status().Target)
	require.NoError(t, local.Set(models.KeyNotes, []models.Note{}))
	require.Eventually(t, func() bool { return legacy.pushCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, primary.pushCount())
}

func TestWriteThenImmediateFlushReplicates(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	c := startCoordinator(t, local, remote, WithDebounce(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 1; i <= 50; i++ {
		require.NoError(t, local.Set(models.KeyNotes, []models.Note{{ID: "n_1", Title: "v"}}))
		c.Flush(ctx)
		require.Equal(t, i, remote.pushCount(), "write %d not pushed by flush", i)
	}
}

func TestWriteThenImmediateShutdownReplicates(t *testing.T) {
	local := testLocal(t)
	for i := 0; i < 50; i++ {
		remote := newFakeRemote("primary")
		c := New(local, remote, WithLogger(testutil.Logger()), WithDebounce(time.Hour))
		local.SetWriteHook(c.Notify)

		require.NoError(t, local.Set(models.KeyHabits, []models.Habit{{ID: "h_1", Name: "Run"}}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, c.Run(ctx))
		require.Equal(t, 1, remote.pushCount(), "run %d lost the last write", i)
	}
}

func TestInvalidSnapshotIsNotPushed(t *testing.T) {
	local := testLocal(t)
	remote := newFakeRemote("primary")
	c := startCoordinator(t, local, remote, WithDebounce(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, local.Set(models.KeyRecords, map[string]string{"garbage": "maybe"}))
	c.Flush(ctx)
	assert.Zero(t, remote.pushCount())
	st := c.Status()
	assert.Equal(t, 1, st.Failures)
	assert.Contains(t, st.LastError, "invalid input")

	require.NoError(t, local.Set(models.KeyRecords, models.Records{"h_1_2024-03-15": models.StatusWin}))
	c.Flush(ctx)
	require.Equal(t, 1, remote.pushCount())
	assert.Equal(t, models.StatusWin, remote.lastPush().Records["h_1_2024-03-15"])
}
