package firstblood

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/ctfd_announcer/internal/ctfd"
	"github.com/lewisedginton/ctfd_announcer/internal/ledger"
)

type fakeClient struct {
	mu          sync.Mutex
	challenges  []ctfd.Challenge
	solves      map[int64][]ctfd.Solve
	challErr    error
	solveErrs   map[int64]error
	panicOnList bool
}

func (f *fakeClient) FetchChallenges(context.Context) ([]ctfd.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnList {
		panic("boom")
	}
	if f.challErr != nil {
		return nil, f.challErr
	}
	return append([]ctfd.Challenge(nil), f.challenges...), nil
}

func (f *fakeClient) FetchSolves(_ context.Context, id int64) ([]ctfd.Solve, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.solveErrs[id]; err != nil {
		return nil, err
	}
	return f.solves[id], nil
}

func (f *fakeClient) setSolves(id int64, solves ...ctfd.Solve) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.solves[id] = solves
}

type fakeChannel struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (c *fakeChannel) Send(_ context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeResolver struct {
	channel *fakeChannel
	err     error
}

func (r *fakeResolver) ResolveChannel(context.Context) (Channel, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.channel, nil
}

// memLedger is a map-backed ledger.Store with injectable failures.
type memLedger struct {
	mu       sync.Mutex
	ids      map[int64]bool
	markErr  error
	readErrs map[int64]error
}

func newMemLedger() *memLedger {
	return &memLedger{ids: map[int64]bool{}, readErrs: map[int64]error{}}
}

func (m *memLedger) IsAnnounced(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErrs[id]; err != nil {
		return false, err
	}
	return m.ids[id], nil
}

func (m *memLedger) MarkAnnounced(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.ids[id] = true
	return nil
}

func (m *memLedger) List(context.Context) ([]ledger.Record, error) { return nil, nil }
func (m *memLedger) Ping(context.Context) error                   { return nil }
func (m *memLedger) Close() error                                 { return nil }

type recorder struct {
	mu      sync.Mutex
	results []TickResult
	errs    []error
}

func (r *recorder) RecordTick(result TickResult, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.errs = append(r.errs, err)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func newTestPoller(t *testing.T, client *fakeClient, store ledger.Store, resolver ChannelResolver) *Poller {
	t.Helper()
	p, err := New(Config{Client: client, Ledger: store, Resolver: resolver, Interval: time.Hour})
	require.NoError(t, err)
	return p
}

func TestMessage(t *testing.T) {
	assert.Equal(t, ":drop_of_blood: First blood on **pwn1** by TeamA!", Message("pwn1", "TeamA"))
	assert.Equal(t, ":drop_of_blood: First blood on **Unknown Challenge** by Unknown Team!", Message("", ""))
	assert.Equal(t, `:drop_of_blood: First blood on **a\_b** by x\*y!`, Message("a_b", "x*y"))
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	p, err := New(Config{Client: &fakeClient{}, Ledger: newMemLedger(), Resolver: &fakeResolver{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, p.Interval())
	assert.True(t, p.LastTick().IsZero())
}

func TestFirstBloodAnnouncedOnce(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		challenges: []ctfd.Challenge{{ID: 1, Name: "pwn1"}},
		solves:     map[int64][]ctfd.Solve{},
	}
	channel := &fakeChannel{}
	store := newMemLedger()
	p := newTestPoller(t, client, store, &fakeResolver{channel: channel})

	// Unsolved: nothing is sent or marked.
	res, err := p.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Checked: 1, Candidates: 1}, res)
	assert.Empty(t, channel.messages())

	client.setSolves(1, ctfd.Solve{Name: "TeamA", AccountID: 4})
	res, err = p.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Announced)
	assert.Equal(t, []string{":drop_of_blood: First blood on **pwn1** by TeamA!"}, channel.messages())

	client.setSolves(1, ctfd.Solve{Name: "TeamA"}, ctfd.Solve{Name: "TeamB"})
	res, err = p.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
	assert.Len(t, channel.messages(), 1)
}

func TestAnnouncedOnceAcrossRestartWithSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	client := &fakeClient{
		challenges: []ctfd.Challenge{{ID: 42, Name: "web1"}},
		solves:     map[int64][]ctfd.Solve{42: {{Name: "TeamA"}}},
	}
	channel := &fakeChannel{}

	store, err := ledger.NewSQLiteStore(ctx, path, nil)
	require.NoError(t, err)
	_, err = newTestPoller(t, client, store, &fakeResolver{channel: channel}).Tick(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = ledger.NewSQLiteStore(ctx, path, nil)
	require.NoError(t, err)
	defer store.Close()
	_, err = newTestPoller(t, client, store, &fakeResolver{channel: channel}).Tick(ctx)
	require.NoError(t, err)

	assert.Len(t, channel.messages(), 1)
}

func TestUpstreamOrderPreserved(t *testing.T) {
	client := &fakeClient{
		challenges: []ctfd.Challenge{{ID: 9, Name: "z"}, {ID: 2, Name: "a"}, {ID: 5, Name: "m"}},
		solves: map[int64][]ctfd.Solve{
			9: {{Name: "T1"}}, 2: {{Name: "T2"}}, 5: {{Name: "T3"}},
		},
	}
	channel := &fakeChannel{}
	p := newTestPoller(t, client, newMemLedger(), &fakeResolver{channel: channel})

	_, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		":drop_of_blood: First blood on **z** by T1!",
		":drop_of_blood: First blood on **a** by T2!",
		":drop_of_blood: First blood on **m** by T3!",
	}, channel.messages())
}

func TestSendFailureLeavesChallengeUnmarked(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		challenges: []ctfd.Challenge{{ID: 1, Name: "pwn1"}},
		solves:     map[int64][]ctfd.Solve{1: {{Name: "TeamA"}}},
	}
	channel := &fakeChannel{sendErr: errors.New("rate limited")}
	store := newMemLedger()
	p := newTestPoller(t, client, store, &fakeResolver{channel: channel})

	res, err := p.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SendFailures)

	ok, _ := store.IsAnnounced(ctx, 1)
	assert.False(t, ok)

	channel.sendErr = nil
	res, err = p.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Announced)
	assert.Len(t, channel.messages(), 1)
}

func TestChannelUnavailableAbortsTick(t *testing.T) {
	client := &fakeClient{
		challenges: []ctfd.Challenge{{ID: 1, Name: "pwn1"}},
		solves:     map[int64][]ctfd.Solve{1: {{Name: "TeamA"}}},
	}
	store := newMemLedger()
	p := newTestPoller(t, client, store, &fakeResolver{err: errors.New("channel_not_found")})

	_, err := p.Tick(context.Background())
	assert.ErrorIs(t, err, ErrChannelUnavailable)
	assert.Empty(t, store.ids)
}

func TestChallengeFetchFailureAbortsTick(t *testing.T) {
	client := &fakeClient{challErr: &ctfd.UpstreamError{Op: "challenges", StatusCode: 502, Err: errors.New("bad gateway")}}
	channel := &fakeChannel{}
	p := newTestPoller(t, client, newMemLedger(), &fakeResolver{channel: channel})

	_, err := p.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, ctfd.IsUpstreamError(err))
	assert.Empty(t, channel.messages())
}

func TestSolveFetchFailureSkipsOnlyThatChallenge(t *testing.T) {
	client := &fakeClient{
		challenges: []ctfd.Challenge{{ID: 1, Name: "pwn1"}, {ID: 2, Name: "web1"}},
		solves:     map[int64][]ctfd.Solve{2: {{Name: "TeamB"}}},
		solveErrs:  map[int64]error{1: errors.New("timeout")},
	}
	channel := &fakeChannel{}
	p := newTestPoller(t, client, newMemLedger(), &fakeResolver{channel: channel})

	res, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedOnErrors)
	assert.Equal(t, []string{":drop_of_blood: First blood on **web1** by TeamB!"}, channel.messages())
}

func TestLedgerReadFailureSkipsChallenge(t *testing.T) {
	client := &fakeClient{
		challenges: []ctfd.Challenge{{ID: 1, Name: "pwn1"}},
		solves:     map[int64][]ctfd.Solve{1: {{Name: "TeamA"}}},
	}
	store := newMemLedger()
	store.readErrs[1] = errors.New("disk I/O error")
	channel := &fakeChannel{}
	p := newTestPoller(t, client, store, &fakeResolver{channel: channel})

	res, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
	assert.Empty(t, channel.messages())
}

func TestLedgerWriteFailureReported(t *testing.T) {
	client := &fakeClient{
		challenges: []ctfd.Challenge{{ID: 1, Name: "pwn1"}},
		solves:     map[int64][]ctfd.Solve{1: {{Name: "TeamA"}}},
	}
	store := newMemLedger()
	store.markErr = errors.New("read-only file system")
	channel := &fakeChannel{}
	p := newTestPoller(t, client, store, &fakeResolver{channel: channel})

	res, err := p.Tick(context.Background())
	assert.ErrorIs(t, err, ErrLedgerWrite)
	assert.Equal(t, 1, res.LedgerFailures)
	assert.Len(t, channel.messages(), 1)

	// The documented duplicate window: the next tick announces again.
	_, _ = p.Tick(context.Background())
	assert.Len(t, channel.messages(), 2)
}

func TestRunRecoversPanicsAndStopsOnCancel(t *testing.T) {
	client := &fakeClient{panicOnList: true}
	rec := &recorder{}
	p, err := New(Config{
		Client:   client,
		Ledger:   newMemLedger(),
		Resolver: &fakeResolver{channel: &fakeChannel{}},
		Interval: 10 * time.Millisecond,
		Recorder: rec,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Error(t, rec.errs[0])
	assert.Contains(t, rec.errs[0].Error(), "panicked")
	assert.False(t, p.LastTick().IsZero())
}
