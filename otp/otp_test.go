package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memoryStore keeps attempts apart from challenges, like the Redis store.
type memoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
	attempts   map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{challenges: map[string]Challenge{}, attempts: map[string]int{}}
}

func (m *memoryStore) Save(_ context.Context, c Challenge, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Attempts = 0
	m.challenges[c.Destination] = c
	delete(m.attempts, c.Destination)
	return nil
}

func (m *memoryStore) Get(_ context.Context, destination string) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[destination]
	if !ok {
		return nil, nil
	}
	c.Attempts = m.attempts[destination]
	return &c, nil
}

func (m *memoryStore) IncrementAttempts(_ context.Context, destination string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[destination]++
	return m.attempts[destination], nil
}

func (m *memoryStore) Delete(_ context.Context, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, destination)
	delete(m.attempts, destination)
	return nil
}

// gatedStore holds every Get until all expected callers have read the
// challenge, so their guesses race each other.
type gatedStore struct {
	*memoryStore
	arrived sync.WaitGroup
	release chan struct{}
}

func (g *gatedStore) Get(ctx context.Context, destination string) (*Challenge, error) {
	c, err := g.memoryStore.Get(ctx, destination)
	g.arrived.Done()
	<-g.release
	return c, err
}

type captureSender struct {
	codes map[string]string
	err   error
}

func (c *captureSender) Send(_ context.Context, destination, code string) error {
	if c.err != nil {
		return c.err
	}
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[destination] = code
	return nil
}

func newTestService(store CodeStore, sender Sender, now *time.Time) *Service {
	return NewService(store, sender, Options{
		TTL:         5 * time.Minute,
		Length:      6,
		MaxAttempts: 3,
		BcryptCost:  bcrypt.MinCost,
		Now:         func() time.Time { return *now },
	})
}

func TestRequestAndVerify(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	sender := &captureSender{}
	svc := newTestService(store, sender, &now)

	challenge, err := svc.Request(context.Background(), "+15550100")
	require.NoError(t, err)
	assert.Empty(t, challenge.Hash)
	assert.Equal(t, now.Add(5*time.Minute), challenge.ExpiresAt)

	code := sender.codes["+15550100"]
	assert.Len(t, code, 6)

	stored := store.challenges["+15550100"]
	assert.NotEqual(t, code, stored.Hash)

	require.NoError(t, svc.Verify(context.Background(), "+15550100", code))

	err = svc.Verify(context.Background(), "+15550100", code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestVerifyWrongCodeAndLockout(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	sender := &captureSender{}
	svc := newTestService(store, sender, &now)

	_, err := svc.Request(context.Background(), "a@example.com")
	require.NoError(t, err)
	code := sender.codes["a@example.com"]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	assert.ErrorIs(t, svc.Verify(context.Background(), "a@example.com", wrong), ErrCodeMismatch)
	assert.ErrorIs(t, svc.Verify(context.Background(), "a@example.com", wrong), ErrCodeMismatch)
	assert.ErrorIs(t, svc.Verify(context.Background(), "a@example.com", wrong), ErrTooManyAttempts)

	assert.ErrorIs(t, svc.Verify(context.Background(), "a@example.com", code), ErrCodeNotFound)
}

func TestVerifyConcurrentGuessesShareTheAttemptLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sender := &captureSender{}
	setup := newTestService(newMemoryStore(), sender, &now)
	_, err := setup.Request(context.Background(), "+15550100")
	require.NoError(t, err)
	code := sender.codes["+15550100"]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	const guesses = 19
	store := &gatedStore{memoryStore: setup.store.(*memoryStore), release: make(chan struct{})}
	svc := newTestService(store, sender, &now)
	store.arrived.Add(guesses)

	results := make([]error, guesses)
	var done sync.WaitGroup
	for i := range guesses {
		done.Add(1)
		go func() {
			defer done.Done()
			results[i] = svc.Verify(context.Background(), "+15550100", wrong)
		}()
	}
	store.arrived.Wait()
	close(store.release)
	done.Wait()

	mismatches, locked := 0, 0
	for _, err := range results {
		switch {
		case errors.Is(err, ErrCodeMismatch):
			mismatches++
		case errors.Is(err, ErrTooManyAttempts):
			locked++
		default:
			t.Fatalf("unexpected result: %v", err)
		}
	}
	assert.Equal(t, 2, mismatches)
	assert.Equal(t, guesses-2, locked)

	// The challenge is gone, so the right code no longer works.
	assert.ErrorIs(t, newTestService(store.memoryStore, sender, &now).Verify(context.Background(), "+15550100", code), ErrCodeNotFound)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	sender := &captureSender{}
	svc := newTestService(store, sender, &now)

	_, err := svc.Request(context.Background(), "+15550100")
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	err = svc.Verify(context.Background(), "+15550100", sender.codes["+15550100"])
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRequestReplacesPendingCode(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	sender := &captureSender{}
	svc := newTestService(store, sender, &now)

	_, err := svc.Request(context.Background(), "+15550100")
	require.NoError(t, err)
	first := sender.codes["+15550100"]

	_, err = svc.Request(context.Background(), "+15550100")
	require.NoError(t, err)
	second := sender.codes["+15550100"]

	if first != second {
		assert.ErrorIs(t, svc.Verify(context.Background(), "+15550100", first), ErrCodeMismatch)
	}
	assert.NoError(t, svc.Verify(context.Background(), "+15550100", second))
}

func TestRequestSendFailureDiscardsChallenge(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	svc := newTestService(store, &captureSender{err: errors.New("sms gateway down")}, &now)

	_, err := svc.Request(context.Background(), "+15550100")
	assert.Error(t, err)
	assert.Empty(t, store.challenges)
}

func TestGenerateCodeLength(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		code, err := generateCode(length)
		require.NoError(t, err)
		assert.Len(t, code, length)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}
