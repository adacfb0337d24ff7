package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrCodeNotFound    = errors.New("no pending code for destination")
	ErrCodeMismatch    = errors.New("code does not match")
	ErrTooManyAttempts = errors.New("too many attempts")
)

// Challenge is a pending code as kept by a CodeStore. Only the hash is stored.
type Challenge struct {
	Destination string    `json:"destination"`
	Hash        string    `json:"hash"`
	Attempts    int       `json:"attempts"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type CodeStore interface {
	Save(ctx context.Context, c Challenge, ttl time.Duration) error
	// Get returns nil and no error when nothing is pending.
	Get(ctx context.Context, destination string) (*Challenge, error)
	// IncrementAttempts reserves a guess and returns the number of guesses so far.
	IncrementAttempts(ctx context.Context, destination string) (int, error)
	Delete(ctx context.Context, destination string) error
}

// Sender delivers a plaintext code to the user (SMS, email...).
type Sender interface {
	Send(ctx context.Context, destination, code string) error
}

type Options struct {
	TTL         time.Duration
	Length      int
	MaxAttempts int
	BcryptCost  int
	Now         func() time.Time
	Logger      zerolog.Logger
}

type Service struct {
	store  CodeStore
	sender Sender
	opts   Options
}

func NewService(store CodeStore, sender Sender, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Length <= 0 {
		opts.Length = 6
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BcryptCost <= 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, sender: sender, opts: opts}
}

// Request generates a new code for destination, replacing any pending one.
func (s *Service) Request(ctx context.Context, destination string) (*Challenge, error) {
	code, err := generateCode(s.opts.Length)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	challenge := Challenge{
		Destination: destination,
		Hash:        string(hash),
		ExpiresAt:   s.opts.Now().Add(s.opts.TTL),
	}
	if err := s.store.Save(ctx, challenge, s.opts.TTL); err != nil {
		return nil, fmt.Errorf("save challenge: %w", err)
	}

	if err := s.sender.Send(ctx, destination, code); err != nil {
		_ = s.store.Delete(ctx, destination)
		return nil, fmt.Errorf("send code: %w", err)
	}

	s.opts.Logger.Debug().Str("destination", destination).Time("expiresAt", challenge.ExpiresAt).Msg("otp issued")

	challenge.Hash = ""
	return &challenge, nil
}

// Verify checks code against the pending challenge. Each call reserves an
// attempt before comparing, so at most MaxAttempts guesses are ever compared
// against one challenge, concurrent ones included. A successful check consumes
// the challenge; using up the attempts discards it.
func (s *Service) Verify(ctx context.Context, destination, code string) error {
	challenge, err := s.store.Get(ctx, destination)
	if err != nil {
		return err
	}
	if challenge == nil || !s.opts.Now().Before(challenge.ExpiresAt) {
		return ErrCodeNotFound
	}

	attempt, err := s.store.IncrementAttempts(ctx, destination)
	if err != nil {
		return err
	}
	if attempt > s.opts.MaxAttempts {
		_ = s.store.Delete(ctx, destination)
		return ErrTooManyAttempts
	}

	if err := bcrypt.CompareHashAndPassword([]byte(challenge.Hash), []byte(code)); err != nil {
		if attempt >= s.opts.MaxAttempts {
			_ = s.store.Delete(ctx, destination)
			s.opts.Logger.Warn().Str("destination", destination).Int("attempts", attempt).Msg("otp discarded after too many attempts")
			return ErrTooManyAttempts
		}
		return ErrCodeMismatch
	}

	return s.store.Delete(ctx, destination)
}

func generateCode(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// LogSender writes codes to the log instead of delivering them. Development only.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, destination, code string) error {
	s.Logger.Info().Str("destination", destination).Str("code", code).Msg("otp code")
	return nil
}
