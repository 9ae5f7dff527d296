package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"earthworks-ledger/internal/repository"
)

const MinPassphraseLength = 4

var (
	ErrGateNotConfigured  = errors.New("passphrase not set")
	ErrGateConfigured     = errors.New("passphrase already set")
	ErrPassphraseTooShort = fmt.Errorf("passphrase must have at least %d characters", MinPassphraseLength)
	ErrWrongPassphrase    = errors.New("wrong passphrase")
)

// Gate is the single shared passphrase of the device. It keeps casual
// visitors out of the sheets and nothing more.
type Gate struct {
	settings *repository.SettingsRepository
	cost     int

	mu   sync.Mutex
	hash []byte
}

// NewGate uses bcrypt with cost; zero means bcrypt.DefaultCost.
func NewGate(settings *repository.SettingsRepository, cost int) *Gate {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Gate{settings: settings, cost: cost}
}

func (g *Gate) load(ctx context.Context) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hash != nil {
		return g.hash, nil
	}
	value, ok, err := g.settings.Get(ctx, repository.SettingPassphraseHash)
	if err != nil || !ok {
		return nil, err
	}
	g.hash = []byte(value)
	return g.hash, nil
}

// Configured reports whether a passphrase was set up.
func (g *Gate) Configured(ctx context.Context) (bool, error) {
	hash, err := g.load(ctx)
	return hash != nil, err
}

// Setup sets the passphrase on first run.
func (g *Gate) Setup(ctx context.Context, pass string) error {
	configured, err := g.Configured(ctx)
	if err != nil {
		return err
	}
	if configured {
		return ErrGateConfigured
	}
	return g.store(ctx, pass)
}

// Verify checks pass against the stored hash.
func (g *Gate) Verify(ctx context.Context, pass string) error {
	hash, err := g.load(ctx)
	if err != nil {
		return err
	}
	if hash == nil {
		return ErrGateNotConfigured
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
		return ErrWrongPassphrase
	}
	return nil
}

// Change replaces the passphrase after checking the current one.
func (g *Gate) Change(ctx context.Context, current, next string) error {
	if err := g.Verify(ctx, current); err != nil {
		return err
	}
	return g.store(ctx, next)
}

func (g *Gate) store(ctx context.Context, pass string) error {
	if utf8.RuneCountInString(pass) < MinPassphraseLength {
		return ErrPassphraseTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), g.cost)
	if err != nil {
		return fmt.Errorf("hash passphrase: %w", err)
	}
	if err := g.settings.Set(ctx, repository.SettingPassphraseHash, string(hash)); err != nil {
		return err
	}
	g.mu.Lock()
	g.hash = hash
	g.mu.Unlock()
	return nil
}
