// Package session holds the in-memory unlocked state of a vault: the
// derived key, the decrypted record index, and per-record dirty flags.
// A session serializes all access through a single mutex and wipes the
// key whenever it locks, whether explicitly, on idle timeout, or on
// close.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vkarpenko/passkeeper/internal/kdf"
	"github.com/vkarpenko/passkeeper/internal/models"
	"github.com/vkarpenko/passkeeper/internal/store"
	"github.com/vkarpenko/passkeeper/internal/vaultcrypt"
)

// State is the session lifecycle state.
type State int

const (
	// Locked means no key is held and no records are readable.
	Locked State = iota
	// Unlocking means a key derivation is in flight.
	Unlocking
	// Unlocked means the key is cached and the index is decrypted.
	Unlocked
	// Failed means the last unlock attempt did not authenticate.
	Failed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionLocked is returned when an operation requires an
	// unlocked session.
	ErrSessionLocked = errors.New("session is locked")
	// ErrRecordNotFound is returned when no record has the given id.
	ErrRecordNotFound = errors.New("record not found")
	// ErrUnlockInProgress is returned when Unlock is called while a
	// previous unlock is still deriving.
	ErrUnlockInProgress = errors.New("unlock already in progress")
)

// canaryPlaintext is the fixed known plaintext encrypted at vault
// creation. Decrypting it is the only way a wrong master password is
// detected; no password hash is stored anywhere.
const canaryPlaintext = "passkeeper.canary.v1"

// Config carries session behavior options.
type Config struct {
	// IdleTimeout locks the session automatically after this idle
	// duration. Zero disables the idle watcher.
	IdleTimeout time.Duration
}

// Session is the single owner of a vault's decrypted state. One session
// exists per open vault file, enforced by the store's lock file.
type Session struct {
	st   *store.Store
	lock *store.Lock
	log  *zap.Logger
	cfg  Config

	mu         sync.Mutex
	state      State
	header     store.Header
	key        *kdf.Key
	index      map[string]models.Credential
	ciphertext map[string][]byte
	dirty      map[string]bool
	removed    bool
	lastActive time.Time
	stopIdle   chan struct{}
}

// Create initializes a new vault file at path: fresh salt, derived key,
// encrypted canary, no records. The file is written atomically and the
// key is wiped before returning.
func Create(path, masterPassword string, params kdf.Params, log *zap.Logger) error {
	st := store.New(path, log)

	exists, err := st.Exists()
	if err != nil {
		return err
	}
	if exists {
		return store.ErrVaultExists
	}

	params, err = params.Normalize()
	if err != nil {
		return err
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		return err
	}

	key, err := kdf.Derive(masterPassword, salt, params)
	if err != nil {
		return err
	}
	defer key.Wipe()

	canary, err := vaultcrypt.Encrypt(key, []byte(canaryPlaintext))
	if err != nil {
		return err
	}

	header := store.Header{
		Version:       store.FormatVersion,
		Salt:          salt,
		KDF:           params.Algorithm,
		KDFIterations: params.Iterations,
		Canary:        canary,
	}

	if err := st.WriteAtomic(header, nil); err != nil {
		return err
	}
	log.Info("vault created", zap.String("path", path), zap.String("kdf", params.Algorithm))
	return nil
}

// Open validates the vault header, claims the single-writer lock, and
// returns a locked session.
func Open(path string, cfg Config, log *zap.Logger) (*Session, error) {
	st := store.New(path, log)

	header, err := st.Open()
	if err != nil {
		return nil, err
	}

	lock, err := st.AcquireLock()
	if err != nil {
		return nil, err
	}

	return &Session{
		st:     st,
		lock:   lock,
		log:    log,
		cfg:    cfg,
		state:  Locked,
		header: header,
	}, nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Path returns the vault file location.
func (s *Session) Path() string {
	return s.st.Path()
}

// Unlock derives the key from the master password, verifies it against
// the canary, and decrypts the record index. A wrong password, a
// tampered canary, or an undecryptable record all surface as the same
// opaque vaultcrypt.ErrAuthentication and move the session to Failed.
// Cancelling ctx abandons the derivation; the abandoned key is wiped
// when it lands.
func (s *Session) Unlock(ctx context.Context, password string) error {
	s.mu.Lock()
	switch s.state {
	case Unlocked:
		s.mu.Unlock()
		return nil
	case Unlocking:
		s.mu.Unlock()
		return ErrUnlockInProgress
	}
	header := s.header
	s.state = Unlocking
	s.mu.Unlock()

	type derived struct {
		key *kdf.Key
		err error
	}
	ch := make(chan derived, 1)
	go func() {
		key, err := kdf.Derive(password, header.Salt, header.KDFParams())
		ch <- derived{key: key, err: err}
	}()

	var key *kdf.Key
	select {
	case <-ctx.Done():
		go func() {
			if d := <-ch; d.key != nil {
				d.key.Wipe()
			}
		}()
		s.setState(Locked)
		return ctx.Err()
	case d := <-ch:
		if d.err != nil {
			s.setState(Locked)
			return d.err
		}
		key = d.key
	}

	if _, err := vaultcrypt.Decrypt(key, header.Canary); err != nil {
		key.Wipe()
		s.setState(Failed)
		s.log.Warn("unlock failed", zap.String("path", s.st.Path()))
		return err
	}

	blocks, err := s.st.ReadAll()
	if err != nil {
		key.Wipe()
		s.setState(Failed)
		return err
	}

	index := make(map[string]models.Credential, len(blocks))
	ciphertext := make(map[string][]byte, len(blocks))
	for _, b := range blocks {
		plain, err := vaultcrypt.Decrypt(key, b.Data)
		if err != nil {
			key.Wipe()
			s.setState(Failed)
			return vaultcrypt.ErrAuthentication
		}
		var p models.SecretPayload
		if err := json.Unmarshal(plain, &p); err != nil {
			// Indistinguishable from any other cryptographic failure.
			key.Wipe()
			s.setState(Failed)
			return vaultcrypt.ErrAuthentication
		}
		index[b.ID] = models.Credential{
			ID:         b.ID,
			Title:      p.Title,
			Username:   p.Username,
			Secret:     p.Secret,
			Notes:      p.Notes,
			Category:   b.Category,
			CreatedAt:  b.CreatedAt,
			ModifiedAt: b.ModifiedAt,
		}
		ciphertext[b.ID] = b.Data
	}

	s.mu.Lock()
	s.key = key
	s.index = index
	s.ciphertext = ciphertext
	s.dirty = make(map[string]bool)
	s.removed = false
	s.state = Unlocked
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.startIdleWatcher()
	s.log.Info("vault unlocked", zap.Int("records", len(index)))
	return nil
}

// Lock wipes the key and discards the decrypted index. Unflushed
// changes are discarded.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockLocked()
}

// Close locks the session and releases the vault's single-writer lock.
func (s *Session) Close() error {
	s.Lock()
	return s.lock.Release()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// lockLocked transitions to Locked and wipes sensitive state.
// Caller must hold s.mu.
func (s *Session) lockLocked() {
	if s.stopIdle != nil {
		close(s.stopIdle)
		s.stopIdle = nil
	}
	if len(s.dirty) > 0 || s.removed {
		s.log.Warn("locking with unflushed changes", zap.Int("dirty", len(s.dirty)))
	}
	if s.key != nil {
		s.key.Wipe()
		s.key = nil
	}
	s.index = nil
	s.ciphertext = nil
	s.dirty = nil
	s.removed = false
	s.state = Locked
}

// startIdleWatcher locks the session after cfg.IdleTimeout of
// inactivity. Every operation refreshes the activity timestamp.
func (s *Session) startIdleWatcher() {
	if s.cfg.IdleTimeout <= 0 {
		return
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.stopIdle = stop
	s.mu.Unlock()

	tick := s.cfg.IdleTimeout / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.state == Unlocked && time.Since(s.lastActive) >= s.cfg.IdleTimeout {
					s.log.Info("idle timeout reached, locking session")
					s.lockLocked()
					s.mu.Unlock()
					return
				}
				s.mu.Unlock()
			}
		}
	}()
}

// requireUnlocked checks the state. Caller must hold s.mu.
func (s *Session) requireUnlocked() error {
	if s.state != Unlocked {
		return ErrSessionLocked
	}
	s.lastActive = time.Now()
	return nil
}
