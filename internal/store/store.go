// Package store owns the on-disk representation of a vault: a single
// versioned JSON document holding the key-derivation header and the
// encrypted record blocks. Writes are crash-safe: the document is
// written to a temporary file, synced, and atomically renamed over the
// target, so an interrupted write never corrupts the existing vault.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vkarpenko/passkeeper/internal/kdf"
)

// FormatVersion is the current vault file format version.
const FormatVersion = 1

var (
	// ErrVaultNotFound is returned when the vault file does not exist.
	ErrVaultNotFound = errors.New("vault file not found")
	// ErrCorruptVault is returned when the file or its header is
	// missing required fields or cannot be parsed.
	ErrCorruptVault = errors.New("vault file is corrupt")
	// ErrLockConflict is returned when another process holds the vault
	// lock file.
	ErrLockConflict = errors.New("vault is locked by another process")
	// ErrVaultExists is returned when creating a vault over an
	// existing file.
	ErrVaultExists = errors.New("vault file already exists")
)

// Header is the per-vault metadata written once at creation. The salt
// is immutable for the life of the vault; replacing it invalidates
// every stored ciphertext.
type Header struct {
	Version       int
	Salt          []byte
	KDF           string
	KDFIterations int
	// Canary is the ciphertext of a fixed known plaintext, used to
	// verify a derived key without touching real records.
	Canary []byte
}

// KDFParams returns the derivation parameters recorded in the header.
func (h Header) KDFParams() kdf.Params {
	return kdf.Params{Algorithm: h.KDF, Iterations: h.KDFIterations}
}

// EncryptedRecord is one persisted record block. Title, username,
// secret and notes live inside Data; category and timestamps are kept
// in the clear so listings can be rendered without the key.
type EncryptedRecord struct {
	ID         string
	Data       []byte
	Category   string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// vaultFile is the serialized document layout.
type vaultFile struct {
	Version       int           `json:"version"`
	Salt          []byte        `json:"salt"`
	KDF           string        `json:"kdf"`
	KDFIterations int           `json:"kdf_iterations"`
	Canary        []byte        `json:"canary"`
	Records       []recordBlock `json:"records"`
}

type recordBlock struct {
	ID         string    `json:"id"`
	Data       []byte    `json:"data"`
	Category   string    `json:"category,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Store persists one vault file. It assumes single-writer access,
// enforced through the lock file.
type Store struct {
	path string
	log  *zap.Logger
}

// New returns a Store for the vault at path.
func New(path string, log *zap.Logger) *Store {
	return &Store{path: path, log: log}
}

// Path returns the vault file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (*vaultFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, s.path)
		}
		return nil, fmt.Errorf("read vault: %w", err)
	}

	var vf vaultFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptVault, err)
	}

	if vf.Version < 1 || vf.Version > FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptVault, vf.Version)
	}
	if len(vf.Salt) != kdf.SaltLength || len(vf.Canary) == 0 || vf.KDF == "" {
		return nil, fmt.Errorf("%w: incomplete header", ErrCorruptVault)
	}

	return &vf, nil
}

// Open reads and validates the vault header.
func (s *Store) Open() (Header, error) {
	vf, err := s.load()
	if err != nil {
		return Header{}, err
	}
	return Header{
		Version:       vf.Version,
		Salt:          vf.Salt,
		KDF:           vf.KDF,
		KDFIterations: vf.KDFIterations,
		Canary:        vf.Canary,
	}, nil
}

// ReadAll returns every encrypted record block in file order.
func (s *Store) ReadAll() ([]EncryptedRecord, error) {
	vf, err := s.load()
	if err != nil {
		return nil, err
	}

	records := make([]EncryptedRecord, 0, len(vf.Records))
	for _, rb := range vf.Records {
		if rb.ID == "" || len(rb.Data) == 0 {
			return nil, fmt.Errorf("%w: incomplete record block", ErrCorruptVault)
		}
		records = append(records, EncryptedRecord(rb))
	}
	return records, nil
}

// WriteAtomic persists the header and the full record set. The prior
// file content survives any failure before the final rename, so a
// failed write is retryable.
func (s *Store) WriteAtomic(header Header, records []EncryptedRecord) error {
	vf := vaultFile{
		Version:       header.Version,
		Salt:          header.Salt,
		KDF:           header.KDF,
		KDFIterations: header.KDFIterations,
		Canary:        header.Canary,
		Records:       make([]recordBlock, 0, len(records)),
	}
	for _, r := range records {
		vf.Records = append(vf.Records, recordBlock(r))
	}

	data, err := json.MarshalIndent(&vf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}

	if err := s.writeFileAtomic(data, 0o600); err != nil {
		return err
	}

	s.log.Debug("vault written",
		zap.String("path", s.path),
		zap.Int("records", len(records)),
	)
	return nil
}

// writeFileAtomic writes data to a temp file in the vault's directory,
// syncs it, and renames it over the target path.
func (s *Store) writeFileAtomic(data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".passkeeper-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if tmp != nil {
			err = multierr.Append(err, tmp.Close())
			err = multierr.Append(err, os.Remove(tmpPath))
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		tmp = nil
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Exists reports whether the vault file is present on disk.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat vault: %w", err)
}
