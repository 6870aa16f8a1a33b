package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkarpenko/passkeeper/internal/kdf"
	"github.com/vkarpenko/passkeeper/internal/models"
	"github.com/vkarpenko/passkeeper/internal/store"
	"github.com/vkarpenko/passkeeper/internal/vaultcrypt"
)

// DuplicateCandidate reports an existing record whose normalized title
// and username match a new entry. It is a result, not an error: the
// caller decides whether to merge, update, or force-insert.
type DuplicateCandidate struct {
	// Existing is a copy of the matching record.
	Existing models.Credential
}

// CreateResult is the outcome of CreateRecord. Exactly one of Record
// and Duplicate is meaningful: when Duplicate is non-nil, nothing was
// inserted.
type CreateResult struct {
	Record    models.Credential
	Duplicate *DuplicateCandidate
}

// Update lists the mutable credential fields. Nil pointers leave the
// field unchanged.
type Update struct {
	Title    *string
	Username *string
	Secret   *string
	Notes    *string
	Category *string
}

// CreateRecord inserts a new credential unless an existing record has
// the same normalized title and username, in which case the duplicate
// candidate is returned and nothing is inserted.
func (s *Session) CreateRecord(rec models.Credential) (CreateResult, error) {
	if err := rec.Validate(); err != nil {
		return CreateResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return CreateResult{}, err
	}

	if existing, ok := s.findDuplicateLocked(rec); ok {
		return CreateResult{Duplicate: &DuplicateCandidate{Existing: existing.Copy()}}, nil
	}

	return s.insertLocked(rec)
}

// ForceCreateRecord inserts a credential without duplicate detection.
func (s *Session) ForceCreateRecord(rec models.Credential) (models.Credential, error) {
	if err := rec.Validate(); err != nil {
		return models.Credential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return models.Credential{}, err
	}

	res, err := s.insertLocked(rec)
	if err != nil {
		return models.Credential{}, err
	}
	return res.Record, nil
}

// Read returns a copy of the record with the given id.
func (s *Session) Read(id string) (models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return models.Credential{}, err
	}

	rec, ok := s.index[id]
	if !ok {
		return models.Credential{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return rec.Copy(), nil
}

// UpdateRecord applies the non-nil fields, re-encrypts the record, and
// marks it dirty.
func (s *Session) UpdateRecord(id string, upd Update) (models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return models.Credential{}, err
	}

	rec, ok := s.index[id]
	if !ok {
		return models.Credential{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	if upd.Title != nil {
		rec.Title = *upd.Title
	}
	if upd.Username != nil {
		rec.Username = *upd.Username
	}
	if upd.Secret != nil {
		rec.Secret = *upd.Secret
	}
	if upd.Notes != nil {
		rec.Notes = *upd.Notes
	}
	if upd.Category != nil {
		rec.Category = *upd.Category
	}

	if err := rec.Validate(); err != nil {
		return models.Credential{}, err
	}

	rec.ModifiedAt = time.Now().UTC()
	if err := s.encryptLocked(rec); err != nil {
		return models.Credential{}, err
	}
	s.index[id] = rec
	return rec.Copy(), nil
}

// DeleteRecord removes a record from the index; the removal reaches
// disk on the next Flush.
func (s *Session) DeleteRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return err
	}

	if _, ok := s.index[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	delete(s.index, id)
	delete(s.ciphertext, id)
	delete(s.dirty, id)
	s.removed = true
	return nil
}

// List returns copies of all records whose title, username, or category
// contains the filter, case-insensitively. An empty filter returns
// everything. Results are sorted by title, then creation time.
func (s *Session) List(filter string) ([]models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}

	filter = strings.ToLower(strings.TrimSpace(filter))
	var out []models.Credential
	for _, rec := range s.index {
		if filter != "" &&
			!strings.Contains(strings.ToLower(rec.Title), filter) &&
			!strings.Contains(strings.ToLower(rec.Username), filter) &&
			!strings.Contains(strings.ToLower(rec.Category), filter) {
			continue
		}
		out = append(out, rec.Copy())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Flush persists all records atomically and clears dirty flags. On
// failure the prior on-disk state is intact and Flush can be retried.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return err
	}

	if len(s.dirty) == 0 && !s.removed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.st.WriteAtomic(s.header, s.snapshotLocked()); err != nil {
		return err
	}
	s.dirty = make(map[string]bool)
	s.removed = false
	s.log.Info("vault flushed", zap.Int("records", len(s.index)))
	return nil
}

// ExportPlain returns decrypted copies of every record for backup. The
// caller owns warning the user about plaintext exposure.
func (s *Session) ExportPlain() ([]models.Credential, error) {
	return s.List("")
}

// ImportRecords inserts the given records, assigning fresh ids.
// Records that collide with an existing normalized title+username are
// skipped and reported as duplicate candidates; the caller can
// force-insert them individually after review.
func (s *Session) ImportRecords(records []models.Credential) (int, []DuplicateCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return 0, nil, err
	}

	var (
		added   int
		skipped []DuplicateCandidate
	)
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return added, skipped, fmt.Errorf("record %q: %w", rec.Title, err)
		}
		if existing, ok := s.findDuplicateLocked(rec); ok {
			skipped = append(skipped, DuplicateCandidate{Existing: existing.Copy()})
			continue
		}
		if _, err := s.insertLocked(rec); err != nil {
			return added, skipped, err
		}
		added++
	}

	s.log.Info("records imported", zap.Int("added", added), zap.Int("skipped", len(skipped)))
	return added, skipped, nil
}

// ChangeMasterPassword re-derives the vault key under a fresh salt and
// re-encrypts the canary and every record in one atomic write. The old
// password must verify against the current key first.
func (s *Session) ChangeMasterPassword(ctx context.Context, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlocked(); err != nil {
		return err
	}

	oldKey, err := kdf.Derive(oldPassword, s.header.Salt, s.header.KDFParams())
	if err != nil {
		return err
	}
	defer oldKey.Wipe()
	if !oldKey.Equal(s.key) {
		return vaultcrypt.ErrAuthentication
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		return err
	}
	newKey, err := kdf.Derive(newPassword, salt, s.header.KDFParams())
	if err != nil {
		return err
	}

	canary, err := vaultcrypt.Encrypt(newKey, []byte(canaryPlaintext))
	if err != nil {
		newKey.Wipe()
		return err
	}

	header := s.header
	header.Salt = salt
	header.Canary = canary

	ciphertext := make(map[string][]byte, len(s.index))
	for id, rec := range s.index {
		plain, err := json.Marshal(rec.Payload())
		if err != nil {
			newKey.Wipe()
			return fmt.Errorf("marshal record: %w", err)
		}
		ct, err := vaultcrypt.Encrypt(newKey, plain)
		if err != nil {
			newKey.Wipe()
			return err
		}
		ciphertext[id] = ct
	}

	prev := s.ciphertext
	s.ciphertext = ciphertext
	if err := s.st.WriteAtomic(header, s.snapshotLocked()); err != nil {
		s.ciphertext = prev
		newKey.Wipe()
		return err
	}

	s.header = header
	s.key.Wipe()
	s.key = newKey
	s.dirty = make(map[string]bool)
	s.removed = false
	s.log.Info("master password changed", zap.Int("records", len(s.index)))
	return nil
}

// findDuplicateLocked scans the index for a record with the same
// comparison key. Caller must hold s.mu.
func (s *Session) findDuplicateLocked(rec models.Credential) (models.Credential, bool) {
	key := rec.CompareKey()
	for _, existing := range s.index {
		if existing.ID != rec.ID && existing.CompareKey() == key {
			return existing, true
		}
	}
	return models.Credential{}, false
}

// insertLocked assigns id and timestamps, encrypts, and indexes the
// record. Caller must hold s.mu.
func (s *Session) insertLocked(rec models.Credential) (CreateResult, error) {
	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.ModifiedAt = now

	if err := s.encryptLocked(rec); err != nil {
		return CreateResult{}, err
	}
	s.index[rec.ID] = rec
	return CreateResult{Record: rec.Copy()}, nil
}

// encryptLocked re-encrypts the record payload and marks it dirty.
// Caller must hold s.mu.
func (s *Session) encryptLocked(rec models.Credential) error {
	plain, err := json.Marshal(rec.Payload())
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	ct, err := vaultcrypt.Encrypt(s.key, plain)
	if err != nil {
		return err
	}
	s.ciphertext[rec.ID] = ct
	s.dirty[rec.ID] = true
	return nil
}

// snapshotLocked assembles the full encrypted record set in a stable
// order for WriteAtomic. Caller must hold s.mu.
func (s *Session) snapshotLocked() []store.EncryptedRecord {
	records := make([]store.EncryptedRecord, 0, len(s.index))
	for id, rec := range s.index {
		records = append(records, store.EncryptedRecord{
			ID:         id,
			Data:       s.ciphertext[id],
			Category:   rec.Category,
			CreatedAt:  rec.CreatedAt,
			ModifiedAt: rec.ModifiedAt,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records
}
