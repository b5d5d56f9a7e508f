package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// State is everything persisted between restarts.
type State struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	Role         models.Role `json:"role"`
	UserID       int64       `json:"userId"`
	Email        string      `json:"email"`
	PasswordHash []byte      `json:"passwordHash,omitempty"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	NeedsReauth  bool        `json:"needsReauth"`
}

func (s *State) Owner() models.Owner {
	return models.Owner{Role: s.Role, ID: s.UserID}
}

type Store interface {
	// Load returns (nil, nil) when nothing was saved yet.
	Load() (*State, error)
	Save(s *State) error
	Clear() error
}

// FileStore keeps the session sealed with XChaCha20-Poly1305 under a key
// derived from the configured secret.
type FileStore struct {
	path string
	key  []byte
}

const sessionInfo = "clinic-sync session v1"

func NewFileStore(path, secret string) (*FileStore, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sessionInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &FileStore{path: path, key: key}, nil
}

func (f *FileStore) Load() (*State, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("session file truncated")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(sessionInfo))
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	var s State
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Save writes through a temp file and rename so a crash never leaves a
// half-written session behind.
func (f *FileStore) Save(s *State) error {
	plain, err := json.Marshal(s)
	if err != nil {
		return err
	}

	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := aead.Seal(nonce, nonce, plain, []byte(sessionInfo))

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	state *State
}

func (m *MemoryStore) Load() (*State, error) {
	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}

func (m *MemoryStore) Save(s *State) error {
	cp := *s
	m.state = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.state = nil
	return nil
}
