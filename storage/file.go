package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/opengovern/dca-auth-go/apierr"
)

const (
	fileFormatVersion = 1
	saltSize          = 16

	// DefaultScryptN is the scrypt CPU/memory cost used for new files.
	DefaultScryptN = 1 << 15
)

// envelope is the on-disk layout. Data is the XChaCha20-Poly1305 sealed
// JSON object of all keys.
type envelope struct {
	Version int    `json:"version"`
	N       int    `json:"n"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// FileStorage persists values to a single file encrypted with a key derived
// from a passphrase. The file is rewritten atomically on every change.
type FileStorage struct {
	path       string
	passphrase []byte
	scryptN    int

	mu     sync.Mutex
	loaded bool
	data   map[string]string
	salt   []byte
	key    []byte
}

type FileOption func(*FileStorage)

// WithScryptN overrides the scrypt cost for newly written files.
func WithScryptN(n int) FileOption {
	return func(f *FileStorage) {
		if n > 1 && n&(n-1) == 0 {
			f.scryptN = n
		}
	}
}

// NewFileStorage returns a store backed by path. The file is read lazily on
// first use; a missing file is an empty store.
func NewFileStorage(path, passphrase string, opts ...FileOption) (*FileStorage, error) {
	if path == "" {
		return nil, apierr.New(apierr.KindConfiguration, "file storage path is required")
	}
	if passphrase == "" {
		return nil, apierr.New(apierr.KindConfiguration, "file storage passphrase is required")
	}
	f := &FileStorage{path: path, passphrase: []byte(passphrase), scryptN: DefaultScryptN}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Path returns the backing file path.
func (f *FileStorage) Path() string { return f.path }

func (f *FileStorage) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return "", false, err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *FileStorage) Set(ctx context.Context, key, value string) error {
	return f.SetMany(ctx, map[string]string{key: value})
}

func (f *FileStorage) Remove(ctx context.Context, key string) error {
	return f.SetMany(ctx, map[string]string{key: ""})
}

func (f *FileStorage) SetMany(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	next := make(map[string]string, len(f.data)+len(values))
	for k, v := range f.data {
		next[k] = v
	}
	for k, v := range values {
		if v == "" {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	if err := f.save(next); err != nil {
		return err
	}
	f.data = next
	return nil
}

// Clear removes the backing file.
func (f *FileStorage) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("clear", "", err)
	}
	f.data = make(map[string]string)
	f.loaded = true
	return nil
}

func (f *FileStorage) load() error {
	if f.loaded {
		return nil
	}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.data = make(map[string]string)
		f.loaded = true
		return nil
	}
	if err != nil {
		return storageErr("read", "", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return storageErr("read", "", fmt.Errorf("decode %s: %w", f.path, err))
	}
	if env.Version != fileFormatVersion {
		return storageErr("read", "", fmt.Errorf("unsupported file version %d", env.Version))
	}

	key, err := deriveKey(f.passphrase, env.Salt, env.N)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return apierr.Wrap(apierr.KindCrypto, err, "cipher setup failed")
	}
	plain, err := aead.Open(nil, env.Nonce, env.Data, nil)
	if err != nil {
		return apierr.Wrap(apierr.KindCrypto, err, "failed to decrypt credential file")
	}

	data := make(map[string]string)
	if err := json.Unmarshal(plain, &data); err != nil {
		return storageErr("read", "", err)
	}
	f.data, f.salt, f.key, f.scryptN = data, env.Salt, key, env.N
	f.loaded = true
	return nil
}

func (f *FileStorage) save(data map[string]string) error {
	if f.key == nil {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return apierr.Wrap(apierr.KindCrypto, err, "salt generation failed")
		}
		key, err := deriveKey(f.passphrase, salt, f.scryptN)
		if err != nil {
			return err
		}
		f.salt, f.key = salt, key
	}

	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return apierr.Wrap(apierr.KindCrypto, err, "cipher setup failed")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return apierr.Wrap(apierr.KindCrypto, err, "nonce generation failed")
	}
	plain, err := json.Marshal(data)
	if err != nil {
		return storageErr("write", "", err)
	}
	out, err := json.Marshal(envelope{
		Version: fileFormatVersion,
		N:       f.scryptN,
		Salt:    f.salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, plain, nil),
	})
	if err != nil {
		return storageErr("write", "", err)
	}
	return storageErr("write", "", writeFileAtomic(f.path, out))
}

func deriveKey(passphrase, salt []byte, n int) ([]byte, error) {
	if n <= 1 {
		n = DefaultScryptN
	}
	key, err := scrypt.Key(passphrase, salt, n, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindCrypto, err, "key derivation failed")
	}
	return key, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".dca-auth-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
