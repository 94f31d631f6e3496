package security

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/warren/pkg/log"
)

const gcmTagBytes = 16 // standard GCM tag size (gcmTagSize), not exported by crypto/cipher

// encryptedBlob is the on-disk JSON shape (spec §6):
// {iv: hex, tag: hex, salt: hex, data: base64}.
type encryptedBlob struct {
	IV   string `json:"iv"`
	Tag  string `json:"tag"`
	Salt string `json:"salt"`
	Data []byte `json:"data"` // encoding/json base64-encodes []byte automatically
}

func blobFromSealed(s *sealed) (*encryptedBlob, error) {
	if len(s.ciphertext) < gcmTagBytes {
		return nil, fmt.Errorf("ciphertext shorter than gcm tag")
	}
	split := len(s.ciphertext) - gcmTagBytes
	return &encryptedBlob{
		IV:   hex.EncodeToString(s.iv),
		Tag:  hex.EncodeToString(s.ciphertext[split:]),
		Salt: hex.EncodeToString(s.salt),
		Data: s.ciphertext[:split],
	}, nil
}

func (b *encryptedBlob) toSealed() (*sealed, error) {
	iv, err := hex.DecodeString(b.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	tag, err := hex.DecodeString(b.Tag)
	if err != nil {
		return nil, fmt.Errorf("decode tag: %w", err)
	}
	salt, err := hex.DecodeString(b.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return &sealed{
		iv:         iv,
		salt:       salt,
		ciphertext: append(append([]byte{}, b.Data...), tag...),
	}, nil
}

// Store is the plugin host's secure credential store (C1): machine-bound
// AES-256-GCM blobs under a dual-layer lock, rooted at a base directory
// (typically the plugin host's per-plugin data directory).
type Store struct {
	baseDir string
	opts    LockOptions
}

// NewStore opens (creating if necessary) a secure store rooted at baseDir.
func NewStore(baseDir string, opts LockOptions) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{baseDir: baseDir, opts: opts}, nil
}

func (s *Store) resolve(key string) string {
	return filepath.Join(s.baseDir, key)
}

// Write writes raw (unencrypted) bytes atomically: write to a temp file in
// the same directory, fsync, then rename over the target. Rename is atomic
// on POSIX filesystems, so a concurrent reader observes either the previous
// or the new payload, never a truncated one (spec invariant, §3).
func (s *Store) Write(key string, data []byte) error {
	path := s.resolve(key)
	return withFileLock(path, s.opts, func() error {
		return atomicWrite(path, data)
	})
}

// Read reads raw bytes written by Write. It does not involve encryption;
// use ReadSecure/WriteSecure for encrypted credential payloads.
func (s *Store) Read(key string) ([]byte, error) {
	path := s.resolve(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes a key's file, if present.
func (s *Store) Delete(key string) error {
	path := s.resolve(key)
	return withFileLock(path, s.opts, func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// WriteSecure encrypts value with a fresh key derivation (new random salt)
// and writes the resulting blob atomically under the dual-layer lock.
func (s *Store) WriteSecure(key string, value []byte) error {
	path := s.resolve(key)
	return withFileLock(path, s.opts, func() error {
		sl, err := encrypt(value)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		blob, err := blobFromSealed(sl)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(blob)
		if err != nil {
			return fmt.Errorf("marshal blob: %w", err)
		}
		return atomicWrite(path, encoded)
	})
}

// ReadSecure reads and decrypts a blob written by WriteSecure. Legacy
// plaintext JSON (any payload that isn't a valid encryptedBlob) is
// auto-migrated: it is re-encrypted in place and returned as-is. A
// ciphertext that fails GCM tag verification — wrong machine/user, or
// corruption — is deleted and treated as absent data (spec §4.11), not a
// hard error.
func (s *Store) ReadSecure(key string) ([]byte, error) {
	path := s.resolve(key)

	var result []byte
	err := withFileLock(path, s.opts, func() error {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil // absent: result stays nil, no error
			}
			return fmt.Errorf("read %s: %w", key, err)
		}

		var blob encryptedBlob
		if jerr := json.Unmarshal(raw, &blob); jerr != nil || blob.IV == "" {
			// Legacy plaintext payload: migrate by re-encrypting in place.
			return s.migrateLegacy(path, raw, &result)
		}

		sl, err := blob.toSealed()
		if err != nil {
			return fmt.Errorf("parse blob: %w", err)
		}
		plaintext, err := decrypt(sl)
		if err != nil {
			log.Logger.Warn().Str("key", key).Msg("secure store: authentication failed, treating ciphertext as absent")
			_ = os.Remove(path)
			return nil
		}
		result = plaintext
		return nil
	})
	return result, err
}

// migrateLegacy re-encrypts a pre-existing plaintext payload and writes it
// back as an encryptedBlob, returning the original plaintext to the caller.
func (s *Store) migrateLegacy(path string, plaintext []byte, out *[]byte) error {
	sl, err := encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("migrate: encrypt: %w", err)
	}
	blob, err := blobFromSealed(sl)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("migrate: marshal: %w", err)
	}
	if err := atomicWrite(path, encoded); err != nil {
		return fmt.Errorf("migrate: write: %w", err)
	}
	*out = plaintext
	return nil
}

// atomicWrite writes data to a temp file in dir's directory, then renames it
// over path. Both the temp file and the final file are created owner-only
// (spec §6: "file permission owner read+write only").
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
