package security

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir, DefaultLockOptions())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestWriteSecureReadSecureRoundtrip(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{name: "simple string", value: []byte(`{"apiKey":"sk-abc"}`)},
		{name: "binary data", value: []byte{0x00, 0x01, 0xFF, 0xFE}},
		{name: "large data", value: bytes.Repeat([]byte("x"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(t)
			if err := s.WriteSecure("creds.enc.json", tt.value); err != nil {
				t.Fatalf("WriteSecure() error = %v", err)
			}
			got, err := s.ReadSecure("creds.enc.json")
			if err != nil {
				t.Fatalf("ReadSecure() error = %v", err)
			}
			if !bytes.Equal(got, tt.value) {
				t.Errorf("ReadSecure() = %v, want %v", got, tt.value)
			}
		})
	}
}

func TestReadSecureMissingKeyReturnsNil(t *testing.T) {
	s := testStore(t)
	got, err := s.ReadSecure("does-not-exist.enc.json")
	if err != nil {
		t.Fatalf("ReadSecure() error = %v", err)
	}
	if got != nil {
		t.Errorf("ReadSecure() = %v, want nil for missing key", got)
	}
}

// TestReadSecureForeignMachineTreatedAsAbsent simulates scenario 7 from the
// spec: a ciphertext whose salt decodes, but whose tag/data was produced
// under a different derived key (standing in for "a different machine"),
// fails authentication and is treated as missing, with the file removed.
func TestReadSecureForeignMachineTreatedAsAbsent(t *testing.T) {
	s := testStore(t)
	if err := s.WriteSecure("creds.enc.json", []byte("sk-abc")); err != nil {
		t.Fatalf("WriteSecure() error = %v", err)
	}
	path := s.resolve("creds.enc.json")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var blob encryptedBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		t.Fatalf("unmarshal blob: %v", err)
	}
	// Corrupt the ciphertext bytes so GCM authentication fails, standing in
	// for a ciphertext produced under a key this machine cannot derive.
	blob.Data[0] ^= 0xFF
	corrupted, err := json.Marshal(blob)
	if err != nil {
		t.Fatalf("marshal corrupted blob: %v", err)
	}
	if err := os.WriteFile(path, corrupted, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := s.ReadSecure("creds.enc.json")
	if err != nil {
		t.Fatalf("ReadSecure() error = %v, want nil error (treated as absent)", err)
	}
	if got != nil {
		t.Errorf("ReadSecure() = %v, want nil", got)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("expected ciphertext file to be deleted after failed authentication")
	}
}

func TestReadSecureAutoMigratesLegacyPlaintext(t *testing.T) {
	s := testStore(t)
	path := s.resolve("legacy.json")
	legacy := []byte(`{"apiKey":"sk-legacy"}`)
	if err := atomicWrite(path, legacy); err != nil {
		t.Fatalf("seed legacy file: %v", err)
	}

	got, err := s.ReadSecure("legacy.json")
	if err != nil {
		t.Fatalf("ReadSecure() error = %v", err)
	}
	if !bytes.Equal(got, legacy) {
		t.Errorf("ReadSecure() = %v, want %v", got, legacy)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var blob encryptedBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		t.Fatalf("expected file to be migrated to an encrypted blob, got unparseable contents: %v", err)
	}
	if blob.IV == "" {
		t.Error("migrated blob missing iv")
	}
}

func TestConcurrentWriteSecureNeverTorn(t *testing.T) {
	s := testStore(t)
	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		i := i
		go func() {
			defer wg.Done()
			val := bytes.Repeat([]byte{byte('a' + i)}, 4096)
			if err := s.WriteSecure("shared.enc.json", val); err != nil {
				t.Errorf("WriteSecure() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.ReadSecure("shared.enc.json")
	if err != nil {
		t.Fatalf("ReadSecure() error = %v", err)
	}
	if len(got) != 4096 {
		t.Fatalf("ReadSecure() returned %d bytes, want 4096 (torn or partial write)", len(got))
	}
	first := got[0]
	for _, b := range got {
		if b != first {
			t.Fatalf("ReadSecure() returned mixed bytes, file was torn: %v", got[:32])
		}
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1, err := deriveKey(salt)
	if err != nil {
		t.Fatalf("deriveKey() error = %v", err)
	}
	k2, err := deriveKey(salt)
	if err != nil {
		t.Fatalf("deriveKey() error = %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("deriveKey() should be deterministic for the same salt")
	}
	if len(k1) != keyLenBytes {
		t.Errorf("deriveKey() returned %d bytes, want %d", len(k1), keyLenBytes)
	}
}

func TestStaleLockIsCleanedUpOnRetry(t *testing.T) {
	s := testStore(t)
	path := s.resolve("stale.enc.json")
	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fl := &fileLock{path: path + ".lock"}
	// Simulate a lock left behind by a pid that cannot possibly be alive.
	stale := lockFilePayload{PID: 1 << 30, TS: 0}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(fl.path, data, 0600); err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}

	opts := DefaultLockOptions()
	opts.TimeoutMs = 1000
	opts.RetryMs = 10
	if err := fl.acquire(opts); err != nil {
		t.Fatalf("acquire() should clean up stale lock and succeed, got error = %v", err)
	}
	_ = fl.release()
}
