package integrity

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"testing"

	"github.com/cuemby/warren/pkg/types"
)

func pemEncodePublicKey(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func TestVerifyNoIntegrityDescriptorWarns(t *testing.T) {
	manifest := types.PluginManifest{Name: "plugin-a"}
	verdict, err := Verify(manifest, []byte("source"))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verdict.Verified {
		t.Errorf("expected unverified verdict when no integrity descriptor present")
	}
	if verdict.Warning == "" {
		t.Errorf("expected a warning, got none")
	}
}

func TestVerifyLegacyHashMatch(t *testing.T) {
	source := []byte("console.log('hello')")
	sum := sha512.Sum512(source)
	manifest := types.PluginManifest{
		Name:      "plugin-a",
		Integrity: &types.Integrity{LegacyHash: fmt.Sprintf("%x", sum)},
	}
	verdict, err := Verify(manifest, source)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !verdict.Verified || verdict.Format != "legacy" {
		t.Errorf("expected verified legacy verdict, got %+v", verdict)
	}
}

func TestVerifyLegacyHashMismatchFailsClosed(t *testing.T) {
	source := []byte("console.log('hello')")
	manifest := types.PluginManifest{
		Name:      "plugin-a",
		Integrity: &types.Integrity{LegacyHash: fmt.Sprintf("%x", sha512.Sum512([]byte("different")))},
	}
	_, err := Verify(manifest, source)
	if err == nil {
		t.Fatal("expected error on hash mismatch")
	}
}

func TestVerifyLegacyHashMalformedFailsClosed(t *testing.T) {
	manifest := types.PluginManifest{
		Name:      "plugin-a",
		Integrity: &types.Integrity{LegacyHash: "not-a-valid-hash"},
	}
	_, err := Verify(manifest, []byte("source"))
	if err == nil {
		t.Fatal("expected error on malformed legacy hash")
	}
}

func TestVerifyPKIEd25519Valid(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	source := []byte("export function activate() {}")
	sig := ed25519.Sign(priv, source)

	manifest := types.PluginManifest{
		Name: "plugin-a",
		Integrity: &types.Integrity{PKI: &types.PKI{
			Algorithm: types.AlgorithmEd25519SHA256,
			Signature: base64.StdEncoding.EncodeToString(sig),
			PublicKey: pemEncodePublicKey(t, pub),
			Author:    "dev@example.com",
		}},
	}
	verdict, err := Verify(manifest, source)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !verdict.Verified || verdict.Format != "pki" {
		t.Errorf("expected verified pki verdict, got %+v", verdict)
	}
}

func TestVerifyPKIEd25519TamperedSourceFailsClosed(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sig := ed25519.Sign(priv, []byte("original source"))

	manifest := types.PluginManifest{
		Name: "plugin-a",
		Integrity: &types.Integrity{PKI: &types.PKI{
			Algorithm: types.AlgorithmEd25519SHA256,
			Signature: base64.StdEncoding.EncodeToString(sig),
			PublicKey: pemEncodePublicKey(t, pub),
		}},
	}
	_, err = Verify(manifest, []byte("tampered source"))
	if err == nil {
		t.Fatal("expected error when entry source does not match signed content")
	}
}

func TestVerifyPKIRSAValid(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	source := []byte("export function activate() {}")
	digest := sha256.Sum256(source)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15: %v", err)
	}

	manifest := types.PluginManifest{
		Name: "plugin-a",
		Integrity: &types.Integrity{PKI: &types.PKI{
			Algorithm: types.AlgorithmRSASHA256,
			Signature: base64.StdEncoding.EncodeToString(sig),
			PublicKey: pemEncodePublicKey(t, &priv.PublicKey),
		}},
	}
	verdict, err := Verify(manifest, source)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !verdict.Verified || verdict.Format != "pki" {
		t.Errorf("expected verified pki verdict, got %+v", verdict)
	}
}

func TestVerifyPKIUnknownAlgorithmFailsClosed(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	manifest := types.PluginManifest{
		Name: "plugin-a",
		Integrity: &types.Integrity{PKI: &types.PKI{
			Algorithm: "sha1-with-rsa",
			Signature: base64.StdEncoding.EncodeToString([]byte("sig")),
			PublicKey: pemEncodePublicKey(t, pub),
		}},
	}
	_, err = Verify(manifest, []byte("source"))
	if err == nil {
		t.Fatal("expected error for unknown signature algorithm")
	}
}

func TestVerifyPKIMalformedPublicKeyFailsClosed(t *testing.T) {
	manifest := types.PluginManifest{
		Name: "plugin-a",
		Integrity: &types.Integrity{PKI: &types.PKI{
			Algorithm: types.AlgorithmEd25519SHA256,
			Signature: base64.StdEncoding.EncodeToString([]byte("sig")),
			PublicKey: "not pem at all",
		}},
	}
	_, err := Verify(manifest, []byte("source"))
	if err == nil {
		t.Fatal("expected error for malformed public key")
	}
}
