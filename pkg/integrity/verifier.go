// Package integrity implements the plugin host's signature verifier (C3):
// a dual-format, fail-closed integrity check run before any plugin code is
// admitted. The format is detected from the manifest's Integrity value
// rather than declared, matching spec §4.1.
package integrity

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"regexp"

	"github.com/cuemby/warren/pkg/hosterrors"
	"github.com/cuemby/warren/pkg/types"
)

var legacyHashPattern = regexp.MustCompile(`^[0-9a-f]{128}$`)

// Verdict is the (never-partial) outcome of one verification (spec §4.1:
// "Output is a verdict, never a partial signal").
type Verdict struct {
	Verified bool
	Format   string // "legacy", "pki", or "" when none was configured
	Warning  string // set when verification was skipped, not when it failed
}

// Verify checks entrySource (the plugin entry file's raw bytes) against the
// manifest's integrity descriptor. No integrity field present returns a
// non-verified verdict carrying a warning rather than an error — the
// caller (sandbox manager) decides whether that is acceptable based on
// whether the plugin is sandboxed.
func Verify(manifest types.PluginManifest, entrySource []byte) (Verdict, error) {
	integrity := manifest.Integrity
	if integrity == nil {
		return Verdict{Verified: false, Warning: "no integrity descriptor provided"}, nil
	}

	switch {
	case integrity.LegacyHash != "":
		return verifyLegacy(manifest.Name, integrity.LegacyHash, entrySource)
	case integrity.PKI != nil:
		return verifyPKI(manifest.Name, integrity.PKI, entrySource)
	default:
		return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, manifest.Name, "Verify",
			fmt.Errorf("integrity descriptor present but empty (neither legacy hash nor PKI object)"))
	}
}

func verifyLegacy(pluginName, hash string, entrySource []byte) (Verdict, error) {
	if !legacyHashPattern.MatchString(hash) {
		return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyLegacy",
			fmt.Errorf("integrity value is not a 128-character lowercase hex digest and not a recognized PKI object"))
	}
	sum := sha512.Sum512(entrySource)
	computed := fmt.Sprintf("%x", sum)
	if computed != hash {
		return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyLegacy",
			fmt.Errorf("content hash mismatch"))
	}
	return Verdict{Verified: true, Format: "legacy"}, nil
}

func verifyPKI(pluginName string, pki *types.PKI, entrySource []byte) (Verdict, error) {
	sig, err := base64.StdEncoding.DecodeString(pki.Signature)
	if err != nil {
		return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyPKI",
			fmt.Errorf("decode signature: %w", err))
	}
	block, _ := pem.Decode([]byte(pki.PublicKey))
	if block == nil {
		return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyPKI",
			fmt.Errorf("public key is not valid PEM"))
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyPKI",
			fmt.Errorf("parse public key: %w", err))
	}

	switch pki.Algorithm {
	case types.AlgorithmEd25519SHA256:
		edKey, ok := pub.(ed25519.PublicKey)
		if !ok {
			return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyPKI",
				fmt.Errorf("algorithm ed25519-sha256 requires an Ed25519 public key"))
		}
		if !ed25519.Verify(edKey, entrySource, sig) {
			return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyPKI",
				fmt.Errorf("ed25519 signature verification failed"))
		}
		return Verdict{Verified: true, Format: "pki"}, nil

	case types.AlgorithmRSASHA256:
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyPKI",
				fmt.Errorf("algorithm rsa-sha256 requires an RSA public key"))
		}
		digest := sha256.Sum256(entrySource)
		if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], sig); err != nil {
			return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyPKI",
				fmt.Errorf("rsa signature verification failed: %w", err))
		}
		return Verdict{Verified: true, Format: "pki"}, nil

	default:
		return Verdict{}, hosterrors.New(hosterrors.KindIntegrity, pluginName, "verifyPKI",
			fmt.Errorf("unknown signature algorithm %q", pki.Algorithm))
	}
}
