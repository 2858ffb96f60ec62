package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrGenerateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "chemviz.key")

	first, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	second, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	sealed, err := first.Seal([]byte("YWRtaW46YWRtaW4xMjM="))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	plain, err := second.Open(sealed)
	if err != nil {
		t.Fatalf("Open with reloaded key: %v", err)
	}
	if string(plain) != "YWRtaW46YWRtaW4xMjM=" {
		t.Errorf("got %q", plain)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	k, _ := NewSealKey(make([]byte, 32))
	sealed, _ := k.Seal([]byte("secret"))

	other, _ := NewSealKey([]byte(strings.Repeat("x", 32)))
	if _, err := other.Open(sealed); err == nil {
		t.Error("expected failure with the wrong key")
	}
	if _, err := k.Open("c2hvcnQ="); err == nil {
		t.Error("expected failure for a value shorter than the nonce")
	}
	if _, err := k.Open("%%%"); err == nil {
		t.Error("expected failure for invalid base64")
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	k, _ := NewSealKey(make([]byte, 32))
	a, _ := k.Seal([]byte("same"))
	b, _ := k.Seal([]byte("same"))
	if a == b {
		t.Error("two seals of the same plaintext should differ")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chemviz.key")
	os.WriteFile(path, []byte("not a pem"), 0o600)
	if _, err := LoadOrGenerate(path); err == nil {
		t.Fatal("expected error for invalid key file")
	}
}

func TestNewSealKeyRejectsWrongSize(t *testing.T) {
	if _, err := NewSealKey([]byte("short")); err == nil {
		t.Fatal("expected size error")
	}
}
