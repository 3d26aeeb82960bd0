package crypto

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestSignVerify(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("purchase listing")
	sig := key.Sign(msg)
	if !Verify(key.Identity(), msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(key.Identity(), []byte("cancel listing"), sig) {
		t.Fatalf("signature must not verify for a different message")
	}
	other, _ := GeneratePrivateKey()
	if Verify(other.Identity(), msg, sig) {
		t.Fatalf("signature must not verify for a different identity")
	}
}

func TestPrivateKeyFromSeedRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromSeed(key.Seed())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Identity() != key.Identity() {
		t.Fatalf("identity mismatch after restore")
	}
	if _, err := PrivateKeyFromSeed([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short seed to fail")
	}
}

func TestIdentityTextEncoding(t *testing.T) {
	key, _ := GeneratePrivateKey()
	id := key.Identity()
	parsed, err := ParseIdentity(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("identity mismatch: %s vs %s", parsed, id)
	}
	encoded, err := json.Marshal(struct {
		Owner Identity `json:"owner"`
	}{Owner: id})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Owner Identity `json:"owner"`
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Owner != id {
		t.Fatalf("json round trip mismatch")
	}
	if _, err := ParseIdentity("not-base58-0OIl"); err == nil {
		t.Fatalf("expected invalid base58 to fail")
	}
	if _, err := ParseIdentity("abc"); err == nil {
		t.Fatalf("expected short identity to fail")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, _ := GeneratePrivateKey()
	path := filepath.Join(t.TempDir(), "keys", "seller.json")
	if err := SaveToKeystore(path, key, "hunter2"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Identity() != key.Identity() {
		t.Fatalf("identity mismatch")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
