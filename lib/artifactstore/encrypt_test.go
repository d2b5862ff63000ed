// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
)

func newTestIdentity(t *testing.T) *age.X25519Identity {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	return identity
}

func TestEncryptedCiphertextAtRest(t *testing.T) {
	inner := NewMemory()
	store := NewEncrypted(inner, newTestIdentity(t))
	ctx := context.Background()
	plaintext := []byte("secret layer bytes")

	if err := store.Save(ctx, "blobs/a", plaintext); err != nil {
		t.Fatal(err)
	}

	raw, err := inner.Load(ctx, "blobs/a")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, plaintext) {
		t.Error("plaintext visible in stored value")
	}

	loaded, err := store.Load(ctx, "blobs/a")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(loaded, plaintext) {
		t.Errorf("Load = %q, want %q", loaded, plaintext)
	}
}

func TestEncryptedWrongIdentityFails(t *testing.T) {
	inner := NewMemory()
	ctx := context.Background()

	if err := NewEncrypted(inner, newTestIdentity(t)).Save(ctx, "blobs/a", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEncrypted(inner, newTestIdentity(t)).Load(ctx, "blobs/a"); err == nil {
		t.Error("Load with a different identity succeeded")
	}
}

func TestEncryptedEscrowRecipient(t *testing.T) {
	inner := NewMemory()
	ctx := context.Background()
	escrow := newTestIdentity(t)

	store := NewEncrypted(inner, newTestIdentity(t), escrow.Recipient())
	if err := store.Save(ctx, "blobs/a", []byte("recoverable")); err != nil {
		t.Fatal(err)
	}

	raw, err := inner.Load(ctx, "blobs/a")
	if err != nil {
		t.Fatal(err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), escrow)
	if err != nil {
		t.Fatalf("escrow identity cannot decrypt: %v", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(plaintext) != "recoverable" {
		t.Errorf("escrow plaintext = %q", plaintext)
	}
}

func TestLoadIdentityFile(t *testing.T) {
	identity := newTestIdentity(t)
	path := filepath.Join(t.TempDir(), "identity.txt")
	content := "# created: 2026-01-15T12:00:00Z\n# public key: " + identity.Recipient().String() + "\n" + identity.String() + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadIdentityFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Recipient().String() != identity.Recipient().String() {
		t.Errorf("loaded recipient %s, want %s", loaded.Recipient(), identity.Recipient())
	}

	if _, err := LoadIdentityFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("LoadIdentityFile of a missing file succeeded")
	}
}

func TestParseRecipients(t *testing.T) {
	identity := newTestIdentity(t)
	recipients, err := ParseRecipients([]string{identity.Recipient().String()})
	if err != nil {
		t.Fatal(err)
	}
	if len(recipients) != 1 {
		t.Fatalf("got %d recipients", len(recipients))
	}

	if _, err := ParseRecipients([]string{"not-a-key"}); err == nil {
		t.Error("ParseRecipients accepted garbage")
	}
}
