// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// Encrypted wraps a Store and encrypts every value at rest with age. Each
// value is a complete age file encrypted to the store identity's
// recipient plus any additional recipients (for example an offline
// escrow key), so stored values can be recovered with the age CLI.
//
// Keys are not encrypted: the key layout stays content-addressed and
// browsable, only the bytes are opaque.
type Encrypted struct {
	inner      Store
	identity   age.Identity
	recipients []age.Recipient
}

// NewEncrypted wraps inner. identity decrypts values on Load; its
// recipient and every entry in escrow receive each value on Save.
func NewEncrypted(inner Store, identity *age.X25519Identity, escrow ...age.Recipient) *Encrypted {
	recipients := make([]age.Recipient, 0, 1+len(escrow))
	recipients = append(recipients, identity.Recipient())
	recipients = append(recipients, escrow...)
	return &Encrypted{
		inner:      inner,
		identity:   identity,
		recipients: recipients,
	}
}

// LoadIdentityFile reads an age identity file (the format written by
// age-keygen) and returns its first X25519 identity. Comment lines are
// ignored.
func LoadIdentityFile(path string) (*age.X25519Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	for _, identity := range identities {
		if x25519, ok := identity.(*age.X25519Identity); ok {
			return x25519, nil
		}
	}
	return nil, fmt.Errorf("identity file %s contains no X25519 identity", path)
}

// ParseRecipients parses age public keys (age1...).
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

func (e *Encrypted) Save(ctx context.Context, key string, data []byte) error {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, e.recipients...)
	if err != nil {
		return fmt.Errorf("creating age encryptor for %s: %w", key, err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing encryption of %s: %w", key, err)
	}
	return e.inner.Save(ctx, key, ciphertext.Bytes())
}

func (e *Encrypted) Load(ctx context.Context, key string) ([]byte, error) {
	ciphertext, err := e.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), e.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", key, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted %s: %w", key, err)
	}
	return plaintext, nil
}

func (e *Encrypted) Exists(ctx context.Context, key string) (bool, error) {
	return e.inner.Exists(ctx, key)
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}
