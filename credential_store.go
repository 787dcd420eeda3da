package main

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// ErrNoSecret is returned by Load when no secret has been saved.
var ErrNoSecret = errors.New("credential: no secret stored")

// keyringBackend abstracts go-keyring so tests never touch the real OS
// keychain.
type keyringBackend interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

type osKeyringBackend struct{}

func (osKeyringBackend) Set(service, user, password string) error { return keyring.Set(service, user, password) }
func (osKeyringBackend) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyringBackend) Delete(service, user string) error        { return keyring.Delete(service, user) }

const (
	credentialService = "vocalis"
	credentialAccount = "remote-transcription-api-key"
)

// CredentialStore persists a single secret (the remote transcription API
// key) in the OS keychain. The secret is never written to logs, stdout, or
// error strings — errors from the backend are passed through verbatim
// since go-keyring never echoes the value back in its own error text.
type CredentialStore struct {
	backend keyringBackend
	service string
	account string
}

// NewCredentialStore creates a CredentialStore backed by the real OS
// keychain, keyed by the production service/account pair.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{backend: osKeyringBackend{}, service: credentialService, account: credentialAccount}
}

// newCredentialStoreWithBackend wires a custom backend and key pair (tests
// only — never share the production service/account pair with tests).
func newCredentialStoreWithBackend(b keyringBackend, service, account string) *CredentialStore {
	return &CredentialStore{backend: b, service: service, account: account}
}

// Save atomically replaces any previously stored secret.
func (c *CredentialStore) Save(secret string) error {
	return c.backend.Set(c.service, c.account, secret)
}

// Load returns the stored secret, or ErrNoSecret if none is set.
func (c *CredentialStore) Load() (string, error) {
	secret, err := c.backend.Get(c.service, c.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoSecret
		}
		return "", err
	}
	return secret, nil
}

// Delete removes the stored secret, if any. Deleting a nonexistent secret
// is not an error.
func (c *CredentialStore) Delete() error {
	err := c.backend.Delete(c.service, c.account)
	if err != nil && errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Has reports whether a secret is currently stored.
func (c *CredentialStore) Has() bool {
	_, err := c.Load()
	return err == nil
}
