// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets resolves keyring://service/key references in configuration
// values against the OS keyring.
package secrets

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

const keyringScheme = "keyring://"

// Store reads and writes secrets by service and key.
type Store interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// Compile-time interface check.
var _ Store = KeyringStore{}

// KeyringStore implements Store with zalando/go-keyring: Keychain on macOS,
// secret-service on Linux, Credential Manager on Windows.
type KeyringStore struct{}

func (KeyringStore) Get(service, key string) (string, error) {
	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (KeyringStore) Set(service, key, value string) error {
	if err := keyring.Set(service, key, value); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return nil
}

func (KeyringStore) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "deleting secret %s/%s", service, key)
	}
	return nil
}

// IsReference reports whether value uses the keyring:// scheme.
func IsReference(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseReference splits keyring://service/key into service and key. The key
// may itself contain slashes.
func ParseReference(ref string) (service, key string, err error) {
	if !IsReference(ref) {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "not a keyring reference: %q", ref)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(ref, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput,
			"invalid keyring reference %q: expected keyring://service/key", ref)
	}
	return service, key, nil
}

// Resolve returns the secret behind a keyring reference, or value unchanged
// when it is not a reference.
func Resolve(store Store, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}

	service, key, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Get(service, key)
	if err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveConfig replaces every keyring reference among the string values of
// v with its secret. All failures are reported together; keys that failed
// keep their reference.
func ResolveConfig(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !IsReference(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			errs = append(errs, sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure, "config key %s", key))
			continue
		}
		v.Set(key, resolved)
	}
	if len(errs) > 0 {
		return sigilerr.Wrap(errors.Join(errs...), sigilerr.CodeSecretResolveFailure, "resolving config secrets")
	}
	return nil
}
