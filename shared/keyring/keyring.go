package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	ServiceName = "deepseek-json"

	// APIKeySecret is the entry holding the DeepSeek API key.
	APIKeySecret = "api_key"
)

type ErrSecretNotFound struct {
	Key string
	Err error
}

func (e *ErrSecretNotFound) Error() string {
	return fmt.Sprintf("secret %q not found: %s", e.Key, e.Err)
}

func (e *ErrSecretNotFound) Is(target error) bool {
	_, ok := target.(*ErrSecretNotFound)
	return ok
}

func (e *ErrSecretNotFound) Unwrap() error {
	return e.Err
}

type ErrSecretTooLarge struct {
	Key string
	Err error
}

func (e *ErrSecretTooLarge) Error() string {
	return fmt.Sprintf("secret %q is too large: %s", e.Key, e.Err)
}

func (e *ErrSecretTooLarge) Is(target error) bool {
	_, ok := target.(*ErrSecretTooLarge)
	return ok
}

func (e *ErrSecretTooLarge) Unwrap() error {
	return e.Err
}

//go:generate mockgen -destination=../mocks/keyring_provider_mock.go -package=mocks . Provider
type Provider interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Delete(key string) error
}

// KeyringProvider stores secrets in the operating system credential store
// under a single service name.
type KeyringProvider struct {
	service string
}

func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{
		service: ServiceName,
	}
}

func (k *KeyringProvider) Get(key string) (string, error) {
	secret, err := keyring.Get(k.service, key)
	if err != nil {
		return "", toError(key, err)
	}
	return secret, nil
}

func (k *KeyringProvider) Set(key string, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return toError(key, err)
	}
	return nil
}

func (k *KeyringProvider) Delete(key string) error {
	if err := keyring.Delete(k.service, key); err != nil {
		return toError(key, err)
	}
	return nil
}

// Lookup returns the secret stored under key. A missing entry is reported as
// found == false rather than as an error.
func Lookup(provider Provider, key string) (secret string, found bool, err error) {
	if provider == nil {
		return "", false, nil
	}

	secret, err = provider.Get(key)
	if err != nil {
		if errors.Is(err, &ErrSecretNotFound{}) {
			return "", false, nil
		}
		return "", false, err
	}
	return secret, secret != "", nil
}

func toError(key string, err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return &ErrSecretNotFound{Key: key, Err: err}
	}

	if errors.Is(err, keyring.ErrSetDataTooBig) {
		return &ErrSecretTooLarge{Key: key, Err: err}
	}

	return err
}

var _ Provider = (*KeyringProvider)(nil)
