// Package secrets resolves the vendor API key from a secret store when it is
// not given directly in the environment.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var ErrSecretNotFound = errors.New("secret not found")

type SecretStore interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// secretsManagerAPI is the slice of the AWS client this package uses.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSSecretsManager struct {
	client secretsManagerAPI
	cache  map[string]cachedSecret
	mu     sync.RWMutex
	ttl    time.Duration
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

func NewAWSSecretsManager(ctx context.Context, region string) (*AWSSecretsManager, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg)), nil
}

func newAWSSecretsManager(client secretsManagerAPI) *AWSSecretsManager {
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]cachedSecret),
		ttl:    5 * time.Minute,
	}
}

func (s *AWSSecretsManager) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if cached, ok := s.cache[name]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		return cached.value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("%w: %s has no string value", ErrSecretNotFound, name)
	}

	value := *result.SecretString

	s.mu.Lock()
	s.cache[name] = cachedSecret{
		value:     value,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return value, nil
}

func (s *AWSSecretsManager) SetCacheTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

type InMemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewInMemorySecretStore() *InMemorySecretStore {
	return &InMemorySecretStore{
		secrets: make(map[string]string),
	}
}

func (s *InMemorySecretStore) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.secrets[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

func (s *InMemorySecretStore) SetSecret(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = value
}

// apiKeyFields are the JSON keys checked when a secret holds an object.
var apiKeyFields = []string{"api_key", "apiKey", "POSTECH_API_KEY", "key"}

// ResolveAPIKey reads the vendor key from the named secret. The secret may
// hold the key itself or a JSON object carrying it under a common field name.
func ResolveAPIKey(ctx context.Context, store SecretStore, name string) (string, error) {
	raw, err := store.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	value := strings.TrimSpace(raw)
	if !strings.HasPrefix(value, "{") {
		if value == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrSecretNotFound, name)
		}
		return value, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", fmt.Errorf("decode secret %s: %w", name, err)
	}
	for _, key := range apiKeyFields {
		if v, ok := fields[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no api key field", ErrSecretNotFound, name)
}
