package credvault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

// Vault decrypts provider secrets and caches the results for the duration
// of a job run. Lookups that fail with a definitive outcome (no row, no key,
// undecryptable) are cached too, so a misconfigured tenant is charged one
// repository query per run instead of one per item.
type Vault struct {
	repo Repository
	gcm  cipher.AEAD

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

type cacheKey struct {
	tenantID int64
	provider domain.ProviderName
}

type cacheEntry struct {
	secret string
	err    error
}

// NewVault builds a vault from the base64-encoded AES-256 key. The encoded
// key is sanitized first: surrounding quotes, backslashes, and any embedded
// whitespace are stripped, since keys pasted through env files and secret
// managers routinely pick those up.
func NewVault(encodedKey string, repo Repository) (*Vault, error) {
	cleaned := sanitizeKey(encodedKey)
	if cleaned == "" {
		return nil, fmt.Errorf("credvault: encryption key is empty")
	}

	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Tolerate keys stored without padding.
		raw, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("credvault: encryption key is not valid base64: %w", err)
		}
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("credvault: encryption key must decode to 32 bytes, got %d", len(raw))
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("credvault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credvault: create GCM: %w", err)
	}

	return &Vault{
		repo:  repo,
		gcm:   gcm,
		cache: make(map[cacheKey]cacheEntry),
	}, nil
}

// GetProviderSecret returns the decrypted secret key for a tenant's provider
// credential. Results, including definitive failures, are cached until
// ClearCache is called.
func (v *Vault) GetProviderSecret(ctx context.Context, tenantID int64, provider domain.ProviderName) (string, error) {
	key := cacheKey{tenantID: tenantID, provider: provider}

	v.mu.RLock()
	if entry, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return entry.secret, entry.err
	}
	v.mu.RUnlock()

	secret, err := v.load(ctx, tenantID, provider)
	if err != nil && !isDefinitive(err) {
		// Transient repository failures are not cached.
		return "", err
	}

	v.mu.Lock()
	v.cache[key] = cacheEntry{secret: secret, err: err}
	v.mu.Unlock()

	return secret, err
}

// GetStripeSecret is a convenience wrapper used by the payment workflows.
func (v *Vault) GetStripeSecret(ctx context.Context, tenantID int64) (string, error) {
	return v.GetProviderSecret(ctx, tenantID, domain.ProviderStripe)
}

// ClearCache drops every cached secret. The fee/tax workflow calls this at
// the start of each run.
func (v *Vault) ClearCache() {
	v.mu.Lock()
	v.cache = make(map[cacheKey]cacheEntry)
	v.mu.Unlock()
}

func (v *Vault) load(ctx context.Context, tenantID int64, provider domain.ProviderName) (string, error) {
	cred, err := v.repo.GetCredential(ctx, tenantID, provider)
	if err != nil {
		if errors.Is(err, ErrTenantUnconfigured) {
			log.Printf("[Vault] No %s credential for tenant %d", provider, tenantID)
		}
		return "", err
	}

	if cred.EncryptedSecretKey != nil && *cred.EncryptedSecretKey != "" {
		secret, derr := v.decrypt(*cred.EncryptedSecretKey)
		if derr != nil {
			log.Printf("[Vault] Failed to decrypt %s secret for tenant %d: %v", provider, tenantID, derr)
			return "", fmt.Errorf("%w: %v", ErrUndecryptable, derr)
		}
		return secret, nil
	}

	// Older rows keep a plaintext key inside config_json.
	if secret := secretFromConfig(cred.ConfigJSON); secret != "" {
		log.Printf("[Vault] Using config fallback %s key for tenant %d", provider, tenantID)
		return secret, nil
	}

	log.Printf("[Vault] Credential for tenant %d has no usable %s key", tenantID, provider)
	return "", ErrKeyNotConfigured
}

// decrypt reverses base64(nonce || ciphertext || tag). The GCM tag rides at
// the tail of the ciphertext, so splitting off the nonce is enough.
func (v *Vault) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	nonceSize := v.gcm.NonceSize()
	if len(data) < nonceSize+v.gcm.Overhead() {
		return "", fmt.Errorf("ciphertext too short: %d bytes", len(data))
	}

	plaintext, err := v.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	return string(plaintext), nil
}

func secretFromConfig(configJSON *string) string {
	if configJSON == nil || *configJSON == "" {
		return ""
	}
	var cfg struct {
		SecretKey string `json:"secretKey"`
	}
	if err := json.Unmarshal([]byte(*configJSON), &cfg); err != nil {
		return ""
	}
	return strings.TrimSpace(cfg.SecretKey)
}

// sanitizeKey strips quotes, backslashes, and whitespace. Keys copied out of
// JSON blobs or multi-line env files arrive with all three.
func sanitizeKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.Map(func(r rune) rune {
		if r == '\\' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isDefinitive(err error) bool {
	return errors.Is(err, ErrTenantUnconfigured) ||
		errors.Is(err, ErrKeyNotConfigured) ||
		errors.Is(err, ErrUndecryptable)
}
