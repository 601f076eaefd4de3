package vault

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	configKeyIDTag = "kid"
	// ConfigFileName is the name of the signed vault configuration document
	// stored at the vault root.
	ConfigFileName = "vault.cryptomator"
	// MasterKeyFileName is the name of the wrapped master key document
	// stored at the vault root.
	MasterKeyFileName = "masterkey.cryptomator"
	// DefaultShorteningThreshold is the ciphertext name length above which
	// a name gets a .c9s shortening container.
	DefaultShorteningThreshold = 220
	// MinShorteningThreshold and MaxShorteningThreshold bound the range a
	// vault config's ShorteningThreshold may legally hold.
	MinShorteningThreshold = 40
	MaxShorteningThreshold = 220
	// SupportedFormat is the only vault format this module reads/writes.
	SupportedFormat = 8
)

// keyID parses the JWT header's "kid" claim, a "scheme:uri" string
// identifying which key file verifies the token.
type keyID string

func (kid keyID) Scheme() string {
	parts := strings.SplitN(string(kid), ":", 2)
	return parts[0]
}

func (kid keyID) URI() string {
	parts := strings.SplitN(string(kid), ":", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// VaultConfig is the signed configuration document stored in
// vault.cryptomator at the vault root.
type VaultConfig struct {
	Format              int    `json:"format"`
	ShorteningThreshold int    `json:"shorteningThreshold"`
	Jti                 string `json:"jti"`
	CipherCombo         string `json:"cipherCombo"`
}

// NewVaultConfig returns the default configuration for a newly created
// vault: format 8, SIV_GCM, the standard shortening threshold, and a fresh
// random jti.
func NewVaultConfig() VaultConfig {
	return VaultConfig{
		Format:              SupportedFormat,
		ShorteningThreshold: DefaultShorteningThreshold,
		Jti:                 uuid.NewString(),
		CipherCombo:         CipherComboSivGcm,
	}
}

// Valid is called by jwt.ParseWithClaims as part of token validation.
func (c *VaultConfig) Valid() error {
	if c.Format != SupportedFormat {
		return fmt.Errorf("%w: vault format %d", ErrNotSupported, c.Format)
	}
	switch c.CipherCombo {
	case CipherComboSivGcm, CipherComboSivCtrMac:
	default:
		return fmt.Errorf("%w: cipher combo %q", ErrNotSupported, c.CipherCombo)
	}
	if c.ShorteningThreshold < MinShorteningThreshold || c.ShorteningThreshold > MaxShorteningThreshold {
		return fmt.Errorf("%w: shortening threshold %d outside [%d, %d]", ErrNotSupported, c.ShorteningThreshold, MinShorteningThreshold, MaxShorteningThreshold)
	}
	return nil
}

// Marshal signs the config as a JWT keyed by the vault's master key,
// exactly as required by the vault.cryptomator wire format.
func (c VaultConfig) Marshal(masterKey MasterKey) ([]byte, error) {
	kid := keyID("masterkeyfile:" + MasterKeyFileName)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &c)
	token.Header[configKeyIDTag] = string(kid)
	rawToken, err := token.SignedString(masterKey.jwtKey())
	if err != nil {
		return nil, err
	}
	return []byte(rawToken), nil
}

// UnmarshalVaultConfig parses and verifies the vault.cryptomator JWT.
// keyFunc resolves the "kid" header's URI (almost always
// "masterkey.cryptomator") to the MasterKey that should verify it; the
// caller is expected to have already unwrapped that key with the vault
// passphrase.
func UnmarshalVaultConfig(tokenBytes []byte, keyFunc func(masterKeyPath string) (*MasterKey, error)) (c VaultConfig, err error) {
	_, err = jwt.ParseWithClaims(string(tokenBytes), &c, func(token *jwt.Token) (any, error) {
		kidObj, ok := token.Header[configKeyIDTag]
		if !ok {
			return nil, fmt.Errorf("vault config jwt: missing %q header", configKeyIDTag)
		}
		kidStr, ok := kidObj.(string)
		if !ok {
			return nil, fmt.Errorf("vault config jwt: %q header is not a string", configKeyIDTag)
		}
		masterKey, err := keyFunc(keyID(kidStr).URI())
		if err != nil {
			return nil, err
		}
		return masterKey.jwtKey(), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return c, nil
}
