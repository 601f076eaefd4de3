package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVaultConfigValidAcceptsDefault(t *testing.T) {
	c := NewVaultConfig()
	assert.NoError(t, c.Valid())
}

func TestVaultConfigValidRejectsUnsupportedFormat(t *testing.T) {
	c := NewVaultConfig()
	c.Format = 7
	assert.ErrorIs(t, c.Valid(), ErrNotSupported)
}

func TestVaultConfigValidRejectsUnsupportedCipherCombo(t *testing.T) {
	c := NewVaultConfig()
	c.CipherCombo = "SIV_NONSENSE"
	assert.ErrorIs(t, c.Valid(), ErrNotSupported)
}

func TestVaultConfigValidRejectsShorteningThresholdOutOfRange(t *testing.T) {
	tooLow := NewVaultConfig()
	tooLow.ShorteningThreshold = MinShorteningThreshold - 1
	assert.ErrorIs(t, tooLow.Valid(), ErrNotSupported)

	tooHigh := NewVaultConfig()
	tooHigh.ShorteningThreshold = MaxShorteningThreshold + 1
	assert.ErrorIs(t, tooHigh.Valid(), ErrNotSupported)
}

func TestVaultConfigValidAcceptsShorteningThresholdBounds(t *testing.T) {
	low := NewVaultConfig()
	low.ShorteningThreshold = MinShorteningThreshold
	assert.NoError(t, low.Valid())

	high := NewVaultConfig()
	high.ShorteningThreshold = MaxShorteningThreshold
	assert.NoError(t, high.Valid())
}
