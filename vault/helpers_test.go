package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var cipherCombos = []string{CipherComboSivCtrMac, CipherComboSivGcm}

func drawCipherCombo(t *rapid.T) string {
	return rapid.SampledFrom(cipherCombos).Draw(t, "cipherCombo")
}

func fixedSizeByteArray(size int) *rapid.Generator[[]byte] {
	return rapid.SliceOfN(rapid.Byte(), size, size)
}

func drawMasterKey(t *rapid.T) MasterKey {
	encKey := fixedSizeByteArray(MasterEncryptKeySize).Draw(t, "encKey")
	macKey := fixedSizeByteArray(MasterMacKeySize).Draw(t, "macKey")
	return MasterKey{EncryptKey: encKey, MacKey: macKey}
}

func drawTestCryptor(t *rapid.T) *Cryptor {
	c, err := NewCryptor(drawMasterKey(t), drawCipherCombo(t))
	require.NoError(t, err, "creating cryptor")
	return &c
}
