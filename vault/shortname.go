package vault

import (
	"crypto/sha1"
	"encoding/base64"
)

// shortNameExtension is the suffix applied to a shortened ciphertext name.
const shortNameExtension = ".c9s"

// NameFileName is the file inside a .c9s container that holds the full,
// un-shortened ciphertext name, stored as is (it is already the encrypted
// name, so it is not encrypted a second time).
const NameFileName = "name.c9s"

// ShortenName decides whether a ciphertext name (".c9r"-suffixed, the
// output of Cryptor.EncryptFilename plus its type suffix) needs shortening
// under threshold, and if so returns its shortened ciphertext form.
//
// A shortened name is SHA-1(fullCiphertextName), base64url-encoded, with a
// ".c9s" suffix in place of the original suffix. The full name is not
// recoverable from the hash; callers that shorten a name must also write it
// into NameFileName inside the resulting directory so it can be read back.
func ShortenName(fullCiphertextName string, threshold int) (shortened string, isShortened bool) {
	if len(fullCiphertextName) <= threshold {
		return fullCiphertextName, false
	}
	sum := sha1.Sum([]byte(fullCiphertextName))
	return base64.URLEncoding.EncodeToString(sum[:]) + shortNameExtension, true
}

// IsShortenedName reports whether a ciphertext path component is a .c9s
// shortening container rather than a direct .c9r entry.
func IsShortenedName(name string) bool {
	return len(name) > len(shortNameExtension) && name[len(name)-len(shortNameExtension):] == shortNameExtension
}
