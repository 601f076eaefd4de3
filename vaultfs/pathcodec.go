package vaultfs

import (
	"path"
	"strings"

	"github.com/cryptovault/cryptovault/vault"
)

const (
	dirsDirName     = "d"
	dirPointerFile  = "dir.c9r"
	dirIDBackupFile = "dirid.c9r"
	symlinkFile     = "symlink.c9r"
	contentsFile    = "contents.c9r"

	fileSuffix = ".c9r"
	dirSuffix  = ".c9r"
)

// dirIDStoragePath returns the ciphertext path of the directory that lists
// the contents of the plaintext directory identified by dirID: the dir-id
// hash split 2+30 characters, matching the on-disk layout every Cryptomator
// client reads.
func dirIDStoragePath(cryptor *vault.Cryptor, dirID string) (string, error) {
	hash, err := cryptor.EncryptDirID(dirID)
	if err != nil {
		return "", err
	}
	return path.Join(dirsDirName, hash[:2], hash[2:]), nil
}

// isWithinSubtree reports whether newPath is oldPath itself or lies inside
// the subtree rooted at oldPath, comparing cleaned, slash-separated
// plaintext paths so a move can be refused before any storage I/O.
func isWithinSubtree(oldPath, newPath string) bool {
	o := path.Clean("/" + oldPath)
	n := path.Clean("/" + newPath)
	if o == n {
		return true
	}
	prefix := o
	if prefix != "/" {
		prefix += "/"
	}
	return strings.HasPrefix(n, prefix)
}

// encodeName produces the ciphertext path component for a plaintext name
// inside a directory, applying .c9s shortening when the encrypted name
// with its type suffix would be longer than the vault's threshold.
func encodeName(cryptor *vault.Cryptor, dirID, name string, threshold int) (component string, shortened bool, fullName string, err error) {
	enc, err := cryptor.EncryptFilename(name, dirID)
	if err != nil {
		return "", false, "", err
	}
	full := enc + fileSuffix
	short, isShort := vault.ShortenName(full, threshold)
	return short, isShort, full, nil
}
