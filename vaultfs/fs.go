package vaultfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/cryptovault/cryptovault/vault"
)

// Entry is a single decrypted directory entry as returned by Fs.List: the
// plaintext name plus enough to resolve it further (its storage path and,
// for directories, its own directory id).
type Entry struct {
	Name      string
	Kind      DirEntryKind
	Size      int64
	storePath string // ciphertext path of the .c9r/.c9s container
	dirID     string // only set for Kind == KindDir
}

// Fs is the L5 vault-operations surface: plaintext path resolution and
// file/directory/symlink CRUD over an unlocked vault's Storage.
type Fs struct {
	storage Storage
	cryptor vault.Cryptor
	config  vault.VaultConfig
	names   *nameCache
}

// rootDirID is the fixed, empty-string directory id Cryptomator uses for
// the vault root; every other directory gets a fresh random UUID.
const rootDirID = ""

// createAtomic opens a temp sibling of path for writing and, on a
// successful Close, renames it into place; on any error the temp file is
// removed and path is left untouched. Content files are AEAD chunk
// streams keyed by chunk index and the header nonce, so a reader must
// never observe a partially written stream -- the same atomicity
// Storage.WriteFile already gives metadata documents, extended here to
// the streaming writer content/symlink writes go through.
func createAtomic(ctx context.Context, storage Storage, path string) (io.WriteCloser, error) {
	tempPath := path + ".tmp-" + uuid.NewString()
	w, err := storage.Create(ctx, tempPath)
	if err != nil {
		return nil, err
	}
	return &atomicWriteCloser{ctx: ctx, storage: storage, tempPath: tempPath, finalPath: path, w: w}, nil
}

type atomicWriteCloser struct {
	ctx       context.Context
	storage   Storage
	tempPath  string
	finalPath string
	w         io.WriteCloser
	closed    bool
}

func (a *atomicWriteCloser) Write(p []byte) (int, error) { return a.w.Write(p) }

func (a *atomicWriteCloser) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.w.Close(); err != nil {
		_ = a.storage.Remove(a.ctx, a.tempPath)
		return err
	}
	if err := a.storage.Rename(a.ctx, a.tempPath, a.finalPath); err != nil {
		_ = a.storage.Remove(a.ctx, a.tempPath)
		return err
	}
	return nil
}

// abandon discards the temp file without renaming, used when the writer
// errors before Close is ever reached.
func (a *atomicWriteCloser) abandon() {
	if a.closed {
		return
	}
	a.closed = true
	_ = a.w.Close()
	_ = a.storage.Remove(a.ctx, a.tempPath)
}

// Open unlocks an existing vault rooted at storage using passphrase,
// reading and verifying vault.cryptomator and masterkey.cryptomator.
func Open(ctx context.Context, storage Storage, passphrase string) (*Fs, error) {
	configData, err := readWholeFile(ctx, storage, vault.ConfigFileName)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", vault.ConfigFileName, err)
	}

	var masterKey vault.MasterKey
	config, err := vault.UnmarshalVaultConfig(configData, func(masterKeyPath string) (*vault.MasterKey, error) {
		keyData, err := readWholeFile(ctx, storage, masterKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", masterKeyPath, err)
		}
		masterKey, err = vault.UnmarshalMasterKey(bytes.NewReader(keyData), passphrase)
		if err != nil {
			return nil, err
		}
		return &masterKey, nil
	})
	if err != nil {
		return nil, err
	}

	cryptor, err := vault.NewCryptor(masterKey, config.CipherCombo)
	if err != nil {
		return nil, err
	}

	return &Fs{storage: storage, cryptor: cryptor, config: config, names: newNameCache()}, nil
}

// Create initializes a brand-new, empty vault at storage.
func Create(ctx context.Context, storage Storage, passphrase string) (*Fs, error) {
	masterKey, err := vault.NewMasterKey()
	if err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}

	var keyBuf bytes.Buffer
	if err := masterKey.Marshal(&keyBuf, passphrase); err != nil {
		return nil, fmt.Errorf("wrapping master key: %w", err)
	}
	if err := storage.WriteFile(ctx, vault.MasterKeyFileName, keyBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("writing %s: %w", vault.MasterKeyFileName, err)
	}

	config := vault.NewVaultConfig()
	configBytes, err := config.Marshal(masterKey)
	if err != nil {
		return nil, fmt.Errorf("signing vault config: %w", err)
	}
	if err := storage.WriteFile(ctx, vault.ConfigFileName, configBytes); err != nil {
		return nil, fmt.Errorf("writing %s: %w", vault.ConfigFileName, err)
	}

	cryptor, err := vault.NewCryptor(masterKey, config.CipherCombo)
	if err != nil {
		return nil, err
	}

	f := &Fs{storage: storage, cryptor: cryptor, config: config, names: newNameCache()}

	rootPath, err := dirIDStoragePath(&f.cryptor, rootDirID)
	if err != nil {
		return nil, err
	}
	if err := storage.MkdirAll(ctx, rootPath); err != nil {
		return nil, fmt.Errorf("creating vault root: %w", err)
	}
	return f, nil
}

func readWholeFile(ctx context.Context, storage Storage, path string) ([]byte, error) {
	r, err := storage.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// resolved is what path resolution produces for a single plaintext path:
// the directory id and ciphertext listing path of its parent, plus (if it
// exists) its own container path and, for directories, its own dir id.
type resolved struct {
	parentDirID   string
	parentListing string
	name          string // leaf plaintext name ("" for the root)

	exists    bool
	kind      DirEntryKind
	storePath string // the .c9r/.c9s container for this entry
	dirID     string // set when kind == KindDir
	size      int64  // ciphertext size, set when kind == KindFile
}

// isHostMetadataName reports whether name is a host filesystem sidecar the
// vault should hide from listings and never consider when checking whether
// a directory is empty (Finder's .DS_Store, AppleDouble "._*" files).
func isHostMetadataName(name string) bool {
	return name == ".DS_Store" || strings.HasPrefix(name, "._")
}

// resolve walks a slash-separated plaintext path from the vault root,
// decrypting one directory level at a time.
func (f *Fs) resolve(ctx context.Context, p string) (resolved, error) {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" || p == "." {
		rootListing, err := dirIDStoragePath(&f.cryptor, rootDirID)
		if err != nil {
			return resolved{}, err
		}
		return resolved{
			parentDirID: rootDirID, parentListing: rootListing, name: "",
			exists: true, kind: KindDir, dirID: rootDirID, storePath: rootListing,
		}, nil
	}

	parts := strings.Split(p, "/")
	dirID := rootDirID
	listing, err := dirIDStoragePath(&f.cryptor, dirID)
	if err != nil {
		return resolved{}, err
	}

	for i, part := range parts {
		last := i == len(parts)-1
		entry, err := f.lookupChild(ctx, dirID, listing, part)
		if err != nil {
			return resolved{}, err
		}
		if !entry.exists {
			if !last {
				return resolved{}, vault.ErrNotFound
			}
			return resolved{parentDirID: dirID, parentListing: listing, name: part, exists: false}, nil
		}
		if last {
			entry.parentDirID = dirID
			entry.parentListing = listing
			entry.name = part
			return entry, nil
		}
		if entry.kind != KindDir {
			return resolved{}, vault.ErrNotDirectory
		}
		dirID = entry.dirID
		if listing, err = dirIDStoragePath(&f.cryptor, dirID); err != nil {
			return resolved{}, err
		}
	}
	return resolved{}, vault.ErrNotFound
}

// lookupChild finds one plaintext-named child of the directory identified
// by (dirID, listing), using the deterministic name cache to skip
// re-encrypting the name on repeated lookups.
func (f *Fs) lookupChild(ctx context.Context, dirID, listing, name string) (resolved, error) {
	fullName, ok := f.names.get(dirID, name)
	if !ok {
		enc, err := f.cryptor.EncryptFilename(name, dirID)
		if err != nil {
			return resolved{}, err
		}
		fullName = enc + fileSuffix
		f.names.put(dirID, name, fullName)
	}

	shortName, isShort := vault.ShortenName(fullName, f.config.ShorteningThreshold)
	candidate := shortName
	if !isShort {
		candidate = fullName
	}

	storePath := path.Join(listing, candidate)
	stat, err := f.storage.Stat(ctx, storePath)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return resolved{}, nil
		}
		return resolved{}, err
	}

	if isShort {
		return f.resolveShortened(ctx, storePath, stat)
	}
	return f.resolveDirect(ctx, storePath, stat)
}

func (f *Fs) resolveDirect(ctx context.Context, storePath string, stat RawDirEntry) (resolved, error) {
	if stat.Kind != KindDir {
		return resolved{exists: true, kind: KindFile, storePath: storePath, size: stat.Size}, nil
	}
	return f.resolveContainerDir(ctx, storePath)
}

func (f *Fs) resolveShortened(ctx context.Context, containerPath string, stat RawDirEntry) (resolved, error) {
	return f.resolveContainerDir(ctx, containerPath)
}

// resolveContainerDir inspects a .c9r/.c9s container directory to tell a
// real subdirectory (holding dir.c9r) apart from a symlink (holding
// symlink.c9r) -- both are directories at the storage level, the sentinel
// file inside is what distinguishes them.
func (f *Fs) resolveContainerDir(ctx context.Context, containerPath string) (resolved, error) {
	entries, err := f.storage.List(ctx, containerPath)
	if err != nil {
		return resolved{}, err
	}
	for _, e := range entries {
		switch e.CiphertextName {
		case dirPointerFile:
			dirID, err := f.readDirPointer(ctx, containerPath)
			if err != nil {
				return resolved{}, err
			}
			return resolved{exists: true, kind: KindDir, storePath: containerPath, dirID: dirID}, nil
		case symlinkFile:
			return resolved{exists: true, kind: KindSymlink, storePath: containerPath}, nil
		case contentsFile:
			return resolved{exists: true, kind: KindFile, storePath: containerPath}, nil
		}
	}
	return resolved{exists: true, kind: KindFile, storePath: containerPath}, nil
}

func (f *Fs) readDirPointer(ctx context.Context, containerPath string) (string, error) {
	data, err := readWholeFile(ctx, f.storage, path.Join(containerPath, dirPointerFile))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns the decrypted entries of a plaintext directory path.
func (f *Fs) List(ctx context.Context, dirPath string) ([]Entry, error) {
	r, err := f.resolve(ctx, dirPath)
	if err != nil {
		return nil, err
	}
	if !r.exists {
		return nil, vault.ErrNotFound
	}
	if r.kind != KindDir {
		return nil, vault.ErrNotDirectory
	}

	listing, err := dirIDStoragePath(&f.cryptor, r.dirID)
	if err != nil {
		return nil, err
	}
	raw, err := f.storage.List(ctx, listing)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(raw))
	for _, re := range raw {
		if isHostMetadataName(re.CiphertextName) {
			continue
		}
		entry, ok, err := f.decodeEntry(ctx, r.dirID, listing, re)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *Fs) decodeEntry(ctx context.Context, dirID, listing string, re RawDirEntry) (Entry, bool, error) {
	storePath := path.Join(listing, re.CiphertextName)

	fullName := re.CiphertextName
	if vault.IsShortenedName(re.CiphertextName) {
		data, err := readWholeFile(ctx, f.storage, path.Join(storePath, vault.NameFileName))
		if err != nil {
			return Entry{}, false, err
		}
		fullName = string(data)
		resolvedEntry, err := f.resolveShortened(ctx, storePath, re)
		if err != nil {
			return Entry{}, false, err
		}
		name, err := f.decryptAndCacheName(dirID, fullName)
		if err != nil {
			return Entry{}, false, err
		}
		size := int64(0)
		if resolvedEntry.kind == KindFile {
			if stat, err := f.storage.Stat(ctx, path.Join(storePath, contentsFile)); err == nil {
				size = f.cryptor.DecryptedFileSize(stat.Size)
			}
		}
		return Entry{Name: name, Kind: resolvedEntry.kind, storePath: storePath, dirID: resolvedEntry.dirID, Size: size}, true, nil
	}

	name, err := f.decryptAndCacheName(dirID, fullName)
	if err != nil {
		return Entry{}, false, err
	}

	if re.Kind == KindDir {
		container, err := f.resolveContainerDir(ctx, storePath)
		if err != nil {
			return Entry{}, false, err
		}
		return Entry{Name: name, Kind: container.kind, storePath: storePath, dirID: container.dirID}, true, nil
	}
	return Entry{Name: name, Kind: KindFile, storePath: storePath, Size: f.cryptor.DecryptedFileSize(re.Size)}, true, nil
}

func (f *Fs) decryptAndCacheName(dirID, fullCiphertextName string) (string, error) {
	enc := strings.TrimSuffix(fullCiphertextName, fileSuffix)
	name, err := f.cryptor.DecryptFilename(enc, dirID)
	if err != nil {
		return "", err
	}
	f.names.put(dirID, name, fullCiphertextName)
	return name, nil
}

// Mkdir creates a new, empty directory at a plaintext path. The parent
// directory must already exist.
func (f *Fs) Mkdir(ctx context.Context, dirPath string) error {
	r, err := f.resolve(ctx, dirPath)
	if err != nil {
		return err
	}
	if r.exists {
		return vault.ErrExist
	}

	component, isShort, fullName, err := encodeName(&f.cryptor, r.parentDirID, r.name, f.config.ShorteningThreshold)
	if err != nil {
		return err
	}
	containerPath := path.Join(r.parentListing, component)

	newDirID := uuid.NewString()
	newListing, err := dirIDStoragePath(&f.cryptor, newDirID)
	if err != nil {
		return err
	}

	if isShort {
		if err := f.storage.MkdirAll(ctx, containerPath); err != nil {
			return err
		}
		if err := f.storage.WriteFile(ctx, path.Join(containerPath, vault.NameFileName), []byte(fullName)); err != nil {
			return err
		}
	} else if err := f.storage.MkdirAll(ctx, containerPath); err != nil {
		return err
	}

	if err := f.storage.MkdirAll(ctx, newListing); err != nil {
		return err
	}
	// Write the dirid backup inside the new directory's own listing
	// before linking it from the parent, so a crash between the two
	// leaves an orphaned (recoverable) directory rather than a dangling
	// pointer with no backing listing.
	if err := f.storage.WriteFile(ctx, path.Join(newListing, dirIDBackupFile), []byte(newDirID)); err != nil {
		return err
	}
	if err := f.storage.WriteFile(ctx, path.Join(containerPath, dirPointerFile), []byte(newDirID)); err != nil {
		return err
	}

	f.names.put(r.parentDirID, r.name, fullName)
	return nil
}

// Rmdir removes an empty directory at a plaintext path.
func (f *Fs) Rmdir(ctx context.Context, dirPath string) error {
	r, err := f.resolve(ctx, dirPath)
	if err != nil {
		return err
	}
	if !r.exists {
		return vault.ErrNotFound
	}
	if r.kind != KindDir {
		return vault.ErrNotDirectory
	}
	if r.dirID == rootDirID {
		return fmt.Errorf("%w: cannot remove vault root", vault.ErrNotSupported)
	}

	ownListing, err := dirIDStoragePath(&f.cryptor, r.dirID)
	if err != nil {
		return err
	}

	children, err := f.storage.List(ctx, ownListing)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.CiphertextName != dirIDBackupFile && !isHostMetadataName(c.CiphertextName) {
			return vault.ErrNotEmpty
		}
	}

	// Remove the directory's own backing listing (and its dirid backup)
	// before unlinking the parent's pointer to it, so a crash between the
	// two steps leaves a parent entry whose listing is already gone rather
	// than an unreachable listing with no parent entry.
	if err := f.storage.RemoveAll(ctx, ownListing); err != nil {
		return err
	}
	if err := f.storage.RemoveAll(ctx, r.storePath); err != nil {
		return err
	}

	f.names.invalidate(r.parentDirID, r.name)
	f.names.invalidateDir(r.dirID)
	return nil
}

// Stat returns metadata for a plaintext path without decrypting content.
func (f *Fs) Stat(ctx context.Context, p string) (Entry, error) {
	r, err := f.resolve(ctx, p)
	if err != nil {
		return Entry{}, err
	}
	if !r.exists {
		return Entry{}, vault.ErrNotFound
	}
	size := int64(0)
	if r.kind == KindFile {
		contentPath := r.storePath
		if vault.IsShortenedName(path.Base(r.storePath)) {
			contentPath = path.Join(r.storePath, contentsFile)
		}
		stat, err := f.storage.Stat(ctx, contentPath)
		if err == nil {
			size = f.cryptor.DecryptedFileSize(stat.Size)
		}
	}
	return Entry{Name: r.name, Kind: r.kind, storePath: r.storePath, dirID: r.dirID, Size: size}, nil
}

// ReadFile opens a plaintext file for streaming decrypted reads from the
// start.
func (f *Fs) ReadFile(ctx context.Context, p string) (io.ReadCloser, error) {
	r, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if !r.exists {
		return nil, vault.ErrNotFound
	}
	if r.kind != KindFile {
		return nil, vault.ErrIsDirectory
	}

	contentPath := r.storePath
	if vault.IsShortenedName(path.Base(r.storePath)) {
		contentPath = path.Join(r.storePath, contentsFile)
	}

	raw, err := f.storage.Open(ctx, contentPath)
	if err != nil {
		return nil, err
	}
	cr, err := f.cryptor.NewReader(raw)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &readCloser{Reader: cr, closer: raw}, nil
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error { return r.closer.Close() }

// WriteFile writes the full contents of a plaintext file at p, creating it
// if necessary.
func (f *Fs) WriteFile(ctx context.Context, p string, content io.Reader) error {
	r, err := f.resolve(ctx, p)
	if err != nil {
		return err
	}
	if r.exists && r.kind == KindDir {
		return vault.ErrIsDirectory
	}

	var containerPath, contentPath string
	if !r.exists {
		component, isShort, fullName, err := encodeName(&f.cryptor, r.parentDirID, r.name, f.config.ShorteningThreshold)
		if err != nil {
			return err
		}
		containerPath = path.Join(r.parentListing, component)
		if isShort {
			if err := f.storage.MkdirAll(ctx, containerPath); err != nil {
				return err
			}
			if err := f.storage.WriteFile(ctx, path.Join(containerPath, vault.NameFileName), []byte(fullName)); err != nil {
				return err
			}
			contentPath = path.Join(containerPath, contentsFile)
		} else {
			contentPath = containerPath
		}
		f.names.put(r.parentDirID, r.name, fullName)
	} else {
		contentPath = r.storePath
		if vault.IsShortenedName(path.Base(r.storePath)) {
			contentPath = path.Join(r.storePath, contentsFile)
		}
	}

	dst, err := createAtomic(ctx, f.storage, contentPath)
	if err != nil {
		return err
	}
	aw := dst.(*atomicWriteCloser)
	w, err := f.cryptor.NewWriter(dst)
	if err != nil {
		aw.abandon()
		return err
	}
	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		aw.abandon()
		return err
	}
	if err := w.Close(); err != nil {
		aw.abandon()
		return err
	}
	return dst.Close()
}

// Remove deletes a plaintext file. It refuses to remove directories; use
// Rmdir for those.
func (f *Fs) Remove(ctx context.Context, p string) error {
	r, err := f.resolve(ctx, p)
	if err != nil {
		return err
	}
	if !r.exists {
		return vault.ErrNotFound
	}
	if r.kind == KindDir {
		return vault.ErrIsDirectory
	}
	if err := f.storage.RemoveAll(ctx, r.storePath); err != nil {
		return err
	}
	f.names.invalidate(r.parentDirID, r.name)
	return nil
}

// Rename moves a plaintext path to another plaintext path. Per the vault
// format, renaming never touches file or directory contents -- only the
// parent-level .c9r/.c9s container moves, which is why this is cheap even
// for large directory subtrees.
func (f *Fs) Rename(ctx context.Context, oldPath, newPath string) error {
	if isWithinSubtree(oldPath, newPath) {
		return fmt.Errorf("%w: cannot move %q into its own subtree %q", vault.ErrInvalidArgument, newPath, oldPath)
	}

	src, err := f.resolve(ctx, oldPath)
	if err != nil {
		return err
	}
	if !src.exists {
		return vault.ErrNotFound
	}
	dst, err := f.resolve(ctx, newPath)
	if err != nil {
		return err
	}
	if dst.exists {
		return vault.ErrExist
	}

	component, isShort, fullName, err := encodeName(&f.cryptor, dst.parentDirID, dst.name, f.config.ShorteningThreshold)
	if err != nil {
		return err
	}
	dstContainerPath := path.Join(dst.parentListing, component)

	if err := f.storage.Rename(ctx, src.storePath, dstContainerPath); err != nil {
		return err
	}
	if isShort {
		if err := f.storage.WriteFile(ctx, path.Join(dstContainerPath, vault.NameFileName), []byte(fullName)); err != nil {
			return err
		}
	}

	f.names.invalidate(src.parentDirID, src.name)
	f.names.put(dst.parentDirID, dst.name, fullName)
	return nil
}

// Symlink creates a new symlink at p pointing at target. The target string
// is stored the same way a file's content is: header plus encrypted
// chunks, so its length and bytes are confidential like any other content.
func (f *Fs) Symlink(ctx context.Context, p, target string) error {
	r, err := f.resolve(ctx, p)
	if err != nil {
		return err
	}
	if r.exists {
		return vault.ErrExist
	}

	component, isShort, fullName, err := encodeName(&f.cryptor, r.parentDirID, r.name, f.config.ShorteningThreshold)
	if err != nil {
		return err
	}
	containerPath := path.Join(r.parentListing, component)

	if err := f.storage.MkdirAll(ctx, containerPath); err != nil {
		return err
	}
	if isShort {
		if err := f.storage.WriteFile(ctx, path.Join(containerPath, vault.NameFileName), []byte(fullName)); err != nil {
			return err
		}
	}

	dst, err := createAtomic(ctx, f.storage, path.Join(containerPath, symlinkFile))
	if err != nil {
		return err
	}
	atomicDst := dst.(*atomicWriteCloser)
	w, err := f.cryptor.NewWriter(dst)
	if err != nil {
		atomicDst.abandon()
		return err
	}
	if _, err := io.Copy(w, strings.NewReader(target)); err != nil {
		_ = w.Close()
		atomicDst.abandon()
		return err
	}
	if err := w.Close(); err != nil {
		atomicDst.abandon()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	f.names.put(r.parentDirID, r.name, fullName)
	return nil
}

// Readlink reads the target of a symlink at p.
func (f *Fs) Readlink(ctx context.Context, p string) (string, error) {
	r, err := f.resolve(ctx, p)
	if err != nil {
		return "", err
	}
	if !r.exists {
		return "", vault.ErrNotFound
	}
	if r.kind != KindSymlink {
		return "", fmt.Errorf("%w: not a symlink", vault.ErrNotSupported)
	}

	raw, err := f.storage.Open(ctx, path.Join(r.storePath, symlinkFile))
	if err != nil {
		return "", err
	}
	defer raw.Close()

	cr, err := f.cryptor.NewReader(raw)
	if err != nil {
		return "", err
	}
	target, err := io.ReadAll(cr)
	if err != nil {
		return "", err
	}
	return string(target), nil
}
