package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"path"
	"sync"

	"github.com/pkg/errors"
)

// fileKey obscures config files at rest. It is not a secret.
var fileKey = []byte("Qe7#tLw2!zR9m@Vc4^Hs8&Nd1*Kp6%Jb")

// EncryptedFile is a file holding base64 text of AES-GCM sealed bytes, with the nonce prepended.
type EncryptedFile struct {
	Dirname  string
	FullPath string
	mu       sync.Mutex
}

func NewEncryptedFile(dirName string, filename string) *EncryptedFile {
	return &EncryptedFile{Dirname: dirName, FullPath: path.Join(dirName, filename)}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create cipher")
	}
	return cipher.NewGCM(b)
}

// Set seals text and replaces the contents of the file, creating its directory if required.
func (f *EncryptedFile) Set(text []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sealed, err := Encrypt(text, fileKey)
	if err != nil {
		return err
	}
	if !fileExists(f.FullPath) {
		if err := makeDir(f.Dirname); err != nil {
			return err
		}
	}
	return os.WriteFile(f.FullPath, []byte(base64.StdEncoding.EncodeToString(sealed)), 0600)
}

// Get returns the plain text of the file or FileNotFoundError.
func (f *EncryptedFile) Get() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !fileExists(f.FullPath) {
		return nil, FileNotFoundError{f.FullPath}
	}
	b64, err := os.ReadFile(f.FullPath)
	if err != nil {
		return nil, err
	}
	sealed, err := base64.StdEncoding.DecodeString(string(b64))
	if err != nil {
		return nil, errors.Wrapf(err, "config file %v is not base64", f.FullPath)
	}
	return Decrypt(sealed, fileKey)
}

// Encrypt returns a random nonce followed by text sealed with key.
func Encrypt(text []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize(), gcm.NonceSize()+len(text)+gcm.Overhead())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "unable to generate nonce")
	}
	return gcm.Seal(nonce, nonce, text, nil), nil
}

// Decrypt reverses Encrypt.
func Decrypt(sealed []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("encrypted text is too short")
	}
	b, err := gcm.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decrypt")
	}
	return b, nil
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
