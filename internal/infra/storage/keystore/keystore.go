// Package keystore keeps wallets as passphrase-encrypted JSON files, one per
// name. The private key is sealed with NaCl secretbox under a key derived by
// Argon2id from the passphrase and a random salt.
package keystore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabapcia/powchain/internal/pkg/types"
	"github.com/gabapcia/powchain/internal/pkg/validator"
	"github.com/gabapcia/powchain/internal/wallet"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	fileVersion = 1
	kdfName     = "argon2id"
	keySize     = 32
	saltSize    = 16
	nonceSize   = 24
)

var (
	// ErrWrongPassphrase is returned when a wallet file cannot be opened with the given passphrase.
	ErrWrongPassphrase = errors.New("wrong passphrase")

	ErrWalletExists  = errors.New("wallet already exists")
	ErrInvalidName   = errors.New("invalid wallet name")
	ErrCorruptWallet = errors.New("corrupt wallet file")
)

// kdfParams bound the Argon2id cost a wallet file may ask for. Memory is in
// KiB and capped at 1 GiB.
type kdfParams struct {
	Name    string         `json:"name" validate:"eq=argon2id"`
	Salt    types.HexBytes `json:"salt" validate:"len=16"`
	Time    uint32         `json:"time" validate:"gte=1,lte=16"`
	Memory  uint32         `json:"memory" validate:"gte=8,lte=1048576"`
	Threads uint8          `json:"threads" validate:"gte=1"`
}

type walletFile struct {
	Version    int            `json:"version" validate:"eq=1"`
	Address    string         `json:"address" validate:"required"`
	KDF        kdfParams      `json:"kdf"`
	Nonce      types.HexBytes `json:"nonce" validate:"len=24"`
	Ciphertext types.HexBytes `json:"ciphertext" validate:"required"`
}

type keystore struct {
	dir        string
	passphrase []byte

	time    uint32
	memory  uint32
	threads uint8
}

var _ wallet.Storage = (*keystore)(nil)

func (k *keystore) path(name string) (string, error) {
	if err := validator.ValidateVar(name, "required,max=64,printascii"); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidName, err)
	}

	if filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return filepath.Join(k.dir, name+".json"), nil
}

func deriveKey(passphrase []byte, p kdfParams) *[keySize]byte {
	var key [keySize]byte
	copy(key[:], argon2.IDKey(passphrase, p.Salt, p.Time, p.Memory, p.Threads, keySize))
	return &key
}

// SaveWallet writes w under name. Existing wallets are never overwritten.
func (k *keystore) SaveWallet(ctx context.Context, name string, w *wallet.Wallet) error {
	path, err := k.path(name)
	if err != nil {
		return err
	}

	params := kdfParams{
		Name:    kdfName,
		Salt:    make([]byte, saltSize),
		Time:    k.time,
		Memory:  k.memory,
		Threads: k.threads,
	}
	if _, err := rand.Read(params.Salt); err != nil {
		return err
	}

	if err := validator.Validate(params); err != nil {
		return fmt.Errorf("key derivation parameters: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	data, err := json.MarshalIndent(walletFile{
		Version:    fileVersion,
		Address:    w.Address(),
		KDF:        params,
		Nonce:      nonce[:],
		Ciphertext: secretbox.Seal(nil, w.PrivateKey(), &nonce, deriveKey(k.passphrase, params)),
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(k.dir, 0o700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrWalletExists, name)
		}
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadWallet decrypts the wallet stored under name.
func (k *keystore) LoadWallet(ctx context.Context, name string) (*wallet.Wallet, error) {
	path, err := k.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", wallet.ErrWalletNotFound, name)
		}
		return nil, err
	}

	var file walletFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptWallet, err)
	}

	if err := validator.Validate(file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptWallet, err)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], file.Nonce)

	privateKey, ok := secretbox.Open(nil, file.Ciphertext, &nonce, deriveKey(k.passphrase, file.KDF))
	if !ok {
		return nil, ErrWrongPassphrase
	}

	w, err := wallet.FromPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptWallet, err)
	}

	if w.Address() != file.Address {
		return nil, fmt.Errorf("%w: address does not match key", ErrCorruptWallet)
	}

	return w, nil
}

type config struct {
	time    uint32
	memory  uint32
	threads uint8
}

type Option func(*config)

// WithArgon2 overrides the key derivation cost. memory is in KiB.
func WithArgon2(time, memory uint32, threads uint8) Option {
	return func(c *config) {
		c.time = time
		c.memory = memory
		c.threads = threads
	}
}

// New returns a wallet store rooted at dir that seals keys with passphrase.
func New(dir, passphrase string, opts ...Option) *keystore {
	cfg := config{
		time:    1,
		memory:  64 * 1024,
		threads: 4,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &keystore{
		dir:        dir,
		passphrase: []byte(passphrase),
		time:       cfg.time,
		memory:     cfg.memory,
		threads:    cfg.threads,
	}
}
