package keystore

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gabapcia/powchain/internal/pkg/validator"
	"github.com/gabapcia/powchain/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeystore(t *testing.T, dir, passphrase string) *keystore {
	return New(dir, passphrase, WithArgon2(1, 1024, 1))
}

func TestKeystore_SaveWallet(t *testing.T) {
	t.Run("round trips the wallet", func(t *testing.T) {
		ks := newTestKeystore(t, t.TempDir(), "correct horse")
		w, err := wallet.Generate()
		require.NoError(t, err)

		require.NoError(t, ks.SaveWallet(t.Context(), "alice", w))

		loaded, err := ks.LoadWallet(t.Context(), "alice")
		require.NoError(t, err)
		assert.Equal(t, w.PrivateKey(), loaded.PrivateKey())
		assert.Equal(t, w.Address(), loaded.Address())
	})

	t.Run("file does not contain the private key", func(t *testing.T) {
		dir := t.TempDir()
		ks := newTestKeystore(t, dir, "correct horse")
		w, err := wallet.Generate()
		require.NoError(t, err)
		require.NoError(t, ks.SaveWallet(t.Context(), "alice", w))

		data, err := os.ReadFile(filepath.Join(dir, "alice.json"))
		require.NoError(t, err)
		assert.NotContains(t, string(data), hex.EncodeToString(w.PrivateKey()))
		assert.Contains(t, string(data), w.Address())

		info, err := os.Stat(filepath.Join(dir, "alice.json"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("does not overwrite", func(t *testing.T) {
		ks := newTestKeystore(t, t.TempDir(), "pw")
		w, err := wallet.Generate()
		require.NoError(t, err)

		require.NoError(t, ks.SaveWallet(t.Context(), "alice", w))
		assert.ErrorIs(t, ks.SaveWallet(t.Context(), "alice", w), ErrWalletExists)
	})

	t.Run("rejects unusable key derivation cost", func(t *testing.T) {
		ks := New(t.TempDir(), "pw", WithArgon2(0, 1024, 1))
		w, err := wallet.Generate()
		require.NoError(t, err)

		assert.ErrorIs(t, ks.SaveWallet(t.Context(), "alice", w), validator.ErrValidationFailed)
	})

	t.Run("rejects path-like names", func(t *testing.T) {
		ks := newTestKeystore(t, t.TempDir(), "pw")
		w, err := wallet.Generate()
		require.NoError(t, err)

		for _, name := range []string{"", "../alice", "a/b", ".."} {
			assert.ErrorIs(t, ks.SaveWallet(t.Context(), name, w), ErrInvalidName, name)
		}
	})
}

func TestKeystore_LoadWallet(t *testing.T) {
	t.Run("wrong passphrase", func(t *testing.T) {
		dir := t.TempDir()
		w, err := wallet.Generate()
		require.NoError(t, err)
		require.NoError(t, newTestKeystore(t, dir, "right").SaveWallet(t.Context(), "alice", w))

		_, err = newTestKeystore(t, dir, "wrong").LoadWallet(t.Context(), "alice")
		assert.ErrorIs(t, err, ErrWrongPassphrase)
	})

	t.Run("missing wallet", func(t *testing.T) {
		_, err := newTestKeystore(t, t.TempDir(), "pw").LoadWallet(t.Context(), "nobody")
		assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
	})

	t.Run("garbage file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.json"), []byte("{"), 0o600))

		_, err := newTestKeystore(t, dir, "pw").LoadWallet(t.Context(), "alice")
		assert.ErrorIs(t, err, ErrCorruptWallet)
	})

	t.Run("out of range key derivation parameters", func(t *testing.T) {
		cases := map[string]func(file map[string]any){
			"zero threads": func(file map[string]any) { file["kdf"].(map[string]any)["threads"] = 0 },
			"zero time":    func(file map[string]any) { file["kdf"].(map[string]any)["time"] = 0 },
			"huge time":    func(file map[string]any) { file["kdf"].(map[string]any)["time"] = 1 << 20 },
			"huge memory":  func(file map[string]any) { file["kdf"].(map[string]any)["memory"] = uint32(1<<32 - 1) },
			"unknown kdf":  func(file map[string]any) { file["kdf"].(map[string]any)["name"] = "scrypt" },
			"short salt":   func(file map[string]any) { file["kdf"].(map[string]any)["salt"] = "00" },
			"short nonce":  func(file map[string]any) { file["nonce"] = "00" },
			"new version":  func(file map[string]any) { file["version"] = 2 },
		}

		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				dir := t.TempDir()
				ks := newTestKeystore(t, dir, "pw")
				w, err := wallet.Generate()
				require.NoError(t, err)
				require.NoError(t, ks.SaveWallet(t.Context(), "alice", w))

				path := filepath.Join(dir, "alice.json")
				data, err := os.ReadFile(path)
				require.NoError(t, err)

				var file map[string]any
				require.NoError(t, json.Unmarshal(data, &file))
				mutate(file)

				data, err = json.Marshal(file)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(path, data, 0o600))

				_, err = ks.LoadWallet(t.Context(), "alice")
				assert.ErrorIs(t, err, ErrCorruptWallet)
				assert.ErrorIs(t, err, validator.ErrValidationFailed)
			})
		}
	})
}
