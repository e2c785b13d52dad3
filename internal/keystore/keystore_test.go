package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *OndiskKeyStore {
	t.Helper()
	ks, err := NewOndisk(filepath.Join(t.TempDir(), "keys"))
	require.NoError(t, err)
	require.NoError(t, ks.CreateKeypair("default"))
	return ks
}

func TestSealUnsealRoundTrip(t *testing.T) {
	ks := newStore(t)

	sealed, err := ks.Seal("example.com", "default", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "example.com", sealed.ServerDomain)
	require.NotEmpty(t, sealed.Ciphertext)

	plain, err := ks.Unseal(sealed)
	require.NoError(t, err)
	require.Equal(t, "hunter2", plain)
}

func TestUnsealRejectsTamperedCiphertext(t *testing.T) {
	ks := newStore(t)

	sealed, err := ks.Seal("example.com", "default", "hunter2")
	require.NoError(t, err)
	sealed.Ciphertext = sealed.Nonce // valid base64, wrong bytes

	_, err = ks.Unseal(sealed)
	require.Error(t, err)
}

func TestListReturnsCreatedKeyIDs(t *testing.T) {
	ks := newStore(t)
	require.NoError(t, ks.CreateKeypair("rotation"))

	ids, err := ks.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"default", "rotation"}, ids)
}

func writeSealedFile(t *testing.T, ks *OndiskKeyStore, path, payload string) {
	t.Helper()
	sealed, err := ks.Seal("example.com", "default", payload)
	require.NoError(t, err)
	body, err := json.Marshal([]*SealedSecret{sealed})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, body, 0o600))
}

func TestUnsealEnvMapResolvesSecretRefs(t *testing.T) {
	ks := newStore(t)
	dir := t.TempDir()
	sealedPath := filepath.Join(dir, "token.sealed")
	writeSealedFile(t, ks, sealedPath, "s3cr3t")

	out, err := ks.UnsealEnvMap(map[string]string{
		"PLAIN": "visible",
		"TOKEN": "secret://" + sealedPath,
	})
	require.NoError(t, err)
	require.Equal(t, "visible", out["PLAIN"])
	require.Equal(t, "s3cr3t", out["TOKEN"])
}

func TestUnsealSecretsForWalksPrefixTree(t *testing.T) {
	ks := newStore(t)
	prefix := t.TempDir()
	writeSealedFile(t, ks, filepath.Join(prefix, ".secrets", "aws", "credentials.sealed"), "aki")
	writeSealedFile(t, ks, filepath.Join(prefix, ".secrets", "aws", "deep", "extra.sealed"), "nested")

	out, err := ks.UnsealSecretsFor(prefix, "aws")
	require.NoError(t, err)
	require.Equal(t, "aki", out[filepath.Join(".secrets", "aws", "credentials")])
	require.Equal(t, "nested", out[filepath.Join(".secrets", "aws", "deep", "extra")])
}

func TestUnsealSecretsForMissingDirIsEmpty(t *testing.T) {
	ks := newStore(t)

	out, err := ks.UnsealSecretsFor(t.TempDir(), "aws")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFromURI(t *testing.T) {
	dir := t.TempDir()
	ks, err := FromURI("ondisk://" + dir)
	require.NoError(t, err)
	require.NotNil(t, ks)

	_, err = FromURI("vault://somewhere")
	require.Error(t, err)
}
