// Package keystore implements the Seal/Unseal/List/GetPublicKey
// capability used to protect per-prefix connector secrets. The ondisk://
// backend stores keypairs as files under one root directory and seals
// with golang.org/x/crypto/nacl/box, which bundles the ECDH+AEAD steps
// into one keypair-based primitive. Env values of the form
// "secret://<path>" resolve through the sealed-secret file at that
// path.
package keystore

import (
	cryptorand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/crypto/nacl/box"
)

// SealedSecret is the persisted ciphertext envelope written by Seal and
// consumed by the sandbox launcher and secret:// env resolution.
type SealedSecret struct {
	ServerDomain   string `json:"server_domain"`
	ServerPubkeyID string `json:"server_pubkey_id"`
	EphemeralPub   string `json:"ephemeral_pubkey"`
	Nonce          string `json:"nonce"`
	Ciphertext     string `json:"ciphertext"`
}

// KeyStore seals and unseals secrets against a named keypair, lists key
// IDs, and fetches public keys.
type KeyStore interface {
	List() ([]string, error)
	GetPublicKey(id string) (string, error)
	CreateKeypair(id string) error
	Seal(domain, id, payload string) (*SealedSecret, error)
	Unseal(secret *SealedSecret) (string, error)

	// UnsealEnvMap resolves every "secret://<path>" value in env against
	// the sealed-secret file at that path, passing through all others
	// unchanged.
	UnsealEnvMap(env map[string]string) (map[string]string, error)

	// UnsealSecretsFor walks <prefix>/.secrets/<shortname>/ and returns a
	// map from sandbox-relative path to plaintext, for populating the
	// sandbox's /secret mount.
	UnsealSecretsFor(prefix, shortname string) (map[string]string, error)
}

var secretRefRe = regexp.MustCompile(`^secret://(.+)$`)

// OndiskKeyStore stores keypairs as base64-encoded files under a root
// directory: <root>/<id>.pub and <root>/<id>.key.
type OndiskKeyStore struct {
	root string
}

// NewOndisk constructs an OndiskKeyStore rooted at path, creating it if
// absent. Matches the "ondisk://<path>" URI the KEYSTORE env var
// selects.
func NewOndisk(path string) (*OndiskKeyStore, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating keystore root %s: %w", path, err)
	}
	return &OndiskKeyStore{root: path}, nil
}

func (k *OndiskKeyStore) pubPath(id string) string { return filepath.Join(k.root, id+".pub") }
func (k *OndiskKeyStore) keyPath(id string) string { return filepath.Join(k.root, id+".key") }

func (k *OndiskKeyStore) List() ([]string, error) {
	entries, err := os.ReadDir(k.root)
	if err != nil {
		return nil, fmt.Errorf("listing keystore %s: %w", k.root, err)
	}
	var ids []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".pub") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".pub"))
		}
	}
	return ids, nil
}

func (k *OndiskKeyStore) CreateKeypair(id string) error {
	pub, priv, err := box.GenerateKey(cryptorand.Reader)
	if err != nil {
		return fmt.Errorf("generating keypair %s: %w", id, err)
	}
	if err := os.WriteFile(k.pubPath(id), []byte(base64.StdEncoding.EncodeToString(pub[:])), 0o644); err != nil {
		return fmt.Errorf("writing public key %s: %w", id, err)
	}
	if err := os.WriteFile(k.keyPath(id), []byte(base64.StdEncoding.EncodeToString(priv[:])), 0o600); err != nil {
		return fmt.Errorf("writing private key %s: %w", id, err)
	}
	return nil
}

func (k *OndiskKeyStore) GetPublicKey(id string) (string, error) {
	b, err := os.ReadFile(k.pubPath(id))
	if err != nil {
		return "", fmt.Errorf("reading public key %s: %w", id, err)
	}
	return string(b), nil
}

func (k *OndiskKeyStore) getPrivateKey(id string) (*[32]byte, error) {
	b, err := os.ReadFile(k.keyPath(id))
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", id, err)
	}
	raw, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decoding private key %s: %w", id, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key %s has unexpected length %d", id, len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func decodePub(s string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("public key has unexpected length %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func (k *OndiskKeyStore) Seal(domain, id, payload string) (*SealedSecret, error) {
	pubB64, err := k.GetPublicKey(id)
	if err != nil {
		return nil, err
	}
	serverPub, err := decodePub(pubB64)
	if err != nil {
		return nil, err
	}
	ephPub, ephPriv, err := box.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral keypair: %w", err)
	}
	var nonce [24]byte
	if _, err := rngRead(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	ciphertext := box.Seal(nil, []byte(payload), &nonce, serverPub, ephPriv)
	return &SealedSecret{
		ServerDomain:   domain,
		ServerPubkeyID: id,
		EphemeralPub:   base64.StdEncoding.EncodeToString(ephPub[:]),
		Nonce:          base64.StdEncoding.EncodeToString(nonce[:]),
		Ciphertext:     base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

func (k *OndiskKeyStore) Unseal(secret *SealedSecret) (string, error) {
	priv, err := k.getPrivateKey(secret.ServerPubkeyID)
	if err != nil {
		return "", err
	}
	ephPub, err := decodePub(secret.EphemeralPub)
	if err != nil {
		return "", err
	}
	nonceRaw, err := base64.StdEncoding.DecodeString(secret.Nonce)
	if err != nil {
		return "", fmt.Errorf("decoding nonce: %w", err)
	}
	var nonce [24]byte
	copy(nonce[:], nonceRaw)
	ciphertext, err := base64.StdEncoding.DecodeString(secret.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	plaintext, ok := box.Open(nil, ciphertext, &nonce, ephPub, priv)
	if !ok {
		return "", fmt.Errorf("unseal failed: authentication mismatch")
	}
	return string(plaintext), nil
}

func (k *OndiskKeyStore) UnsealEnvMap(env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for key, value := range env {
		m := secretRefRe.FindStringSubmatch(value)
		if m == nil {
			out[key] = value
			continue
		}
		path := m[1]
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading sealed secret file %s: %w", path, err)
		}
		var seals []SealedSecret
		if err := json.Unmarshal(b, &seals); err != nil {
			return nil, fmt.Errorf("parsing sealed secret file %s: %w", path, err)
		}
		if len(seals) == 0 {
			return nil, fmt.Errorf("sealed secret file %s has no entries", path)
		}
		plaintext, err := k.Unseal(&seals[0])
		if err != nil {
			return nil, fmt.Errorf("unsealing %s: %w", path, err)
		}
		out[key] = plaintext
	}
	return out, nil
}

func (k *OndiskKeyStore) UnsealSecretsFor(prefix, shortname string) (map[string]string, error) {
	root := filepath.Join(prefix, ".secrets", shortname)
	out := map[string]string{}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return out, nil
	}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".sealed") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading sealed file %s: %w", path, err)
		}
		var seals []SealedSecret
		if err := json.Unmarshal(b, &seals); err != nil {
			return fmt.Errorf("parsing sealed file %s: %w", path, err)
		}
		if len(seals) == 0 {
			return nil
		}
		plaintext, err := k.Unseal(&seals[0])
		if err != nil {
			return fmt.Errorf("unsealing %s: %w", path, err)
		}
		rel, err := filepath.Rel(prefix, strings.TrimSuffix(path, ".sealed"))
		if err != nil {
			return err
		}
		out[rel] = plaintext
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rngRead is split out so tests can stub it; production uses crypto/rand.
var rngRead = cryptoRandRead

// FromURI resolves a KEYSTORE-style URI ("ondisk://<path>") to a
// concrete KeyStore.
func FromURI(uri string) (KeyStore, error) {
	const prefix = "ondisk://"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("unsupported keystore uri %q", uri)
	}
	return NewOndisk(strings.TrimPrefix(uri, prefix))
}
