// Package keys persists the router's long-term key material so a restarted
// router keeps its identity hash and intro key.
package keys

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-i2p/common/base32"
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/crypto/dsa"
	"github.com/go-i2p/go-ssu/lib/crypto/ecdsa"
	"github.com/go-i2p/go-ssu/lib/crypto/ed25519"
	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// DefaultName is the key file written inside the router's working dir.
const DefaultName = "router.keys"

var (
	ErrKeyMismatch     = errors.New("keys: signing key does not match identity")
	ErrTruncatedKeys   = errors.New("keys: key file truncated")
	ErrUnsupportedType = errors.New("keys: unsupported signing key type")
)

// KeyStore is something that can save its keys.
type KeyStore interface {
	KeyID() string
	StoreKeys() error
}

var _ KeyStore = (*RouterKeystore)(nil)

// RouterKeystore holds the router identity, its signing key and the intro
// key. On disk the file is
//
//	identity ‖ intro key (32) ‖ signing private key
type RouterKeystore struct {
	dir      string
	name     string
	identity *router_identity.PrivateIdentity
	introKey [ssu.KeySize]byte
}

// LoadOrCreate reads dir/name, or generates fresh keys of sigType when the
// file does not exist. Fresh keys are not written until StoreKeys. An empty
// dir always generates and never touches the disk.
func LoadOrCreate(dir, name string, sigType int) (*RouterKeystore, error) {
	if name == "" {
		name = DefaultName
	}
	ks := &RouterKeystore{dir: dir, name: name}
	if dir != "" {
		loaded, err := ks.load()
		if err != nil {
			return nil, err
		}
		if loaded {
			return ks, nil
		}
	}

	var err error
	ks.identity, err = router_identity.GeneratePrivateIdentity(sigType)
	if err != nil {
		return nil, err
	}
	if _, err := rand.Read(ks.introKey[:]); err != nil {
		return nil, oops.Wrapf(err, "intro key")
	}
	log.WithFields(logger.Fields{
		"at":             "LoadOrCreate",
		"key_id":         ks.KeyID(),
		"signature_type": sigType,
	}).Debug("generated router keys")
	return ks, nil
}

func (ks *RouterKeystore) load() (bool, error) {
	path := ks.path()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, oops.Wrapf(err, "reading %s", path)
	}
	if err := ks.decode(raw); err != nil {
		return false, oops.Wrapf(err, "loading %s", path)
	}
	log.WithFields(logger.Fields{
		"at":     "(RouterKeystore) load",
		"path":   path,
		"key_id": ks.KeyID(),
	}).Info("loaded router keys")
	return true, nil
}

func (ks *RouterKeystore) path() string {
	return filepath.Join(ks.dir, ks.name)
}

func (ks *RouterKeystore) Identity() *router_identity.PrivateIdentity { return ks.identity }
func (ks *RouterKeystore) IntroKey() [ssu.KeySize]byte                { return ks.introKey }

// KeyID is the first 16 base32 characters of the identity hash.
func (ks *RouterKeystore) KeyID() string {
	hash := ks.identity.Identity.Hash()
	return base32.EncodeToString(hash[:])[:16]
}

// StoreKeys writes the key file with owner-only permissions.
func (ks *RouterKeystore) StoreKeys() error {
	if ks.dir == "" {
		return nil
	}
	if err := os.MkdirAll(ks.dir, 0o700); err != nil {
		return oops.Wrapf(err, "creating %s", ks.dir)
	}
	privBytes, err := signingKeyBytes(ks.identity.SigningKey)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.Write(ks.identity.Identity.Bytes())
	buf.Write(ks.introKey[:])
	buf.Write(privBytes)

	path := ks.path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return oops.Wrapf(err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return oops.Wrapf(err, "renaming %s", tmp)
	}
	log.WithField("path", path).Info("stored router keys")
	return nil
}

func (ks *RouterKeystore) decode(raw []byte) error {
	ri, rest, err := router_identity.ReadRouterIdentity(raw)
	if err != nil {
		return err
	}
	if len(rest) < ssu.KeySize {
		return ErrTruncatedKeys
	}
	copy(ks.introKey[:], rest[:ssu.KeySize])
	priv, err := parseSigningKey(ri.SignatureType(), rest[ssu.KeySize:])
	if err != nil {
		return err
	}

	pub, err := priv.Public()
	if err != nil {
		return oops.Wrapf(err, "deriving public key")
	}
	want, err := ri.SigningPublicKey()
	if err != nil {
		return err
	}
	if !bytes.Equal(pub.Bytes(), want.Bytes()) {
		return ErrKeyMismatch
	}
	ks.identity = &router_identity.PrivateIdentity{Identity: ri, SigningKey: priv}
	return nil
}

func signingKeyBytes(k types.SigningPrivateKey) ([]byte, error) {
	switch k := k.(type) {
	case dsa.DSAPrivateKey:
		return k[:], nil
	case ecdsa.ECP256PrivateKey:
		return k[:], nil
	case ecdsa.ECP384PrivateKey:
		return k[:], nil
	case ecdsa.ECP521PrivateKey:
		return k[:], nil
	case ed25519.Ed25519PrivateKey:
		return []byte(k), nil
	}
	return nil, oops.Wrapf(ErrUnsupportedType, "%T", k)
}

func parseSigningKey(sigType int, b []byte) (types.SigningPrivateKey, error) {
	need := map[int]int{
		router_identity.KEYCERT_SIGN_DSA_SHA1: len(dsa.DSAPrivateKey{}),
		router_identity.KEYCERT_SIGN_P256:     len(ecdsa.ECP256PrivateKey{}),
		router_identity.KEYCERT_SIGN_P384:     len(ecdsa.ECP384PrivateKey{}),
		router_identity.KEYCERT_SIGN_P521:     len(ecdsa.ECP521PrivateKey{}),
		router_identity.KEYCERT_SIGN_ED25519:  ed25519.PrivateKeySize,
	}
	size, ok := need[sigType]
	if !ok {
		return nil, oops.Wrapf(ErrUnsupportedType, "type %d", sigType)
	}
	if len(b) != size {
		return nil, oops.Wrapf(ErrTruncatedKeys, "signing key is %d bytes, want %d", len(b), size)
	}
	switch sigType {
	case router_identity.KEYCERT_SIGN_DSA_SHA1:
		var k dsa.DSAPrivateKey
		copy(k[:], b)
		return k, nil
	case router_identity.KEYCERT_SIGN_P256:
		var k ecdsa.ECP256PrivateKey
		copy(k[:], b)
		return k, nil
	case router_identity.KEYCERT_SIGN_P384:
		var k ecdsa.ECP384PrivateKey
		copy(k[:], b)
		return k, nil
	case router_identity.KEYCERT_SIGN_P521:
		var k ecdsa.ECP521PrivateKey
		copy(k[:], b)
		return k, nil
	default:
		return ed25519.Ed25519PrivateKey(bytes.Clone(b)), nil
	}
}
