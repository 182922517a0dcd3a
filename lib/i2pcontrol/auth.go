package i2pcontrol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/go-i2p/common/base64"
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// ErrInvalidPassword is returned by Authenticate for a wrong password.
var ErrInvalidPassword = errors.New("invalid password")

// AuthManager hands out and checks session tokens.
type AuthManager struct {
	mu       sync.RWMutex
	password string
	tokens   map[string]time.Time
	secret   []byte
	counter  uint64
	now      func() time.Time
}

// NewAuthManager creates a manager accepting password.
func NewAuthManager(password string) (*AuthManager, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, oops.Wrapf(err, "generating token secret")
	}
	return &AuthManager{
		password: password,
		tokens:   make(map[string]time.Time),
		secret:   secret,
		now:      time.Now,
	}, nil
}

// Authenticate returns a token valid for expiration if password matches.
func (am *AuthManager) Authenticate(password string, expiration time.Duration) (string, error) {
	am.mu.Lock()
	defer am.mu.Unlock()
	if !hmac.Equal([]byte(password), []byte(am.password)) {
		return "", ErrInvalidPassword
	}
	am.counter++
	token := am.generateToken(am.counter)
	am.tokens[token] = am.now().Add(expiration)
	log.WithField("at", "(AuthManager) Authenticate").Debug("generated authentication token")
	return token, nil
}

// ValidateToken reports whether token is known and unexpired. Expired
// tokens are dropped.
func (am *AuthManager) ValidateToken(token string) bool {
	am.mu.RLock()
	expiration, exists := am.tokens[token]
	am.mu.RUnlock()
	if !exists {
		return false
	}
	if am.now().After(expiration) {
		am.mu.Lock()
		delete(am.tokens, token)
		am.mu.Unlock()
		return false
	}
	return true
}

// CleanupExpiredTokens drops expired tokens and returns how many went.
func (am *AuthManager) CleanupExpiredTokens() int {
	now := am.now()
	removed := 0
	am.mu.Lock()
	for token, expiration := range am.tokens {
		if now.After(expiration) {
			delete(am.tokens, token)
			removed++
		}
	}
	am.mu.Unlock()
	if removed > 0 {
		log.WithFields(logger.Fields{
			"at":      "(AuthManager) CleanupExpiredTokens",
			"removed": removed,
		}).Debug("cleaned up expired tokens")
	}
	return removed
}

func (am *AuthManager) TokenCount() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.tokens)
}

// ChangePassword replaces the password and revokes every token.
func (am *AuthManager) ChangePassword(newPassword string) int {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.password = newPassword
	revoked := len(am.tokens)
	clear(am.tokens)
	log.WithFields(logger.Fields{
		"at":      "(AuthManager) ChangePassword",
		"revoked": revoked,
	}).Info("password changed, all tokens revoked")
	return revoked
}

func (am *AuthManager) generateToken(counter uint64) string {
	var msg [16]byte
	binary.BigEndian.PutUint64(msg[:8], counter)
	binary.BigEndian.PutUint64(msg[8:], uint64(am.now().UnixNano()))
	h := hmac.New(sha256.New, am.secret)
	h.Write(msg[:])
	return base64.EncodeToString(h.Sum(nil))
}
