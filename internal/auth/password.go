package auth

import (
	"fmt"
	"strings"

	"github.com/matthewhartstonge/argon2"
	"golang.org/x/crypto/bcrypt"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (b *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (b *BcryptHasher) Compare(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type Argon2Hasher struct {
	Config argon2.Config
}

func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{Config: argon2.DefaultConfig()}
}

func (a *Argon2Hasher) Hash(password string) (string, error) {
	encoded, err := a.Config.HashEncoded([]byte(password))
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func (a *Argon2Hasher) Compare(hash, password string) bool {
	if hash == "" {
		return false
	}
	ok, err := argon2.VerifyEncoded([]byte(password), []byte(hash))
	return err == nil && ok
}

// MigratingHasher hashes new passwords with Primary and verifies stored hashes
// with whichever algorithm produced them, so switching PASSWORD_HASHER does
// not lock out existing users.
type MigratingHasher struct {
	Primary PasswordHasher
	bcrypt  *BcryptHasher
	argon2  *Argon2Hasher
}

func NewPasswordHasher(kind string) (*MigratingHasher, error) {
	m := &MigratingHasher{bcrypt: NewBcryptHasher(), argon2: NewArgon2Hasher()}
	switch kind {
	case "", "bcrypt":
		m.Primary = m.bcrypt
	case "argon2":
		m.Primary = m.argon2
	default:
		return nil, fmt.Errorf("unknown password hasher %q", kind)
	}
	return m, nil
}

func (m *MigratingHasher) Hash(password string) (string, error) {
	return m.Primary.Hash(password)
}

func (m *MigratingHasher) Compare(hash, password string) bool {
	if strings.HasPrefix(hash, "$argon2") {
		return m.argon2.Compare(hash, password)
	}
	return m.bcrypt.Compare(hash, password)
}

// NeedsRehash reports whether hash was produced by a non-primary algorithm.
func (m *MigratingHasher) NeedsRehash(hash string) bool {
	isArgon := strings.HasPrefix(hash, "$argon2")
	_, primaryArgon := m.Primary.(*Argon2Hasher)
	return isArgon != primaryArgon
}
