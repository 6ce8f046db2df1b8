package password

import (
	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost factor; tests lower it through SetCost.
var cost = 12

// Hash hashes password using bcrypt
func Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// Verify compares password with hash
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash was produced with a different cost than the current one
func NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	return err != nil || c != cost
}

// SetCost overrides the bcrypt cost and returns a func restoring the previous value
func SetCost(c int) (restore func()) {
	prev := cost
	cost = c
	return func() { cost = prev }
}
