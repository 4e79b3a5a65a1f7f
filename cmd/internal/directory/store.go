package directory

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User is a directory account. PasswordHash is a bcrypt hash and never leaves
// the package.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	passwordHash []byte
}

// Store looks up accounts and checks credentials.
type Store interface {
	// FindByEmail returns the user for an email, or ErrNotFound.
	FindByEmail(email string) (User, error)

	// FindByID returns the user for an id, or ErrNotFound.
	FindByID(id string) (User, error)

	// CheckPassword reports whether the plaintext matches the user's hash.
	// It runs in constant time relative to the password contents.
	CheckPassword(u User, password string) bool
}

// InMemory is a Store backed by a map, safe for concurrent use.
type InMemory struct {
	mu      sync.RWMutex
	byEmail map[string]User
	byID    map[string]User
}

// NewInMemory returns an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{
		byEmail: make(map[string]User),
		byID:    make(map[string]User),
	}
}

// Add hashes the password and stores the account. The email is normalized to
// lower case for lookups.
func (s *InMemory) Add(email, name, password string, role Role) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		Name:         name,
		Role:         role,
		passwordHash: hash,
	}

	s.mu.Lock()
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u
	s.mu.Unlock()

	return u, nil
}

func (s *InMemory) FindByEmail(email string) (User, error) {
	s.mu.RLock()
	u, ok := s.byEmail[normalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) FindByID(id string) (User, error) {
	s.mu.RLock()
	u, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) CheckPassword(u User, password string) bool {
	return bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) == nil
}

// SeedDemoUsers adds the fixed development accounts. Not for production.
func SeedDemoUsers(s *InMemory) error {
	seeds := []struct {
		email    string
		name     string
		password string
		role     Role
	}{
		{"admin@example.com", "Admin User", "admin123", RoleAdmin},
		{"viewer@example.com", "Viewer User", "viewer123", RoleViewer},
		{"demo@example.com", "Demo User", "demo123", RoleAdmin},
	}
	for _, seed := range seeds {
		if _, err := s.Add(seed.email, seed.name, seed.password, seed.role); err != nil {
			return err
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
