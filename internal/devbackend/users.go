package devbackend

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes, so longer passwords are refused.
const maxPasswordBytes = 72

var (
	errEmailTaken    = errors.New("email already exists")
	errEmptyEmail    = errors.New("email must not be empty")
	errEmptyPassword = errors.New("password must not be empty")
	errLongPassword  = errors.New("password must not be longer than 72 bytes")
)

type user struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// publicUser is the JSON shape of a user returned to clients.
type publicUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func (u *user) public() publicUser {
	return publicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// userStore is an in-memory user table with a unique email index.
type userStore struct {
	mu         sync.RWMutex
	byID       map[string]*user
	byEmail    map[string]*user
	bcryptCost int
}

func newUserStore(bcryptCost int) *userStore {
	return &userStore{
		byID:       make(map[string]*user),
		byEmail:    make(map[string]*user),
		bcryptCost: bcryptCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// create registers a user. The password is hashed before the lock is taken.
func (s *userStore) create(name, email, password string, now time.Time) (*user, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errEmptyEmail
	}
	if strings.TrimSpace(password) == "" {
		return nil, errEmptyPassword
	}
	if len(password) > maxPasswordBytes {
		return nil, errLongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	u := &user{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, errEmailTaken
	}
	s.byID[u.ID] = u
	s.byEmail[email] = u
	return u, nil
}

// authenticate returns the user if the password matches.
func (s *userStore) authenticate(email, password string) (*user, bool) {
	s.mu.RLock()
	u, ok := s.byEmail[normalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, false
	}
	return u, true
}

func (s *userStore) get(id string) (*user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok
}
