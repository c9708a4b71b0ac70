package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	AdminID              = "admin"
	DefaultAdminPassword = "123123"
	DefaultTokenTTL      = 7 * 24 * time.Hour
	usersLockKey         = "users"
	// bcrypt ignores everything past 72 bytes and newer versions reject it.
	maxPasswordBytes = 72
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeID derives the user id from a display name.
func NormalizeID(name string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(strings.ToLower(name)), "_")
}

type Replicator interface {
	Enqueue(userID string)
}

type Config struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminPassword string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Claims struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

type LoginResult struct {
	User      types.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt int64      `json:"expiresAt"`
	Admin     bool       `json:"admin"`
	Created   bool       `json:"created"`
}

// Account is a user together with the last time they signed in.
type Account struct {
	User        types.User `json:"user"`
	LastLoginAt int64      `json:"lastLoginAt,omitempty"`
}

type Service struct {
	log   *logger.Logger
	store localstore.Store
	repl  Replicator
	cfg   Config
	now   func() time.Time
	locks *localstore.KeyedMutex
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(baseLog *logger.Logger, store localstore.Store, repl Replicator, cfg Config, opts ...Option) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = DefaultAdminPassword
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	s := &Service{
		log:   baseLog.With("service", "IdentityService"),
		store: store,
		repl:  repl,
		cfg:   cfg,
		now:   time.Now,
		locks: localstore.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cleanPassword trims surrounding whitespace and enforces bcrypt's input limit.
func cleanPassword(password, field string) (string, error) {
	pw := strings.TrimSpace(password)
	if pw == "" {
		return "", pkgerrors.Invalid(field + " is required")
	}
	if len(pw) > maxPasswordBytes {
		return "", pkgerrors.Invalid(fmt.Sprintf("%s must be at most %d bytes", field, maxPasswordBytes))
	}
	return pw, nil
}

func (s *Service) loadUsers(ctx context.Context) (map[string]types.CredentialRecord, error) {
	users := map[string]types.CredentialRecord{}
	if _, err := s.store.Get(ctx, localstore.UsersKey(), &users); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

func (s *Service) saveUsers(ctx context.Context, users map[string]types.CredentialRecord) error {
	if err := s.store.Set(ctx, localstore.UsersKey(), users); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// Login signs a user in, registering them on first use. The admin id never gets a record.
func (s *Service) Login(ctx context.Context, name, password string) (LoginResult, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.TrimSpace(password) == "" {
		return LoginResult{}, pkgerrors.Invalid("name and password are required")
	}
	password, err := cleanPassword(password, "password")
	if err != nil {
		return LoginResult{}, err
	}
	id := NormalizeID(trimmed)

	if id == AdminID {
		if password != s.cfg.AdminPassword {
			s.log.Warn("Admin login rejected")
			return LoginResult{}, fmt.Errorf("admin login: %w", pkgerrors.ErrIncorrectPassword)
		}
		admin := types.User{ID: AdminID, Name: trimmed}
		return s.issue(admin, true, false)
	}

	unlock := s.locks.Lock(usersLockKey)
	defer unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return LoginResult{}, err
	}
	nowMs := s.now().UnixMilli()

	if rec, ok := users[id]; ok {
		if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return LoginResult{}, pkgerrors.ErrIncorrectPassword
			}
			return LoginResult{}, fmt.Errorf("compare password: %w", err)
		}
		rec.LastLoginAt = nowMs
		users[id] = rec
		if err := s.saveUsers(ctx, users); err != nil {
			return LoginResult{}, err
		}
		s.log.Info("User signed in", "user_id", id)
		return s.issue(rec.User, false, false)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return LoginResult{}, fmt.Errorf("hash password: %w", err)
	}
	user := types.User{ID: id, Name: trimmed, JoinedAt: nowMs}
	users[id] = types.CredentialRecord{User: user, PasswordHash: string(hash), LastLoginAt: nowMs}
	if err := s.saveUsers(ctx, users); err != nil {
		return LoginResult{}, err
	}
	s.log.Info("User registered", "user_id", id)
	if s.repl != nil {
		s.repl.Enqueue(id)
	}
	return s.issue(user, false, true)
}

// ResetPassword replaces the stored hash for an existing user without checking the old one.
// Only operators and admins reach it.
func (s *Service) ResetPassword(ctx context.Context, name, newPassword string) error {
	id := NormalizeID(name)
	if id == "" {
		return pkgerrors.Invalid("name is required")
	}
	pw, err := cleanPassword(newPassword, "new password")
	if err != nil {
		return err
	}
	if id == AdminID {
		return pkgerrors.Invalid("the admin password is set by configuration")
	}
	return s.setPassword(ctx, id, pw, nil)
}

// ChangePassword is the learner's own reset: the current password must match.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if userID == "" || userID == AdminID {
		return pkgerrors.Invalid("the admin password is set by configuration")
	}
	current, err := cleanPassword(currentPassword, "current password")
	if err != nil {
		return err
	}
	pw, err := cleanPassword(newPassword, "new password")
	if err != nil {
		return err
	}
	return s.setPassword(ctx, userID, pw, func(rec types.CredentialRecord) error {
		err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(current))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return pkgerrors.ErrIncorrectPassword
		}
		if err != nil {
			return fmt.Errorf("compare password: %w", err)
		}
		return nil
	})
}

func (s *Service) setPassword(ctx context.Context, id, password string, check func(types.CredentialRecord) error) error {
	unlock := s.locks.Lock(usersLockKey)
	defer unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}
	rec, ok := users[id]
	if !ok {
		return pkgerrors.NotFound("no account with this name")
	}
	if check != nil {
		if err := check(rec); err != nil {
			return err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	rec.PasswordHash = string(hash)
	users[id] = rec
	if err := s.saveUsers(ctx, users); err != nil {
		return err
	}
	s.log.Info("Password changed", "user_id", id)
	return nil
}

// Lookup returns the account for id, or a not found error.
func (s *Service) Lookup(ctx context.Context, id string) (Account, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return Account{}, err
	}
	rec, ok := users[id]
	if !ok {
		return Account{}, pkgerrors.NotFound("user not found")
	}
	return Account{User: rec.User, LastLoginAt: rec.LastLoginAt}, nil
}

// ListUsers returns every registered account ordered by id.
func (s *Service) ListUsers(ctx context.Context) ([]Account, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(users))
	for _, rec := range users {
		out = append(out, Account{User: rec.User, LastLoginAt: rec.LastLoginAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out, nil
}

func (s *Service) issue(user types.User, admin, created bool) (LoginResult, error) {
	now := s.now()
	exp := now.Add(s.cfg.TokenTTL)
	claims := Claims{
		Name:  user.Name,
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}
	return LoginResult{User: user, Token: token, ExpiresAt: exp.UnixMilli(), Admin: admin, Created: created}, nil
}

// ParseToken validates an HS256 token issued by this service.
func (s *Service) ParseToken(_ context.Context, tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("missing token: %w", pkgerrors.ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %v: %w", err, pkgerrors.ErrUnauthorized)
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token: %w", pkgerrors.ErrUnauthorized)
	}
	return claims, nil
}
