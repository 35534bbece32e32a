package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"lingotutor/cache"
	"lingotutor/logger"
	"lingotutor/models"
)

const minPasswordLength = 6

type AuthService struct {
	db        *gorm.DB
	store     cache.Store
	log       *logger.Logger
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewAuthService(db *gorm.DB, store cache.Store, log *logger.Logger, jwtSecret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		db:        db,
		store:     store,
		log:       log.With("service", "AuthService"),
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

type Credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResult struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := models.User{Email: email, PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	s.log.Info("User registered", "user_id", user.ID)
	return s.issue(&user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	return s.issue(&user)
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// ValidateToken turns a bearer token into a signed-in Session. Expired,
// malformed and revoked tokens all yield ErrUnauthorized, as does a token
// whose revocation state cannot be read.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*Session, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrUnauthorized
	}

	var revoked bool
	ok, err := s.store.Get(ctx, cache.RevokedTokenKey(claims.ID), &revoked)
	if err != nil {
		s.log.Warn("Revocation lookup failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: revocation lookup failed", ErrUnauthorized)
	}
	if ok && revoked {
		return nil, ErrUnauthorized
	}

	return &Session{
		UserID:    userID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		State:     SignedIn,
	}, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, sess *Session) (*models.User, error) {
	if !sess.Active() {
		return nil, ErrUnauthorized
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", sess.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return &user, nil
}

// SignOut revokes the session's token until it would have expired, closes
// the session's live connections and drops every cached entry of the user.
func (s *AuthService) SignOut(ctx context.Context, sess *Session) error {
	if !sess.Active() {
		return ErrUnauthorized
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl > 0 {
		if err := s.store.Set(ctx, cache.RevokedTokenKey(sess.TokenID), true, ttl); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
	}
	if err := s.store.Invalidate(ctx, cache.SessionKey(sess.UserID, sess.TokenID)); err != nil {
		s.log.Warn("Failed to close session connections", "user_id", sess.UserID, "error", err)
	}
	if err := s.store.InvalidatePrefix(ctx, cache.UserPrefix(sess.UserID)); err != nil {
		s.log.Warn("Failed to tear down user cache", "user_id", sess.UserID, "error", err)
	}
	sess.State = SignedOut
	s.log.Info("User signed out", "user_id", sess.UserID)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
