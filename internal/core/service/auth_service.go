package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/port"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// bcrypt ignores input beyond this many bytes.
const maxSecretBytes = 72

// Session is the result of a successful login.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Principal domain.Principal `json:"associate"`
}

// AuthService verifies associate credentials and resolves bearer tokens to
// principals.
type AuthService struct {
	associates port.AssociateRepository
	ids        port.IDGenerator
	tokens     port.TokenIssuer
	revoked    port.CacheRepository
	tokenTTL   time.Duration
	logger     *zap.Logger
}

func NewAuthService(
	associates port.AssociateRepository,
	ids port.IDGenerator,
	tokens port.TokenIssuer,
	revoked port.CacheRepository,
	tokenTTL time.Duration,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		associates: associates,
		ids:        ids,
		tokens:     tokens,
		revoked:    revoked,
		tokenTTL:   tokenTTL,
		logger:     logger,
	}
}

func (s *AuthService) Register(ctx context.Context, name, secret string, isManager bool) (*domain.Associate, error) {
	name, err := requireText("name", name, 100)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, &domain.ValidationError{Field: "secret", Reason: "cannot be blank"}
	}
	if len(secret) > maxSecretBytes {
		return nil, &domain.ValidationError{Field: "secret", Reason: fmt.Sprintf("cannot exceed %d bytes", maxSecretBytes)}
	}

	_, err = s.associates.GetAssociateByName(ctx, name)
	switch {
	case err == nil:
		return nil, &domain.ValidationError{Field: "name", Reason: "is already taken"}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, domain.NewPersistenceError("lookup associate", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	associate := domain.Associate{
		ID:           s.ids.NextID(),
		Name:         name,
		PasswordHash: string(hash),
		IsManager:    isManager,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.associates.CreateAssociate(ctx, associate); err != nil {
		return nil, domain.NewPersistenceError("create associate", err)
	}

	s.logger.Info("associate registered",
		zap.Int64("associate_id", associate.ID),
		zap.String("name", associate.Name),
		zap.Bool("is_manager", associate.IsManager))
	return &associate, nil
}

func (s *AuthService) Login(ctx context.Context, name, secret string) (*Session, error) {
	associate, err := s.associates.GetAssociateByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, domain.NewPersistenceError("lookup associate", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(associate.PasswordHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(strconv.FormatInt(associate.ID, 10), s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &Session{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		Principal: *associate.Principal(),
	}, nil
}

// Resolve turns a bearer token into the acting principal. The associate is
// reloaded so a changed manager flag takes effect immediately.
func (s *AuthService) Resolve(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	revoked, err := s.revoked.IsTokenRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("revocation check failed: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	associate, err := s.associates.GetAssociateByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, domain.NewPersistenceError("lookup associate", err)
	}
	return associate.Principal(), nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.RevokeToken(ctx, claims.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("associate logged out", zap.String("subject", claims.Subject))
	return nil
}
