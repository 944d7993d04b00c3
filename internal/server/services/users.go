// Package services contains server-side business logic: accounts and
// tokens, ownership-scoped row access, and avatar uploads.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/survivalcodex/codex/internal/common"
	"github.com/survivalcodex/codex/internal/cryptox"
	"github.com/survivalcodex/codex/internal/dbx"
	"github.com/survivalcodex/codex/internal/server/auth"
	"github.com/survivalcodex/codex/internal/server/config"
	"github.com/survivalcodex/codex/internal/server/models"
	"github.com/survivalcodex/codex/internal/server/repositories/repomanager"
	"github.com/survivalcodex/codex/internal/server/repositories/rows"
)

// UserService registers accounts, verifies credentials and issues token
// pairs. Refresh tokens are stored server-side and rotated on every use.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	idTokens                     *auth.IDTokenVerifier
	validate                     *validator.Validate
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		idTokens:                     auth.NewIDTokenVerifier(cfg.OAuthSecret),
		validate:                     validator.New(validator.WithRequiredStructEnabled()),
	}
}

type signUpRequest struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=128"`
	Name     string `validate:"max=120"`
}

// SignUp creates the account and its default profile in one transaction.
func (s *UserService) SignUp(ctx context.Context, email, password, name string) (*models.TokenPair, error) {
	req := signUpRequest{Email: strings.TrimSpace(email), Password: password, Name: strings.TrimSpace(name)}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	var pair *models.TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).Create(ctx, req.Email, cryptox.HashPassword(req.Password))
		if err != nil {
			return err
		}
		if err := s.createProfile(ctx, tx, user, req.Name); err != nil {
			return err
		}
		pair, err = s.generateTokenPair(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *UserService) createProfile(ctx context.Context, tx dbx.DBTX, user *models.User, name string) error {
	_, err := s.repomanager.Rows(tx).Insert(ctx, rows.Schema["profiles"], []models.Row{{
		"id":                user.ID,
		"email":             user.Email,
		"name":              name,
		"subscription_tier": common.TierFree,
		"language":          common.DefaultLanguage,
	}})
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// SignIn verifies the password. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *UserService) SignIn(ctx context.Context, email, password string) (*models.TokenPair, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, common.ErrInvalidCredentials
	}

	ok, err := cryptox.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}
	return s.generateTokenPair(ctx, s.db, user)
}

// SignInOAuth trusts the identity provider's verified email, creating the
// account on first use.
func (s *UserService) SignInOAuth(ctx context.Context, provider, idToken string) (*models.TokenPair, error) {
	email, err := s.idTokens.Verify(provider, idToken)
	if err != nil {
		return nil, err
	}

	var pair *models.TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		user, err := users.GetByEmail(ctx, email)
		if errors.Is(err, common.ErrorNotFound) {
			if user, err = users.Create(ctx, email, ""); err == nil {
				err = s.createProfile(ctx, tx, user, "")
			}
		}
		if err != nil {
			return err
		}
		pair, err = s.generateTokenPair(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Unknown tokens yield ErrInvalidToken, expired
// ones ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *models.TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		user, err := s.repomanager.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return err
		}
		pair, err = s.generateTokenPair(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// SignOut revokes refreshToken. Unknown tokens are ignored.
func (s *UserService) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken)
}

func (s *UserService) generateTokenPair(ctx context.Context, db dbx.DBTX, user *models.User) (*models.TokenPair, error) {
	accessToken, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if err := s.repomanager.RefreshTokens(db).Create(ctx, user.ID, refreshToken, s.refreshTokenValidityDuration); err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Email:        user.Email,
	}, nil
}
