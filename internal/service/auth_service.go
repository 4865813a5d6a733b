package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/model"
	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/email"
	"github.com/phdwriter/essay_go_server/internal/pkg/jwt"
	"github.com/phdwriter/essay_go_server/internal/pkg/oauth"
	"github.com/phdwriter/essay_go_server/internal/repository"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidCode        = errors.New("verification code invalid or expired")
	ErrEmailNotVerified   = errors.New("email not verified")
)

type AuthService struct {
	userRepo *repository.UserRepository
	emailSvc *email.Service
	github   *oauth.GithubClient
	cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, emailSvc *email.Service, github *oauth.GithubClient, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		emailSvc: emailSvc,
		github:   github,
		cfg:      cfg,
	}
}

// Register creates a free-tier account and sends the verification email.
func (s *AuthService) Register(req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	if taken, err := s.userRepo.ExistsByEmail(req.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}
	if taken, err := s.userRepo.ExistsByUsername(req.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code := randomCode()
	codeExpiry := time.Now().Add(24 * time.Hour)
	resetAt := firstOfNextMonth(time.Now())
	hashStr := string(hash)

	user := &model.User{
		Username:              req.Username,
		Email:                 &req.Email,
		PasswordHash:          &hashStr,
		SubscriptionTier:      model.TierFree,
		EssayQuota:            s.cfg.FreeQuota(),
		CycleResetAt:          &resetAt,
		VerificationCode:      &code,
		VerificationExpiresAt: &codeExpiry,
	}

	// Debug mode skips the email round trip.
	if s.cfg.Server.Mode == "debug" {
		user.EmailVerified = true
		user.VerificationCode = nil
		user.VerificationExpiresAt = nil
	}

	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	if !user.EmailVerified {
		go func() {
			if err := s.emailSvc.SendVerificationCode(req.Email, code); err != nil {
				log.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to send verification email")
			}
		}()
	}

	return &dto.RegisterResponse{UserID: user.ID}, nil
}

// Login authenticates with email and password and issues a token.
func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		// oauth-only account
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	token, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user),
	}, nil
}

// VerifyEmail consumes a verification code.
func (s *AuthService) VerifyEmail(code string) error {
	user, err := s.userRepo.GetByVerificationCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCode
		}
		return err
	}
	if user.VerificationExpiresAt == nil || time.Now().After(*user.VerificationExpiresAt) {
		return ErrInvalidCode
	}

	return s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"email_verified":          true,
		"verification_code":       nil,
		"verification_expires_at": nil,
	})
}

// GithubAuthURL starts the OAuth flow.
func (s *AuthService) GithubAuthURL(state string) string {
	return s.github.AuthCodeURL(state)
}

// GithubLogin completes the OAuth flow, creating the account on first login.
func (s *AuthService) GithubLogin(ctx context.Context, code string) (*dto.LoginResponse, error) {
	token, err := s.github.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github exchange failed: %w", err)
	}

	ghUser, err := s.github.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	githubID := strconv.FormatInt(ghUser.ID, 10)
	user, err := s.userRepo.GetByGithubID(githubID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.createGithubUser(ghUser, githubID)
	}
	if err != nil {
		return nil, err
	}

	jwtToken, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		Token: jwtToken,
		User:  buildUserInfo(user),
	}, nil
}

func (s *AuthService) createGithubUser(ghUser *oauth.Profile, githubID string) (*model.User, error) {
	username := ghUser.Login
	if taken, err := s.userRepo.ExistsByUsername(username); err != nil {
		return nil, err
	} else if taken {
		username = fmt.Sprintf("%s_%s", ghUser.Login, githubID)
	}

	resetAt := firstOfNextMonth(time.Now())
	user := &model.User{
		Username:         username,
		GithubID:         &githubID,
		EmailVerified:    true, // github already verified it
		SubscriptionTier: model.TierFree,
		EssayQuota:       s.cfg.FreeQuota(),
		CycleResetAt:     &resetAt,
	}
	if ghUser.Email != "" {
		user.Email = &ghUser.Email
	}

	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	log.Info().Int64("user_id", user.ID).Str("github_login", ghUser.Login).Msg("created account from github oauth")
	return user, nil
}

func buildUserInfo(user *model.User) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:               user.ID,
		Username:         user.Username,
		EmailVerified:    user.EmailVerified,
		SubscriptionTier: user.SubscriptionTier,
		EssayQuota:       user.EssayQuota,
		EssaysUsed:       user.EssaysUsed,
		EssayCredits:     user.EssayCredits,
	}
	if user.Email != nil {
		info.Email = *user.Email
	}
	if user.SubscriptionExpiresAt != nil {
		info.SubscriptionEnd = user.SubscriptionExpiresAt.Format(time.RFC3339)
	}
	return info
}

func randomCode() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}

func firstOfNextMonth(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())
}
