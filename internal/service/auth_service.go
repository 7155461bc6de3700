package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"playerwallet/internal/config"
	"playerwallet/internal/infrastructure/google"
	"playerwallet/internal/infrastructure/metrics"
	"playerwallet/internal/model"
	"playerwallet/internal/repository"
	"playerwallet/pkg/idgen"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	birthdateLayout   = "2006-01-02"
)

// GoogleVerifier 校验 Google ID Token
type GoogleVerifier interface {
	Verify(ctx context.Context, rawToken string) (*google.Identity, error)
}

type AuthService struct {
	players      repository.PlayerStore
	resets       repository.ResetTokenStore
	google       GoogleVerifier
	tokens       *TokenIssuer
	metrics      *metrics.Metrics
	validate     *validator.Validate
	cfg          config.AuthConfig
	initialLimit decimal.Decimal
	codeGen      func() string
	now          func() time.Time
}

func NewAuthService(
	players repository.PlayerStore,
	resets repository.ResetTokenStore,
	verifier GoogleVerifier,
	tokens *TokenIssuer,
	m *metrics.Metrics,
	authCfg config.AuthConfig,
	walletCfg config.WalletConfig,
) *AuthService {
	if authCfg.BcryptCost < bcrypt.MinCost || authCfg.BcryptCost > bcrypt.MaxCost {
		authCfg.BcryptCost = bcrypt.DefaultCost
	}
	if authCfg.ResetTokenTTL <= 0 {
		authCfg.ResetTokenTTL = time.Hour
	}
	return &AuthService{
		players:      players,
		resets:       resets,
		google:       verifier,
		tokens:       tokens,
		metrics:      m,
		validate:     validator.New(),
		cfg:          authCfg,
		initialLimit: decimal.NewFromFloat(walletCfg.InitialCashInLimit).Round(2),
		codeGen:      idgen.GeneratePlayerCode,
		now:          time.Now,
	}
}

func (s *AuthService) Tokens() *TokenIssuer {
	return s.tokens
}

// AuthResult 登录 / 注册成功后的返回
type AuthResult struct {
	Player    *model.Player
	Token     string
	ExpiresAt time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) issue(player *model.Player) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(player)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Player: player, Token: token, ExpiresAt: expiresAt}, nil
}

// ============================================================================
// 邮箱密码登录
// ============================================================================

type LoginRequest struct {
	Email    string
	Password string
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	result, err := s.login(ctx, req)
	s.metrics.ObserveLogin("password", loginOutcome(err))
	return result, err
}

func (s *AuthService) login(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, invalidInput("Email is required.")
	}
	if req.Password == "" {
		return nil, invalidInput("Password is required.")
	}

	player, err := s.players.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			log.Printf("[Auth] login rejected, unknown email: %s", email)
			return nil, ErrInvalidCredentials
		}
		return nil, fromStore(err)
	}

	// Google 注册的玩家没有密码
	if !player.HasPassword() {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*player.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	log.Printf("[Auth] login ok: playerID=%d", player.ID)
	return s.issue(player)
}

// ============================================================================
// 注册
// ============================================================================

type RegisterRequest struct {
	FirstName string `validate:"required,max=100"`
	LastName  string `validate:"required,max=100"`
	Email     string `validate:"required,max=191"`
	Birthdate string `validate:"required"`
	Password  string `validate:"required"`
}

func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResult, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = normalizeEmail(req.Email)
	req.Birthdate = strings.TrimSpace(req.Birthdate)

	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInput("First name, last name, email, birthdate and password are required.")
	}
	if !strings.Contains(req.Email, "@") {
		return nil, invalidInput("A valid email is required.")
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalidInput("Password must be at least 6 characters.")
	}
	birthdate, err := time.Parse(birthdateLayout, req.Birthdate)
	if err != nil {
		return nil, invalidInput("Birthdate must be in YYYY-MM-DD format.")
	}

	if _, err := s.players.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, fromStore(err)
	}

	if _, err := s.players.GetByNameAndBirthdate(ctx, req.FirstName, req.LastName, birthdate); err == nil {
		return nil, ErrDuplicatePlayer
	} else if !errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, fromStore(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hashed := string(hash)

	player := &model.Player{
		Code:        s.codeGen(),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Birthdate:   &birthdate,
		Password:    &hashed,
		Credit:      decimal.Zero,
		CashInLimit: s.initialLimit,
		Status:      model.PlayerStatusActive,
	}
	if err := s.players.Create(ctx, player); err != nil {
		// 并发注册同一邮箱，唯一索引兜底
		if errors.Is(err, repository.ErrConflict) {
			if _, getErr := s.players.GetByEmail(ctx, req.Email); getErr == nil {
				return nil, ErrEmailTaken
			}
		}
		return nil, fromStore(err)
	}

	log.Printf("[Auth] player registered: playerID=%d code=%s", player.ID, player.Code)
	return s.issue(player)
}

// ============================================================================
// Google 登录
// ============================================================================

func (s *AuthService) GoogleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	result, err := s.googleLogin(ctx, idToken)
	s.metrics.ObserveLogin("google", loginOutcome(err))
	return result, err
}

func (s *AuthService) googleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, invalidInput("Google ID token is required.")
	}
	if s.google == nil {
		return nil, fmt.Errorf("%w: google login is not configured", ErrInvalidGoogleToken)
	}

	identity, err := s.google.Verify(ctx, idToken)
	if err != nil {
		log.Printf("[Auth] google token rejected: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoogleToken, err)
	}
	email := normalizeEmail(identity.Email)

	player, err := s.players.GetByGoogleID(ctx, identity.Subject)
	if err == nil {
		return s.issue(player)
	}
	if !errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, fromStore(err)
	}

	player, err = s.players.GetByEmail(ctx, email)
	switch {
	case err == nil:
		// 邮箱已被密码账号注册，不自动合并
		if player.GoogleID == nil {
			return nil, ErrGoogleAccountTaken
		}
		return s.issue(player)
	case !errors.Is(err, repository.ErrPlayerNotFound):
		return nil, fromStore(err)
	}

	firstName, lastName := googleNames(identity)
	googleID := identity.Subject
	player = &model.Player{
		Code:        s.codeGen(),
		FirstName:   firstName,
		LastName:    lastName,
		Email:       email,
		GoogleID:    &googleID,
		Credit:      decimal.Zero,
		CashInLimit: s.initialLimit,
		Status:      model.PlayerStatusActive,
	}
	if err := s.players.Create(ctx, player); err != nil {
		// 并发首次登录，另一请求已经创建
		if errors.Is(err, repository.ErrConflict) {
			if existing, getErr := s.players.GetByGoogleID(ctx, googleID); getErr == nil {
				return s.issue(existing)
			}
			if _, getErr := s.players.GetByEmail(ctx, player.Email); getErr == nil {
				return nil, ErrGoogleAccountTaken
			}
		}
		return nil, fromStore(err)
	}

	log.Printf("[Auth] google player created: playerID=%d code=%s", player.ID, player.Code)
	return s.issue(player)
}

func googleNames(id *google.Identity) (string, string) {
	parts := strings.Fields(id.Name)

	first := id.GivenName
	if first == "" && len(parts) > 0 {
		first = parts[0]
	}
	if first == "" {
		first = "User"
	}

	last := id.FamilyName
	if last == "" && len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}

// ============================================================================
// 找回密码
// ============================================================================

// ForgotPassword 生成 6 位数字令牌，同一邮箱只保留最新的一个
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", invalidInput("Email is required.")
	}

	if _, err := s.players.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			return "", ErrEmailNotFound
		}
		return "", fromStore(err)
	}

	token, err := newResetToken()
	if err != nil {
		return "", err
	}
	if err := s.resets.Replace(ctx, email, token); err != nil {
		return "", fromStore(err)
	}

	log.Printf("[Auth] password reset token generated for %s", email)
	return token, nil
}

func newResetToken() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

type ResetPasswordRequest struct {
	Email       string `validate:"required"`
	Token       string `validate:"required"`
	NewPassword string `validate:"required"`
}

func (s *AuthService) ResetPassword(ctx context.Context, req *ResetPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	req.Token = strings.TrimSpace(req.Token)
	if err := s.validate.Struct(req); err != nil {
		return invalidInput("Email, token, and new password are required.")
	}

	reset, err := s.resets.Find(ctx, req.Email, req.Token)
	if err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			return ErrInvalidResetToken
		}
		return fromStore(err)
	}

	if reset.Expired(s.now(), s.cfg.ResetTokenTTL) {
		if err := s.resets.DeleteByEmail(ctx, req.Email); err != nil {
			log.Printf("[Auth] delete expired reset token failed: %v", err)
		}
		return ErrResetTokenExpired
	}

	if len(req.NewPassword) < minPasswordLength {
		return invalidInput("Password must be at least 6 characters.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.players.UpdatePassword(ctx, req.Email, string(hash)); err != nil {
		return fromStore(err)
	}
	if err := s.resets.DeleteByEmail(ctx, req.Email); err != nil {
		return fromStore(err)
	}

	log.Printf("[Auth] password reset for %s", req.Email)
	return nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidGoogleToken):
		return "denied"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
