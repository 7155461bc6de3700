package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"playerwallet/internal/config"
	"playerwallet/internal/infrastructure/google"
	"playerwallet/internal/model"
	"playerwallet/internal/repository"
	"playerwallet/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeGoogle struct {
	identity *google.Identity
	err      error
}

func (f *fakeGoogle) Verify(ctx context.Context, rawToken string) (*google.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func newAuthService(store *memory.Store, verifier GoogleVerifier) *AuthService {
	authCfg := config.AuthConfig{
		ResetTokenTTL: time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}
	walletCfg := config.WalletConfig{InitialCashInLimit: 300000}
	svc := NewAuthService(store, store.Resets(), verifier, NewTokenIssuer("test-secret", time.Hour), nil, authCfg, walletCfg)
	var n int64
	svc.codeGen = func() string { return fmt.Sprintf("PLR-%d", atomic.AddInt64(&n, 1)) }
	return svc
}

func register(t *testing.T, svc *AuthService, email string) *AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), &RegisterRequest{
		FirstName: "Ana",
		LastName:  "Cruz",
		Email:     email,
		Birthdate: "1990-04-01",
		Password:  "secret1",
	})
	require.NoError(t, err)
	return res
}

func TestRegister_CreatesWallet(t *testing.T) {
	store := memory.NewStore()
	svc := newAuthService(store, nil)

	res := register(t, svc, "  Ana@Example.com ")
	assert.NotZero(t, res.Player.ID)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "ana@example.com", res.Player.Email)

	wallet, err := store.FindWallet(context.Background(), res.Player.ID)
	require.NoError(t, err)
	assert.True(t, wallet.Credit.IsZero())
	assert.True(t, wallet.CashInLimit.Equal(dec("300000")))
	assert.Equal(t, model.PlayerStatusActive, wallet.Status)
	assert.NotEqual(t, "secret1", *wallet.Password)
}

func TestRegister_Rejections(t *testing.T) {
	store := memory.NewStore()
	svc := newAuthService(store, nil)
	register(t, svc, "ana@example.com")
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
		want error
		msg  string
	}{
		{"missing fields", RegisterRequest{Email: "x@example.com"}, ErrInvalidInput, "First name, last name, email, birthdate and password are required."},
		{"bad email", RegisterRequest{FirstName: "B", LastName: "C", Email: "nope", Birthdate: "1990-01-01", Password: "secret1"}, ErrInvalidInput, "A valid email is required."},
		{"short password", RegisterRequest{FirstName: "B", LastName: "C", Email: "b@example.com", Birthdate: "1990-01-01", Password: "123"}, ErrInvalidInput, "Password must be at least 6 characters."},
		{"bad birthdate", RegisterRequest{FirstName: "B", LastName: "C", Email: "b@example.com", Birthdate: "01/02/1990", Password: "secret1"}, ErrInvalidInput, "Birthdate must be in YYYY-MM-DD format."},
		{"email taken", RegisterRequest{FirstName: "B", LastName: "C", Email: "ANA@example.com", Birthdate: "1990-01-01", Password: "secret1"}, ErrEmailTaken, "Email is already registered."},
		{"same name and birthdate", RegisterRequest{FirstName: "Ana", LastName: "Cruz", Email: "other@example.com", Birthdate: "1990-04-01", Password: "secret1"}, ErrDuplicatePlayer, "Player with same name and birthdate already exists."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := svc.Register(ctx, &req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestLogin(t *testing.T) {
	store := memory.NewStore()
	svc := newAuthService(store, nil)
	registered := register(t, svc, "ana@example.com")
	ctx := context.Background()

	res, err := svc.Login(ctx, &LoginRequest{Email: " ANA@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, registered.Player.ID, res.Player.ID)

	claims, err := svc.Tokens().Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Player.ID, claims.PlayerID)

	_, err = svc.Login(ctx, &LoginRequest{Email: "ana@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &LoginRequest{Email: "ghost@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &LoginRequest{Email: "", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Login(ctx, &LoginRequest{Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGoogleLogin_CreatesThenReuses(t *testing.T) {
	store := memory.NewStore()
	verifier := &fakeGoogle{identity: &google.Identity{Subject: "g-1", Email: "Gia@example.com", Name: "Gia Maria Reyes"}}
	svc := newAuthService(store, verifier)
	ctx := context.Background()

	first, err := svc.GoogleLogin(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, "Gia", first.Player.FirstName)
	assert.Equal(t, "Maria Reyes", first.Player.LastName)
	assert.Equal(t, "gia@example.com", first.Player.Email)
	assert.False(t, first.Player.HasPassword())
	assert.True(t, first.Player.CashInLimit.Equal(dec("300000")))

	second, err := svc.GoogleLogin(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, first.Player.ID, second.Player.ID)

	// Google 账号不能用密码登录
	_, err = svc.Login(ctx, &LoginRequest{Email: "gia@example.com", Password: "anything"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGoogleLogin_PasswordAccountExists(t *testing.T) {
	store := memory.NewStore()
	verifier := &fakeGoogle{identity: &google.Identity{Subject: "g-2", Email: "ana@example.com"}}
	svc := newAuthService(store, verifier)
	register(t, svc, "ana@example.com")

	_, err := svc.GoogleLogin(context.Background(), "id-token")
	assert.ErrorIs(t, err, ErrGoogleAccountTaken)
}

func TestGoogleLogin_Rejections(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	_, err := newAuthService(store, &fakeGoogle{}).GoogleLogin(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = newAuthService(store, &fakeGoogle{err: google.ErrInvalidIDToken}).GoogleLogin(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidGoogleToken)

	_, err = newAuthService(store, nil).GoogleLogin(ctx, "token")
	assert.ErrorIs(t, err, ErrInvalidGoogleToken)
}

func TestGoogleNames(t *testing.T) {
	first, last := googleNames(&google.Identity{GivenName: "Ana", FamilyName: "Cruz", Name: "ignored name"})
	assert.Equal(t, "Ana", first)
	assert.Equal(t, "Cruz", last)

	first, last = googleNames(&google.Identity{})
	assert.Equal(t, "User", first)
	assert.Equal(t, "", last)
}

func TestForgotAndResetPassword(t *testing.T) {
	store := memory.NewStore()
	svc := newAuthService(store, nil)
	register(t, svc, "ana@example.com")
	ctx := context.Background()

	token, err := svc.ForgotPassword(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{5}$`), token)

	err = svc.ResetPassword(ctx, &ResetPasswordRequest{Email: "ana@example.com", Token: "000000", NewPassword: "newpass"})
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	err = svc.ResetPassword(ctx, &ResetPasswordRequest{Email: "ana@example.com", Token: token, NewPassword: "123"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, svc.ResetPassword(ctx, &ResetPasswordRequest{Email: "ana@example.com", Token: token, NewPassword: "newpass"}))

	_, err = svc.Login(ctx, &LoginRequest{Email: "ana@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, &LoginRequest{Email: "ana@example.com", Password: "newpass"})
	assert.NoError(t, err)

	// 令牌只能使用一次
	err = svc.ResetPassword(ctx, &ResetPasswordRequest{Email: "ana@example.com", Token: token, NewPassword: "another"})
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	svc := newAuthService(memory.NewStore(), nil)

	_, err := svc.ForgotPassword(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrEmailNotFound)

	_, err = svc.ForgotPassword(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResetPassword_Expired(t *testing.T) {
	store := memory.NewStore()
	svc := newAuthService(store, nil)
	register(t, svc, "ana@example.com")
	ctx := context.Background()

	issuedAt := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return issuedAt })
	token, err := svc.ForgotPassword(ctx, "ana@example.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(61 * time.Minute) }
	err = svc.ResetPassword(ctx, &ResetPasswordRequest{Email: "ana@example.com", Token: token, NewPassword: "newpass"})
	assert.ErrorIs(t, err, ErrResetTokenExpired)

	// 过期令牌已被删除
	err = svc.ResetPassword(ctx, &ResetPasswordRequest{Email: "ana@example.com", Token: token, NewPassword: "newpass"})
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	player := &model.Player{ID: 9, Email: "p@example.com"}

	token, expiresAt, err := issuer.Issue(player)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 2*time.Second)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.EqualValues(t, 9, claims.PlayerID)
	assert.Equal(t, "9", claims.Subject)

	_, err = NewTokenIssuer("other-secret", time.Minute).Parse(token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = issuer.Parse("not-a-jwt")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

// lateEmailStore 第一次按邮箱查询时看不到已存在的玩家，模拟并发注册
type lateEmailStore struct {
	*memory.Store
	hidden int32
}

func (s *lateEmailStore) GetByEmail(ctx context.Context, email string) (*model.Player, error) {
	if atomic.AddInt32(&s.hidden, -1) >= 0 {
		return nil, repository.ErrPlayerNotFound
	}
	return s.Store.GetByEmail(ctx, email)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Create(context.Background(), &model.Player{Code: "PLR-0", Email: "ana@example.com"}))

	players := &lateEmailStore{Store: store, hidden: 1}
	svc := NewAuthService(players, store.Resets(), nil, NewTokenIssuer("test-secret", time.Hour), nil,
		config.AuthConfig{BcryptCost: bcrypt.MinCost}, config.WalletConfig{InitialCashInLimit: 300000})

	_, err := svc.Register(context.Background(), &RegisterRequest{
		FirstName: "Ana",
		LastName:  "Cruz",
		Email:     "ana@example.com",
		Birthdate: "1990-04-01",
		Password:  "secret1",
	})
	require.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, "Email is already registered.", err.Error())
}
