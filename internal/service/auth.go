// Package service holds the business logic of the chat bot and the note tool,
// delegating persistence to repository interfaces.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"

	"github.com/shaonote/starbot/internal/models"
	"github.com/shaonote/starbot/internal/token"
)

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	// CreateUser stores a new account; a taken email returns models.ErrConflict.
	CreateUser(ctx context.Context, u *models.User) error
	// GetByEmail returns models.ErrNotFound when no account has the email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByID returns models.ErrNotFound when no account has the id.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// UpdateTwoFactor stores the TOTP secret and whether it is enabled.
	UpdateTwoFactor(ctx context.Context, userID, secret string, enabled bool) error
}

// Password length bounds in bytes. bcrypt ignores input past 72 bytes.
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

// totpOpts matches what authenticator apps generate by default.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// dummyHash is compared against when the account does not exist so both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

// Session is an issued access/refresh token pair.
type Session struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
	User           *models.User
}

// LoginResult is either a Session or a pending two-factor challenge.
type LoginResult struct {
	Session      *Session
	Require2FA   bool
	UserID       string
	PendingToken string
}

// RegisterInput is the payload of an account registration.
type RegisterInput struct {
	ID          string
	Email       string
	DisplayName string
	Password    string
}

// TwoFactorSetup is returned by enrollment.
type TwoFactorSetup struct {
	QRCodeURL  string `json:"qrCodeUrl"`
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

// TwoFactorVerify identifies the account either by the pending token of a
// login or by an existing session, plus the submitted code.
type TwoFactorVerify struct {
	PendingToken  string
	SessionUserID string
	Code          string
}

// AuthService implements registration, login, two-factor and session refresh.
type AuthService struct {
	repo   AuthRepository
	tokens *token.Manager
	issuer string
	cost   int
	now    func() time.Time
}

// NewAuthService constructs a new AuthService using the provided repository.
// issuer is the label shown in authenticator apps.
func NewAuthService(repo AuthRepository, tokens *token.Manager, issuer string) *AuthService {
	return &AuthService{
		repo:   repo,
		tokens: tokens,
		issuer: issuer,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Register validates the input and creates the account with a bcrypt hash.
// An empty id is replaced by a random UUID.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, models.Invalid("email", "a valid email is required")
	}
	if len(in.Password) < minPasswordLen || len(in.Password) > maxPasswordLen {
		return nil, models.Invalid("password", fmt.Sprintf("must be %d to %d bytes", minPasswordLen, maxPasswordLen))
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		ID:           id,
		Email:        email,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: hash,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the password. Accounts with two-factor enabled get a pending
// token instead of a session. Unknown email and wrong password both return
// models.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, models.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	if u.TwoFactorEnabled {
		pending, _, err := s.tokens.Issue(token.MFA, u.ID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Require2FA: true, UserID: u.ID, PendingToken: pending}, nil
	}

	sess, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: sess}, nil
}

// SetupTwoFactor generates a fresh secret, stores it disabled and returns the
// enrollment URI with a PNG QR code data URL. Re-running it replaces a pending secret.
func (s *AuthService) SetupTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.issuer, AccountName: u.Email})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	if err := s.repo.UpdateTwoFactor(ctx, u.ID, key.Secret(), false); err != nil {
		return nil, err
	}
	return &TwoFactorSetup{
		QRCodeURL:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
	}, nil
}

// VerifyTwoFactor checks a code for the account named by the pending token
// (or the current session), enables two-factor on first success and issues a session.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, in TwoFactorVerify) (*Session, error) {
	userID := in.SessionUserID
	if in.PendingToken != "" {
		sub, err := s.tokens.Verify(token.MFA, in.PendingToken)
		if err != nil {
			return nil, err
		}
		userID = sub
	}
	if userID == "" {
		return nil, models.ErrUnauthorized
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, models.Invalid("token", "verification code is required")
	}

	u, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if u.TwoFactorSecret == "" {
		return nil, models.ErrTwoFactorNotSetup
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(in.Code), u.TwoFactorSecret, s.now(), totpOpts)
	if err != nil || !ok {
		return nil, models.ErrInvalidCredentials
	}

	if !u.TwoFactorEnabled {
		if err := s.repo.UpdateTwoFactor(ctx, u.ID, u.TwoFactorSecret, true); err != nil {
			return nil, err
		}
		u.TwoFactorEnabled = true
	}
	return s.issue(u)
}

// Refresh exchanges a valid refresh token for a new pair. Access tokens are rejected.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	sub, err := s.tokens.Verify(token.Refresh, refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, sub)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Authenticate returns the user id carried by a valid access token.
func (s *AuthService) Authenticate(accessToken string) (string, error) {
	return s.tokens.Verify(token.Access, accessToken)
}

// Me returns the account behind the current session.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.repo.GetByID(ctx, userID)
}

func (s *AuthService) issue(u *models.User) (*Session, error) {
	access, accessExp, err := s.tokens.Issue(token.Access, u.ID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.Issue(token.Refresh, u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:    access,
		AccessExpires:  accessExp,
		RefreshToken:   refresh,
		RefreshExpires: refreshExp,
		User:           u,
	}, nil
}
