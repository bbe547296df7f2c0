// Package accounts handles sign-up, sign-in and profile management.
package accounts

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/apperrors"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/plans"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// Store persists accounts
type Store interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
}

// TokenIssuer mints session tokens
type TokenIssuer interface {
	GenerateToken(accountID, email string) (string, error)
}

// IdentityVerifier validates federated ID tokens
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// SignupInput carries the fields of a local sign-up
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// ProfileUpdate carries profile edits. Empty fields keep their current value.
type ProfileUpdate struct {
	Name        string
	Email       string
	Phone       string
	NewPassword string
}

// Session is the result of a successful sign-in
type Session struct {
	Token   string
	Account *models.Account
}

// Service implements account operations
type Service struct {
	store    Store
	tokens   TokenIssuer
	google   IdentityVerifier
	catalog  *plans.Catalog
	logger   *logging.Logger
	hashCost int
}

// NewService creates an account service. google may be nil when federated
// login is not configured.
func NewService(store Store, tokens TokenIssuer, google IdentityVerifier, catalog *plans.Catalog, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		store:    store,
		tokens:   tokens,
		google:   google,
		catalog:  catalog,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.Validation("Invalid email address")
	}
	return email, nil
}

// maxPasswordBytes is the most bcrypt will hash
const maxPasswordBytes = 72

func (s *Service) hash(password string) (*string, error) {
	if len(password) > maxPasswordBytes {
		return nil, apperrors.Validation("Password must be at most 72 bytes")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperrors.Validation("Password must be at most 72 bytes")
		}
		return nil, apperrors.Internal(err)
	}
	h := string(hashed)
	return &h, nil
}

func (s *Service) session(account *models.Account) (*Session, error) {
	token, err := s.tokens.GenerateToken(account.ID, account.Email)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &Session{Token: token, Account: account}, nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return apperrors.NotFound("Account not found")
	case errors.Is(err, apperrors.ErrConflict):
		return apperrors.Conflict("Email already registered")
	default:
		return apperrors.Internal(err)
	}
}

// Signup registers a local account on the default plan
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if name == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" || phone == "" {
		return nil, apperrors.Validation("Name, email, password and phone are required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Provider:     models.ProviderLocal,
		Quota:        s.catalog.Default().Quota(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, storeError(err)
	}

	s.logger.WithAccountID(account.ID).Info("Account registered")
	return s.session(account)
}

// Login authenticates a local account by email and password
func (s *Service) Login(ctx context.Context, rawEmail, password string) (*Session, error) {
	invalid := apperrors.Unauthorized("Invalid credentials")

	if strings.TrimSpace(rawEmail) == "" || password == "" {
		return nil, apperrors.Validation("Email and password are required")
	}

	account, err := s.store.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(rawEmail)))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if account.PasswordHash == nil {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}

	return s.session(account)
}

// GoogleLogin signs in with a Google ID token, creating the account on first use
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*Session, error) {
	if s.google == nil {
		return nil, apperrors.Validation("Google sign-in is not configured")
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, apperrors.Validation("Missing Google token")
	}

	identity, err := s.google.Verify(ctx, idToken)
	if err != nil {
		s.logger.WithError(err).Warn("Google token rejected")
		return nil, apperrors.Unauthorized("Invalid Google token")
	}

	account, err := s.store.GetAccountByEmail(ctx, identity.Email)
	if err == nil {
		return s.session(account)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	name := identity.Name
	if name == "" {
		name = identity.Email
	}
	account = &models.Account{
		Name:     name,
		Email:    identity.Email,
		Provider: models.ProviderGoogle,
		Picture:  identity.Picture,
		Quota:    s.catalog.Default().Quota(),
	}

	err = s.store.CreateAccount(ctx, account)
	if errors.Is(err, apperrors.ErrConflict) {
		// created concurrently by another sign-in
		account, err = s.store.GetAccountByEmail(ctx, identity.Email)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.logger.WithAccountID(account.ID).Info("Federated account registered")
	return s.session(account)
}

// ChangePassword replaces a local account's password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if current == "" || next == "" {
		return apperrors.Validation("Current and new password are required")
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return storeError(err)
	}
	if account.PasswordHash == nil {
		return apperrors.Validation("Password sign-in is not enabled for this account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(current)); err != nil {
		return apperrors.Unauthorized("Current password is incorrect")
	}

	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return storeError(err)
	}

	s.logger.WithAccountID(accountID).Info("Password changed")
	return nil
}

// UpdateProfile applies the non-empty fields of an update
func (s *Service) UpdateProfile(ctx context.Context, accountID string, in ProfileUpdate) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		account.Name = name
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		account.Phone = phone
	}
	if strings.TrimSpace(in.Email) != "" {
		email, err := normalizeEmail(in.Email)
		if err != nil {
			return nil, err
		}
		if email != account.Email && account.IsFederated() {
			return nil, apperrors.Validation("Email of a Google account cannot be changed")
		}
		account.Email = email
	}
	if in.NewPassword != "" {
		if account.IsFederated() {
			return nil, apperrors.Validation("Password sign-in is not enabled for this account")
		}
		hash, err := s.hash(in.NewPassword)
		if err != nil {
			return nil, err
		}
		account.PasswordHash = hash
	}

	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return nil, storeError(err)
	}
	return account, nil
}

// Profile returns an account
func (s *Service) Profile(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	return account, nil
}

// PlanView returns an account's plan and remaining queries
func (s *Service) PlanView(ctx context.Context, accountID string) (models.QuotaView, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return models.QuotaView{}, storeError(err)
	}
	return account.Quota.View(), nil
}
