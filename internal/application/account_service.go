package application

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/config"
	"github.com/oksasatya/tourauth/internal/domain/entity"
	repo "github.com/oksasatya/tourauth/internal/domain/repository"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/helpers"
	"github.com/oksasatya/tourauth/pkg/mailer"
	tpl "github.com/oksasatya/tourauth/pkg/mailer/templates"
	"github.com/oksasatya/tourauth/pkg/validation"
)

const (
	MsgIncorrectCredentials = "Incorrect email or password"
	MsgEmailNotConfirmed    = "Please confirm your email address before continuing. Check your inbox for the confirmation link."
	MsgAccountLocked        = "Your account has been locked after too many failed login attempts. We sent you an email with a link to unlock it."
	MsgAlreadyConfirmed     = "Your email address is already confirmed"
	MsgNoUserWithEmail      = "There is no user with that email address."
	MsgWrongCurrentPassword = "Your current password is wrong."
)

// Recovery flows, used as URL path segments of the mailed links.
const (
	FlowConfirmEmail  = "confirm-email"
	FlowUnlock        = "unlock"
	FlowResetPassword = "reset-password"
)

type SignupInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,pwd"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type PasswordInput struct {
	Password        string `json:"password" validate:"required,pwd"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type UpdatePasswordInput struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	PasswordInput
}

var inputValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	validation.Configure(v)
	return v
}()

func validateInput(in any) error {
	if err := inputValidator.Struct(in); err != nil {
		return apperror.Validation("Invalid input data", validation.ToDetails(err))
	}
	return nil
}

// UserIndexer receives users whose public profile changed. Implemented by UserService.
type UserIndexer interface {
	IndexUser(ctx context.Context, u *entity.User)
}

// AccountService owns signup, confirmation, login/lockout/unlock and the
// password flows. Every state change goes through the repository; raw
// recovery tokens only ever leave through the mailer.
type AccountService struct {
	Cfg      *config.Config
	Repo     repo.UserRepository
	Hasher   *helpers.Hasher
	Tokens   *helpers.RecoveryTokens
	Sessions *SessionIssuer
	Mail     mailer.Sender
	Events   EventPublisher
	Indexer  UserIndexer
	Logger   *logrus.Logger

	now func() time.Time
}

func NewAccountService(
	cfg *config.Config,
	r repo.UserRepository,
	hasher *helpers.Hasher,
	tokens *helpers.RecoveryTokens,
	sessions *SessionIssuer,
	mail mailer.Sender,
	events EventPublisher,
	indexer UserIndexer,
	logger *logrus.Logger,
) *AccountService {
	return &AccountService{
		Cfg:      cfg,
		Repo:     r,
		Hasher:   hasher,
		Tokens:   tokens,
		Sessions: sessions,
		Mail:     mail,
		Events:   events,
		Indexer:  indexer,
		Logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for expiries and password change stamps.
func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	s.now = now
	return s
}

func (s *AccountService) threshold() int {
	if s.Cfg == nil || s.Cfg.LockoutThreshold < 1 {
		return 3
	}
	return s.Cfg.LockoutThreshold
}

// Signup creates an unconfirmed user and mails the confirmation link.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*entity.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = entity.NormalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	hash, err := s.Hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	raw, digest, err := s.Tokens.Mint()
	if err != nil {
		return nil, apperror.Internal(err)
	}
	u := &entity.User{
		Email:        in.Email,
		Name:         in.Name,
		Role:         entity.RoleUser,
		PasswordHash: hash,
		State:        entity.PendingConfirmation{TokenHash: digest},
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.publish(ctx, EventSignup, u)

	if err := s.notify(ctx, u, tpl.ConfirmEmail, FlowConfirmEmail, raw); err != nil {
		return nil, s.rollback(ctx, u, entity.PendingConfirmation{}, err)
	}
	s.index(ctx, u)
	return u, nil
}

// ResendConfirmation mints a new confirmation link for an unconfirmed account,
// replacing any outstanding one.
func (s *AccountService) ResendConfirmation(ctx context.Context, email string) error {
	u, err := s.Repo.FindByEmail(ctx, email, repo.WithSecrets())
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return apperror.NotFound(MsgNoUserWithEmail)
		}
		return err
	}
	switch u.State.(type) {
	case entity.PendingConfirmation:
	case entity.Locked:
		return apperror.AccountState(MsgAccountLocked)
	default:
		return apperror.Validation(MsgAlreadyConfirmed, nil)
	}
	raw, digest, err := s.Tokens.Mint()
	if err != nil {
		return apperror.Internal(err)
	}
	u.State = entity.PendingConfirmation{TokenHash: digest}
	if err := s.Repo.Save(ctx, u, repo.SaveOptions{SkipValidation: true}); err != nil {
		return err
	}
	if err := s.notify(ctx, u, tpl.ConfirmEmail, FlowConfirmEmail, raw); err != nil {
		return s.rollback(ctx, u, entity.PendingConfirmation{}, err)
	}
	s.publish(ctx, EventConfirmationResent, u)
	return nil
}

// ConfirmEmail consumes a confirmation token and signs the user in.
func (s *AccountService) ConfirmEmail(ctx context.Context, raw string) (*Session, error) {
	u, err := s.findByToken(ctx, repo.TokenConfirmEmail, raw)
	if err != nil {
		return nil, err
	}
	st, ok := u.State.(entity.PendingConfirmation)
	if !ok || !s.Tokens.Matches(raw, st.TokenHash) {
		return nil, apperror.InvalidToken()
	}
	u.State = entity.Active{}
	if err := s.Repo.Save(ctx, u, repo.SaveOptions{}); err != nil {
		return nil, err
	}
	s.publish(ctx, EventEmailConfirmed, u)
	s.index(ctx, u)
	return s.Sessions.Issue(u)
}

// Login checks credentials. Unknown emails and wrong passwords get the same
// answer. A locked account is refused before the password is looked at and
// receives a fresh unlock link on every attempt.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperror.Validation("Please provide email and password!", nil)
	}
	u, err := s.Repo.FindByEmail(ctx, email, repo.WithSecrets())
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.Authentication(MsgIncorrectCredentials)
		}
		return nil, err
	}
	if u.IsLocked() {
		return nil, s.issueUnlock(ctx, u)
	}

	ok, err := s.Hasher.Compare(ctx, u.PasswordHash, password)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, u)
	}
	if !u.ConfirmedEmail() {
		return nil, apperror.AccountState(MsgEmailNotConfirmed)
	}

	reset, err := s.Repo.ResetLoginAttempts(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if !reset {
		// locked by a concurrent failure since u was read
		cur, err := s.Repo.FindByID(ctx, u.ID, repo.WithSecrets())
		if err != nil {
			if apperror.Is(err, apperror.KindNotFound) {
				return nil, apperror.Authentication(MsgIncorrectCredentials)
			}
			return nil, err
		}
		if cur.IsLocked() {
			return nil, s.issueUnlock(ctx, cur)
		}
	}
	u.LoginAttempts = 0
	s.publish(ctx, EventLoginSucceeded, u)
	return s.Sessions.Issue(u)
}

// recordFailure bumps the attempt counter and locks the account once it
// reaches the threshold. It always returns the generic credentials error.
func (s *AccountService) recordFailure(ctx context.Context, u *entity.User) error {
	n, err := s.Repo.IncrementLoginAttempts(ctx, u.ID)
	if err != nil {
		return err
	}
	u.LoginAttempts = n
	s.publish(ctx, EventLoginFailed, u)
	if n >= s.threshold() {
		locked, err := s.Repo.Lock(ctx, u.ID)
		if err != nil {
			return err
		}
		if !locked {
			return apperror.Authentication(MsgIncorrectCredentials)
		}
		u.State = entity.Locked{EmailConfirmed: u.ConfirmedEmail()}
		s.publish(ctx, EventAccountLocked, u)
		s.Logger.WithFields(logrus.Fields{"user_id": u.ID, "attempts": n}).Warn("account locked")
	}
	return apperror.Authentication(MsgIncorrectCredentials)
}

func (s *AccountService) issueUnlock(ctx context.Context, u *entity.User) error {
	prev := u.State.(entity.Locked)
	raw, digest, err := s.Tokens.Mint()
	if err != nil {
		return apperror.Internal(err)
	}
	u.State = entity.Locked{UnlockTokenHash: digest, EmailConfirmed: prev.EmailConfirmed}
	if err := s.Repo.Save(ctx, u, repo.SaveOptions{SkipValidation: true}); err != nil {
		return err
	}
	if err := s.notify(ctx, u, tpl.UnlockAccount, FlowUnlock, raw); err != nil {
		return s.rollback(ctx, u, entity.Locked{EmailConfirmed: prev.EmailConfirmed}, err)
	}
	s.publish(ctx, EventUnlockIssued, u)
	return apperror.AccountState(MsgAccountLocked)
}

// Unlock consumes an unlock token. Following the mailed link proves ownership
// of the address, so the account comes back confirmed.
func (s *AccountService) Unlock(ctx context.Context, raw string) (*Session, error) {
	u, err := s.findByToken(ctx, repo.TokenAccountUnlock, raw)
	if err != nil {
		return nil, err
	}
	st, ok := u.State.(entity.Locked)
	if !ok || !s.Tokens.Matches(raw, st.UnlockTokenHash) {
		return nil, apperror.InvalidToken()
	}
	u.State = entity.Active{}
	u.LoginAttempts = 0
	if err := s.Repo.Save(ctx, u, repo.SaveOptions{}); err != nil {
		return nil, err
	}
	s.publish(ctx, EventAccountUnlocked, u)
	return s.Sessions.Issue(u)
}

// ForgotPassword mails a reset link valid for the configured window.
// Requesting again replaces the outstanding link.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.Repo.FindByEmail(ctx, email, repo.WithSecrets())
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return apperror.NotFound(MsgNoUserWithEmail)
		}
		return err
	}
	switch u.State.(type) {
	case entity.PendingConfirmation:
		return apperror.AccountState(MsgEmailNotConfirmed)
	case entity.Locked:
		return apperror.AccountState(MsgAccountLocked)
	}

	raw, digest, err := s.Tokens.Mint()
	if err != nil {
		return apperror.Internal(err)
	}
	expires := s.Tokens.ResetExpiry(s.now())
	u.State = entity.PendingReset{TokenHash: digest, ExpiresAt: expires}
	if err := s.Repo.Save(ctx, u, repo.SaveOptions{SkipValidation: true}); err != nil {
		return err
	}
	if err := s.notify(ctx, u, tpl.ResetPassword, FlowResetPassword, raw, tpl.WithExpiry(s.now(), expires)); err != nil {
		return s.rollback(ctx, u, entity.Active{}, err)
	}
	s.publish(ctx, EventResetRequested, u)
	return nil
}

// ResetPassword consumes a reset token that has not expired and sets the new
// password. An expired token is cleared on sight.
func (s *AccountService) ResetPassword(ctx context.Context, raw string, in PasswordInput) (*Session, error) {
	u, err := s.findByToken(ctx, repo.TokenPasswordReset, raw)
	if err != nil {
		return nil, err
	}
	st, ok := u.State.(entity.PendingReset)
	if !ok || !s.Tokens.Matches(raw, st.TokenHash) {
		return nil, apperror.InvalidToken()
	}
	now := s.now()
	if st.Expired(now) {
		u.State = entity.Active{}
		if err := s.Repo.Save(context.WithoutCancel(ctx), u, repo.SaveOptions{SkipValidation: true}); err != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Warn("clear expired reset token failed")
		}
		return nil, apperror.InvalidToken()
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	hash, err := s.Hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = now
	u.LoginAttempts = 0
	u.State = entity.Active{}
	if err := s.Repo.Save(ctx, u, repo.SaveOptions{}); err != nil {
		return nil, err
	}
	s.publish(ctx, EventPasswordReset, u)
	return s.Sessions.Issue(u)
}

// UpdatePassword changes the password of a signed-in user. Sessions issued
// before the change stop working.
func (s *AccountService) UpdatePassword(ctx context.Context, userID string, in UpdatePasswordInput) (*Session, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	u, err := s.Repo.FindByID(ctx, userID, repo.WithSecrets())
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.Authentication(MsgUserGone)
		}
		return nil, err
	}
	ok, err := s.Hasher.Compare(ctx, u.PasswordHash, in.PasswordCurrent)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if !ok {
		return nil, apperror.Authentication(MsgWrongCurrentPassword)
	}
	hash, err := s.Hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = s.now()
	if _, pending := u.State.(entity.PendingReset); pending {
		u.State = entity.Active{}
	}
	if err := s.Repo.Save(ctx, u, repo.SaveOptions{}); err != nil {
		return nil, err
	}
	s.publish(ctx, EventPasswordUpdated, u)
	return s.Sessions.Issue(u)
}

// SweepExpiredResets clears reset tokens whose window has closed.
func (s *AccountService) SweepExpiredResets(ctx context.Context) (int64, error) {
	n, err := s.Repo.ClearExpiredResets(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		authMetrics.Add("resets_swept", n)
		s.Logger.WithField("count", n).Info("expired reset tokens cleared")
	}
	return n, nil
}

// RunResetSweeper calls SweepExpiredResets every interval until ctx is done.
func (s *AccountService) RunResetSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepExpiredResets(ctx); err != nil {
				s.Logger.WithError(err).Warn("reset sweep failed")
			}
		}
	}
}

func (s *AccountService) findByToken(ctx context.Context, field repo.TokenField, raw string) (*entity.User, error) {
	if raw == "" {
		return nil, apperror.InvalidToken()
	}
	u, err := s.Repo.FindByTokenHash(ctx, field, s.Tokens.Hash(raw))
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.InvalidToken()
		}
		return nil, err
	}
	return u, nil
}

func (s *AccountService) notify(ctx context.Context, u *entity.User, name, flow, raw string, opts ...tpl.Option) error {
	link := tpl.WithActionURL(s.Cfg.RecoveryURL(flow, raw))
	if s.Cfg.RecoveryLinksArePages() {
		link = tpl.WithActionPage(s.Cfg.RecoveryURL(flow, raw))
	}
	opts = append([]tpl.Option{link}, opts...)
	subject, text, err := tpl.Render(name, tpl.NewEmailData(s.Cfg.AppName, u.Name, u.Email, opts...))
	if err != nil {
		return err
	}
	return s.Mail.Send(ctx, mailer.Message{To: u.Email, Subject: subject, Text: text})
}

// rollback puts back the state held before a token was minted, so the user
// is not left waiting on a link that never arrived. It runs even if the
// request context is already cancelled.
func (s *AccountService) rollback(ctx context.Context, u *entity.User, prev entity.AccountState, cause error) error {
	u.State = prev
	if err := s.Repo.Save(context.WithoutCancel(ctx), u, repo.SaveOptions{SkipValidation: true}); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Error("token rollback failed")
	}
	s.Logger.WithError(cause).WithField("user_id", u.ID).Warn("notification delivery failed")
	s.publish(ctx, EventDeliveryFailed, u)
	return apperror.Delivery(cause)
}

// publish is best effort: a broker outage never fails an account operation.
func (s *AccountService) publish(ctx context.Context, typ EventType, u *entity.User) {
	authMetrics.Add(string(typ), 1)
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishJSON(context.WithoutCancel(ctx), newEvent(typ, u, s.now())); err != nil {
		s.Logger.WithError(err).WithField("event", typ).Warn("publish security event failed")
	}
}

func (s *AccountService) index(ctx context.Context, u *entity.User) {
	if s.Indexer != nil {
		s.Indexer.IndexUser(ctx, u)
	}
}
