package application

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/internal/domain/repository"
	"github.com/oksasatya/tourauth/internal/infrastructure/memory"
	"github.com/oksasatya/tourauth/pkg/apperror"
)

var errSMTPDown = errors.New("smtp down")

func TestSignup_PendingConfirmationWithMailedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Signup(ctx, SignupInput{Name: " Jonas ", Email: " A@X.com ", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, "Jonas", u.Name)
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.False(t, u.ConfirmedEmail())

	stored := f.stored(t, "a@x.com")
	st, ok := stored.State.(entity.PendingConfirmation)
	require.True(t, ok)
	assert.NotEmpty(t, st.TokenHash)
	assert.NotEqual(t, "pw12345678", stored.PasswordHash)

	require.Equal(t, 1, f.mail.count())
	raw := f.mail.lastToken(t, FlowConfirmEmail)
	assert.NotEqual(t, raw, st.TokenHash)
	assert.Equal(t, st.TokenHash, f.svc.Tokens.Hash(raw))
	assert.Equal(t, "a@x.com", f.mail.msgs[0].To)
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "other1234"})
	ae := requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)
	assert.Contains(t, ae.Details, "passwordConfirm")

	_, err = f.svc.Signup(ctx, SignupInput{Name: "A", Email: "not-an-email", Password: "short", PasswordConfirm: "short"})
	ae = requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)
	assert.Contains(t, ae.Details, "email")
	assert.Contains(t, ae.Details, "password")

	_, err = f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, SignupInput{Name: "B", Email: "A@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	ae = requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)
	assert.Equal(t, "is already in use", ae.Details["email"])
	assert.Equal(t, 1, f.mail.count())
}

func TestPasswordOverBcryptLimit_IsValidationError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wide := strings.Repeat("é", 40)

	_, err := f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: wide, PasswordConfirm: wide})
	ae := requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)
	assert.Contains(t, ae.Details, "password")
	assert.Equal(t, 0, f.mail.count())

	u := f.confirmedUser(t, "b@x.com", "pw12345678")
	_, err = f.svc.UpdatePassword(ctx, u.ID, UpdatePasswordInput{
		PasswordCurrent: "pw12345678",
		PasswordInput:   PasswordInput{Password: wide, PasswordConfirm: wide},
	})
	requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)

	require.NoError(t, f.svc.ForgotPassword(ctx, "b@x.com"))
	raw := f.mail.lastToken(t, FlowResetPassword)
	_, err = f.svc.ResetPassword(ctx, raw, PasswordInput{Password: wide, PasswordConfirm: wide})
	requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)

	fits := strings.Repeat("é", 36)
	_, err = f.svc.ResetPassword(ctx, raw, PasswordInput{Password: fits, PasswordConfirm: fits})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "b@x.com", fits)
	require.NoError(t, err)
}

func TestSignup_DeliveryFailureClearsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mail.failWith(errSMTPDown)

	_, err := f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	requireKind(t, err, apperror.KindDelivery, http.StatusInternalServerError)
	assert.ErrorIs(t, err, errSMTPDown)

	stored := f.stored(t, "a@x.com")
	assert.Equal(t, entity.PendingConfirmation{}, stored.State)
	assert.Contains(t, f.pub.types(), EventDeliveryFailed)

	// the account can recover by asking for a new link
	f.mail.failWith(nil)
	require.NoError(t, f.svc.ResendConfirmation(ctx, "a@x.com"))
	sess, err := f.svc.ConfirmEmail(ctx, f.mail.lastToken(t, FlowConfirmEmail))
	require.NoError(t, err)
	assert.True(t, sess.User.ConfirmedEmail)
}

func TestRecoveryLinks_FrontendPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Cfg.FrontendBaseURL = "https://app.example.com"

	_, err := f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)
	text := f.mail.msgs[0].Text
	assert.Contains(t, text, "https://app.example.com/confirm-email/")
	assert.NotContains(t, text, "/api/v1/")
	assert.NotContains(t, text, "PATCH")
}

func TestResendConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ResendConfirmation(ctx, "nobody@x.com")
	requireKind(t, err, apperror.KindNotFound, http.StatusNotFound)

	_, err = f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)
	first := f.mail.lastToken(t, FlowConfirmEmail)

	require.NoError(t, f.svc.ResendConfirmation(ctx, "a@x.com"))
	second := f.mail.lastToken(t, FlowConfirmEmail)
	assert.NotEqual(t, first, second)

	_, err = f.svc.ConfirmEmail(ctx, first)
	requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)
	_, err = f.svc.ConfirmEmail(ctx, second)
	require.NoError(t, err)

	err = f.svc.ResendConfirmation(ctx, "a@x.com")
	requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)
}

func TestConfirmEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)
	raw := f.mail.lastToken(t, FlowConfirmEmail)
	before := f.stored(t, "a@x.com")

	for _, bad := range []string{"", "deadbeef", strings.Repeat("0", 64), raw[:63] + "x"} {
		_, err = f.svc.ConfirmEmail(ctx, bad)
		ae := requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)
		assert.Equal(t, "Token is invalid or has expired", ae.Message)
	}
	assert.Equal(t, before.State, f.stored(t, "a@x.com").State)

	sess, err := f.svc.ConfirmEmail(ctx, raw)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.True(t, sess.User.ConfirmedEmail)

	after := f.stored(t, "a@x.com")
	assert.Equal(t, entity.Active{}, after.State)
	assert.True(t, after.ConfirmedEmail())

	_, err = f.svc.ConfirmEmail(ctx, raw)
	requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)
}

func TestLogin_GenericCredentialsError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")

	_, errUnknown := f.svc.Login(ctx, "nobody@x.com", "pw12345678")
	_, errWrong := f.svc.Login(ctx, "a@x.com", "wrong-password")

	a := requireKind(t, errUnknown, apperror.KindAuthentication, http.StatusUnauthorized)
	b := requireKind(t, errWrong, apperror.KindAuthentication, http.StatusUnauthorized)
	assert.Equal(t, MsgIncorrectCredentials, a.Message)
	assert.Equal(t, a.Message, b.Message)

	_, err := f.svc.Login(ctx, "", "")
	requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)
}

func TestLogin_UnconfirmedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@x.com", "pw12345678")
	ae := requireKind(t, err, apperror.KindAccountState, http.StatusLocked)
	assert.Equal(t, MsgEmailNotConfirmed, ae.Message)

	_, err = f.svc.Login(ctx, "a@x.com", "wrong-password")
	requireKind(t, err, apperror.KindAuthentication, http.StatusUnauthorized)

	_, ok := f.stored(t, "a@x.com").State.(entity.PendingConfirmation)
	assert.True(t, ok)
}

func TestLogin_LockoutAndUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")
	mails := f.mail.count()

	for i := 1; i <= 3; i++ {
		_, err := f.svc.Login(ctx, "a@x.com", "wrong-password")
		requireKind(t, err, apperror.KindAuthentication, http.StatusUnauthorized)
		assert.Equal(t, i, f.stored(t, "a@x.com").LoginAttempts)
	}
	locked := f.stored(t, "a@x.com")
	assert.True(t, locked.IsLocked())
	assert.True(t, locked.ConfirmedEmail())
	assert.Equal(t, mails, f.mail.count())

	// correct password is not even checked while locked
	_, err := f.svc.Login(ctx, "a@x.com", "pw12345678")
	ae := requireKind(t, err, apperror.KindAccountState, http.StatusLocked)
	assert.Equal(t, MsgAccountLocked, ae.Message)
	assert.Equal(t, mails+1, f.mail.count())
	stale := f.mail.lastToken(t, FlowUnlock)

	_, err = f.svc.Login(ctx, "a@x.com", "wrong-password")
	requireKind(t, err, apperror.KindAccountState, http.StatusLocked)
	assert.Equal(t, mails+2, f.mail.count())
	fresh := f.mail.lastToken(t, FlowUnlock)
	assert.Equal(t, 3, f.stored(t, "a@x.com").LoginAttempts)

	_, err = f.svc.Unlock(ctx, stale)
	requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)
	assert.True(t, f.stored(t, "a@x.com").IsLocked())

	sess, err := f.svc.Unlock(ctx, fresh)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	unlocked := f.stored(t, "a@x.com")
	assert.Equal(t, 0, unlocked.LoginAttempts)
	assert.Equal(t, entity.Active{}, unlocked.State)

	_, err = f.guard.Authenticate(ctx, sess.Token)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@x.com", "pw12345678")
	require.NoError(t, err)

	assert.Subset(t, f.pub.types(), []EventType{EventAccountLocked, EventUnlockIssued, EventAccountUnlocked})
}

func TestLogin_LockedDeliveryFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")
	for i := 0; i < 3; i++ {
		_, _ = f.svc.Login(ctx, "a@x.com", "wrong-password")
	}

	f.mail.failWith(errSMTPDown)
	_, err := f.svc.Login(ctx, "a@x.com", "pw12345678")
	requireKind(t, err, apperror.KindDelivery, http.StatusInternalServerError)
	assert.Equal(t, entity.Locked{EmailConfirmed: true}, f.stored(t, "a@x.com").State)
}

func TestLogin_SuccessResetsAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")

	for i := 0; i < 2; i++ {
		_, _ = f.svc.Login(ctx, "a@x.com", "wrong-password")
	}
	assert.Equal(t, 2, f.stored(t, "a@x.com").LoginAttempts)

	sess, err := f.svc.Login(ctx, "A@X.COM", "pw12345678")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", sess.User.Email)
	assert.Equal(t, 0, f.stored(t, "a@x.com").LoginAttempts)
	assert.Equal(t, sess.IssuedAt.Add(2*time.Hour), sess.CookieExpiresAt)
}

// lockAfterRead locks the account right after Login reads it, as a
// concurrent run of failed attempts would.
type lockAfterRead struct {
	*memory.UserRepository
}

func (r lockAfterRead) FindByEmail(ctx context.Context, email string, opts ...repository.LoadOption) (*entity.User, error) {
	u, err := r.UserRepository.FindByEmail(ctx, email, opts...)
	if err == nil {
		_, err = r.UserRepository.Lock(ctx, u.ID)
	}
	return u, err
}

func TestLogin_SuccessDoesNotUndoConcurrentLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")
	_, _ = f.svc.Login(ctx, "a@x.com", "wrong-password")
	mails := f.mail.count()

	f.svc.Repo = lockAfterRead{f.repo}
	_, err := f.svc.Login(ctx, "a@x.com", "pw12345678")
	ae := requireKind(t, err, apperror.KindAccountState, http.StatusLocked)
	assert.Equal(t, MsgAccountLocked, ae.Message)

	stored := f.stored(t, "a@x.com")
	assert.True(t, stored.IsLocked())
	assert.Equal(t, 1, stored.LoginAttempts)
	assert.Equal(t, mails+1, f.mail.count())
	f.mail.lastToken(t, FlowUnlock)
	assert.NotContains(t, f.pub.types(), EventLoginSucceeded)
}

func TestLogin_FailureLockKeepsConcurrentPasswordChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.confirmedUser(t, "a@x.com", "pw12345678")
	for i := 0; i < 2; i++ {
		_, _ = f.svc.Login(ctx, "a@x.com", "wrong-password")
	}

	// the password changes between the failing request's read and its lock
	f.svc.Repo = changeAfterRead{UserRepository: f.repo, hash: u.PasswordHash + "x"}
	_, err := f.svc.Login(ctx, "a@x.com", "wrong-password")
	requireKind(t, err, apperror.KindAuthentication, http.StatusUnauthorized)

	stored := f.stored(t, "a@x.com")
	assert.True(t, stored.IsLocked())
	assert.Equal(t, u.PasswordHash+"x", stored.PasswordHash)
}

type changeAfterRead struct {
	*memory.UserRepository
	hash string
}

func (r changeAfterRead) FindByEmail(ctx context.Context, email string, opts ...repository.LoadOption) (*entity.User, error) {
	u, err := r.UserRepository.FindByEmail(ctx, email, opts...)
	if err != nil {
		return nil, err
	}
	cp := *u
	cp.PasswordHash = r.hash
	return u, r.UserRepository.Save(ctx, &cp, repository.SaveOptions{SkipValidation: true})
}

func TestLogin_UnconfirmedLockKeepsConfirmationFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = f.svc.Login(ctx, "a@x.com", "wrong-password")
	}
	assert.Equal(t, entity.Locked{EmailConfirmed: false}, f.stored(t, "a@x.com").State)

	_, err = f.svc.Login(ctx, "a@x.com", "pw12345678")
	requireKind(t, err, apperror.KindAccountState, http.StatusLocked)
	sess, err := f.svc.Unlock(ctx, f.mail.lastToken(t, FlowUnlock))
	require.NoError(t, err)
	assert.True(t, sess.User.ConfirmedEmail)
}

func TestForgotPassword_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ForgotPassword(ctx, "nobody@x.com")
	ae := requireKind(t, err, apperror.KindNotFound, http.StatusNotFound)
	assert.Equal(t, MsgNoUserWithEmail, ae.Message)

	_, err = f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)
	err = f.svc.ForgotPassword(ctx, "a@x.com")
	requireKind(t, err, apperror.KindAccountState, http.StatusLocked)
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	raw := f.mail.lastToken(t, FlowResetPassword)
	st, ok := f.stored(t, "a@x.com").State.(entity.PendingReset)
	require.True(t, ok)
	assert.Equal(t, f.clock.now().Add(10*time.Minute), st.ExpiresAt)

	sess, err := f.svc.ResetPassword(ctx, raw, PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	stored := f.stored(t, "a@x.com")
	assert.Equal(t, entity.Active{}, stored.State)
	assert.Equal(t, f.clock.now(), stored.PasswordChangedAt)

	_, err = f.svc.ResetPassword(ctx, raw, PasswordInput{Password: "another123", PasswordConfirm: "another123"})
	requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)

	_, err = f.svc.Login(ctx, "a@x.com", "pw12345678")
	requireKind(t, err, apperror.KindAuthentication, http.StatusUnauthorized)
	_, err = f.svc.Login(ctx, "a@x.com", "newpass123")
	require.NoError(t, err)
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	raw := f.mail.lastToken(t, FlowResetPassword)

	f.clock.advance(10 * time.Minute)
	_, err := f.svc.ResetPassword(ctx, raw, PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"})
	requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)
	assert.Equal(t, entity.Active{}, f.stored(t, "a@x.com").State)

	_, err = f.svc.Login(ctx, "a@x.com", "pw12345678")
	require.NoError(t, err)
}

func TestResetPassword_ReissueReplacesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	first := f.mail.lastToken(t, FlowResetPassword)
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	second := f.mail.lastToken(t, FlowResetPassword)

	_, err := f.svc.ResetPassword(ctx, first, PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"})
	requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)
	_, err = f.svc.ResetPassword(ctx, second, PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"})
	require.NoError(t, err)
}

func TestResetPassword_InvalidPasswordKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	raw := f.mail.lastToken(t, FlowResetPassword)

	_, err := f.svc.ResetPassword(ctx, raw, PasswordInput{Password: "newpass123", PasswordConfirm: "different1"})
	requireKind(t, err, apperror.KindValidation, http.StatusBadRequest)

	_, err = f.svc.ResetPassword(ctx, raw, PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"})
	require.NoError(t, err)
}

func TestForgotPassword_DeliveryFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")

	f.mail.failWith(errSMTPDown)
	err := f.svc.ForgotPassword(ctx, "a@x.com")
	requireKind(t, err, apperror.KindDelivery, http.StatusInternalServerError)
	assert.Equal(t, entity.Active{}, f.stored(t, "a@x.com").State)
}

func TestUpdatePassword_InvalidatesEarlierSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.confirmedUser(t, "a@x.com", "pw12345678")

	old, err := f.svc.Login(ctx, "a@x.com", "pw12345678")
	require.NoError(t, err)
	_, err = f.guard.Authenticate(ctx, old.Token)
	require.NoError(t, err)

	f.clock.advance(2 * time.Second)
	fresh, err := f.svc.UpdatePassword(ctx, u.ID, UpdatePasswordInput{
		PasswordCurrent: "pw12345678",
		PasswordInput:   PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"},
	})
	require.NoError(t, err)

	_, err = f.guard.Authenticate(ctx, old.Token)
	ae := requireKind(t, err, apperror.KindAuthentication, http.StatusUnauthorized)
	assert.Equal(t, MsgPasswordChanged, ae.Message)

	got, err := f.guard.Authenticate(ctx, fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestUpdatePassword_InvalidatesSessionFromSameSecond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.confirmedUser(t, "a@x.com", "pw12345678")

	old, err := f.svc.Login(ctx, "a@x.com", "pw12345678")
	require.NoError(t, err)

	f.clock.advance(500 * time.Millisecond)
	require.Equal(t, old.IssuedAt.Unix(), f.clock.now().Unix())
	fresh, err := f.svc.UpdatePassword(ctx, u.ID, UpdatePasswordInput{
		PasswordCurrent: "pw12345678",
		PasswordInput:   PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"},
	})
	require.NoError(t, err)

	_, err = f.guard.Authenticate(ctx, old.Token)
	ae := requireKind(t, err, apperror.KindAuthentication, http.StatusUnauthorized)
	assert.Equal(t, MsgPasswordChanged, ae.Message)

	_, err = f.guard.Authenticate(ctx, fresh.Token)
	require.NoError(t, err)
}

func TestUpdatePassword_WrongCurrentAndPendingReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.confirmedUser(t, "a@x.com", "pw12345678")

	_, err := f.svc.UpdatePassword(ctx, u.ID, UpdatePasswordInput{
		PasswordCurrent: "nope-nope",
		PasswordInput:   PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"},
	})
	ae := requireKind(t, err, apperror.KindAuthentication, http.StatusUnauthorized)
	assert.Equal(t, MsgWrongCurrentPassword, ae.Message)

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	raw := f.mail.lastToken(t, FlowResetPassword)
	_, err = f.svc.UpdatePassword(ctx, u.ID, UpdatePasswordInput{
		PasswordCurrent: "pw12345678",
		PasswordInput:   PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.Active{}, f.stored(t, "a@x.com").State)

	_, err = f.svc.ResetPassword(ctx, raw, PasswordInput{Password: "another123", PasswordConfirm: "another123"})
	requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)
}

func TestSweepExpiredResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")
	f.confirmedUser(t, "b@x.com", "pw12345678")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	f.clock.advance(5 * time.Minute)
	require.NoError(t, f.svc.ForgotPassword(ctx, "b@x.com"))
	f.clock.advance(6 * time.Minute)

	n, err := f.svc.SweepExpiredResets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, entity.Active{}, f.stored(t, "a@x.com").State)
	_, pending := f.stored(t, "b@x.com").State.(entity.PendingReset)
	assert.True(t, pending)
}

func TestSecurityEvents_CarryNoSecrets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	raw := f.mail.lastToken(t, FlowResetPassword)
	stored := f.stored(t, "a@x.com")
	hash := stored.State.(entity.PendingReset).TokenHash

	assert.Equal(t, []EventType{EventSignup, EventEmailConfirmed, EventResetRequested}, f.pub.types())
	for _, doc := range f.pub.raw {
		assert.NotContains(t, doc, raw)
		assert.NotContains(t, doc, hash)
		assert.NotContains(t, doc, stored.PasswordHash)
	}
}

func TestEndToEnd_SignupConfirmLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	require.NoError(t, err)
	_, err = f.svc.ConfirmEmail(ctx, f.mail.lastToken(t, FlowConfirmEmail))
	require.NoError(t, err)

	sess, err := f.svc.Login(ctx, "a@x.com", "pw12345678")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.True(t, sess.User.ConfirmedEmail)
}

func TestEndToEnd_LockoutUnlockLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")
	before := f.mail.count()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, "a@x.com", "bad-password")
		requireKind(t, err, apperror.KindAuthentication, http.StatusUnauthorized)
	}
	_, err := f.svc.Login(ctx, "a@x.com", "bad-password")
	requireKind(t, err, apperror.KindAccountState, http.StatusLocked)
	require.Equal(t, before+1, f.mail.count())

	_, err = f.svc.Unlock(ctx, f.mail.lastToken(t, FlowUnlock))
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "a@x.com", "pw12345678")
	require.NoError(t, err)
}

func TestEndToEnd_ForgotResetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirmedUser(t, "a@x.com", "pw12345678")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	raw := f.mail.lastToken(t, FlowResetPassword)
	_, err := f.svc.ResetPassword(ctx, raw, PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"})
	require.NoError(t, err)
	_, err = f.svc.ResetPassword(ctx, raw, PasswordInput{Password: "newpass123", PasswordConfirm: "newpass123"})
	requireKind(t, err, apperror.KindAuthentication, http.StatusBadRequest)
}
