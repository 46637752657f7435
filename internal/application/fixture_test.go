package application

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/tourauth/config"
	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/internal/domain/repository"
	"github.com/oksasatya/tourauth/internal/infrastructure/memory"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/helpers"
	"github.com/oksasatya/tourauth/pkg/mailer"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []mailer.Message
	fail error
}

func (r *recordingSender) Send(_ context.Context, msg mailer.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recordingSender) failWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

var tokenInURL = regexp.MustCompile(`/api/v1/auth/([a-z-]+)/([0-9a-f]{64})`)

// lastToken returns the raw token mailed in the most recent message for flow.
func (r *recordingSender) lastToken(t *testing.T, flow string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.msgs, "no mail sent")
	m := tokenInURL.FindStringSubmatch(r.msgs[len(r.msgs)-1].Text)
	require.Len(t, m, 3, "no recovery link in mail")
	require.Equal(t, flow, m[1])
	return m[2]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []SecurityEvent
	raw    []string
}

func (p *recordingPublisher) PublishJSON(_ context.Context, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, body.(SecurityEvent))
	p.raw = append(p.raw, string(b))
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *AccountService
	guard *Guard
	repo  *memory.UserRepository
	mail  *recordingSender
	pub   *recordingPublisher
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		AppName:          "Natours",
		PublicBaseURL:    "http://localhost:8080",
		LockoutThreshold: 3,
	}
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	r := memory.NewUserRepository()
	jwtm := helpers.NewJWTManager("test-secret", time.Hour).WithClock(clock.now)
	mail := &recordingSender{}
	pub := &recordingPublisher{}
	svc := NewAccountService(
		cfg,
		r,
		helpers.NewHasher(bcrypt.MinCost, 4),
		helpers.NewRecoveryTokens(10*time.Minute),
		NewSessionIssuer(jwtm, 2*time.Hour),
		mail,
		pub,
		nil,
		helpers.NewDiscardLogger(),
	).WithClock(clock.now)
	return &fixture{svc: svc, guard: NewGuard(r, jwtm), repo: r, mail: mail, pub: pub, clock: clock}
}

func (f *fixture) stored(t *testing.T, email string) *entity.User {
	t.Helper()
	u, err := f.repo.FindByEmail(context.Background(), email, repository.WithSecrets())
	require.NoError(t, err)
	return u
}

// confirmedUser signs up and confirms email, returning the user.
func (f *fixture) confirmedUser(t *testing.T, email, password string) *entity.User {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, SignupInput{Name: "Test User", Email: email, Password: password, PasswordConfirm: password})
	require.NoError(t, err)
	_, err = f.svc.ConfirmEmail(ctx, f.mail.lastToken(t, FlowConfirmEmail))
	require.NoError(t, err)
	return f.stored(t, email)
}

func requireKind(t *testing.T, err error, kind apperror.Kind, status int) *apperror.Error {
	t.Helper()
	require.Error(t, err)
	ae := apperror.From(err)
	require.Equal(t, kind, ae.Kind, "unexpected error: %v", err)
	require.Equal(t, status, ae.HTTPStatus())
	return ae
}
