package session

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/IshaanNene/pubharvest/internal/fetcher"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// LoginOutcome is the result of one login attempt.
type LoginOutcome int

const (
	LoginSuccess LoginOutcome = iota
	LoginChallenge
	LoginFailure
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginSuccess:
		return "success"
	case LoginChallenge:
		return "challenge_detected"
	case LoginFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Authenticator logs a page in with one credential. The returned error is reserved for
// conditions the caller cannot recover from by rotating, such as a dead session or a
// cancelled context; everything else is reported through the outcome.
type Authenticator interface {
	Login(ctx context.Context, page fetcher.Page, cred Credential) (LoginOutcome, error)
}

// LoginSpec describes a username/password form and how to verify the result.
type LoginSpec struct {
	URL              string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string

	// LoggedOutSelector matches an affordance only shown to anonymous visitors.
	LoggedOutSelector string
	// ProfileMenuSelector matches an affordance only shown to logged-in users.
	ProfileMenuSelector string
	// AuthURLPattern matches locations inside the authenticated area.
	AuthURLPattern *regexp.Regexp
}

// FormLogin fills and submits a login form, pausing after every step.
type FormLogin struct {
	spec    LoginSpec
	pacer   *fetcher.Pacer
	timeout time.Duration
	logger  *slog.Logger
}

// NewFormLogin creates a FormLogin. timeout bounds the wait for the form fields.
func NewFormLogin(spec LoginSpec, pacer *fetcher.Pacer, timeout time.Duration, logger *slog.Logger) *FormLogin {
	return &FormLogin{
		spec:    spec,
		pacer:   pacer,
		timeout: timeout,
		logger:  logger.With("component", "form_login"),
	}
}

// Login implements Authenticator.
func (f *FormLogin) Login(ctx context.Context, page fetcher.Page, cred Credential) (LoginOutcome, error) {
	log := f.logger.With("account", cred.Label())

	if err := page.Navigate(ctx, f.spec.URL); err != nil {
		return classifyStepError(ctx, log, "navigate", err)
	}
	if err := f.pacer.Step(ctx); err != nil {
		return LoginFailure, err
	}
	if challenged(ctx, page) {
		return LoginChallenge, nil
	}

	// The form fields are a required precondition: a timeout fails this attempt.
	if err := page.WaitFor(ctx, f.spec.UsernameSelector, f.timeout); err != nil {
		return classifyStepError(ctx, log, "wait_form", err)
	}
	if err := page.Type(ctx, f.spec.UsernameSelector, cred.Username); err != nil {
		return classifyStepError(ctx, log, "type_username", err)
	}
	if err := f.pacer.Step(ctx); err != nil {
		return LoginFailure, err
	}
	if err := page.Type(ctx, f.spec.PasswordSelector, cred.Password); err != nil {
		return classifyStepError(ctx, log, "type_password", err)
	}
	if err := f.pacer.Step(ctx); err != nil {
		return LoginFailure, err
	}
	if err := page.Click(ctx, f.spec.SubmitSelector); err != nil {
		return classifyStepError(ctx, log, "submit", err)
	}
	if err := f.pacer.Step(ctx); err != nil {
		return LoginFailure, err
	}

	if challenged(ctx, page) {
		return LoginChallenge, nil
	}
	if !Verify(ctx, page, f.spec) {
		log.Warn("login not verified", "url", page.URL())
		return LoginFailure, nil
	}
	log.Info("login verified", "url", page.URL())
	return LoginSuccess, nil
}

// Verify probes the page for signs of an authenticated session. The logged-out affordance
// must be absent and either the profile menu is present or the URL is inside the
// authenticated area.
func Verify(ctx context.Context, page fetcher.Page, spec LoginSpec) bool {
	if spec.LoggedOutSelector != "" && page.Has(ctx, spec.LoggedOutSelector) {
		return false
	}
	if spec.ProfileMenuSelector != "" && page.Has(ctx, spec.ProfileMenuSelector) {
		return true
	}
	return spec.AuthURLPattern != nil && spec.AuthURLPattern.MatchString(page.URL())
}

// AnonymousLogin opens a landing page and only checks that no challenge is shown.
type AnonymousLogin struct {
	url    string
	pacer  *fetcher.Pacer
	logger *slog.Logger
}

// NewAnonymousLogin creates an AnonymousLogin for landingURL.
func NewAnonymousLogin(landingURL string, pacer *fetcher.Pacer, logger *slog.Logger) *AnonymousLogin {
	return &AnonymousLogin{
		url:    landingURL,
		pacer:  pacer,
		logger: logger.With("component", "anonymous_login"),
	}
}

// Login implements Authenticator.
func (a *AnonymousLogin) Login(ctx context.Context, page fetcher.Page, cred Credential) (LoginOutcome, error) {
	if err := page.Navigate(ctx, a.url); err != nil {
		return classifyStepError(ctx, a.logger, "navigate", err)
	}
	if err := a.pacer.Step(ctx); err != nil {
		return LoginFailure, err
	}
	if challenged(ctx, page) {
		return LoginChallenge, nil
	}
	return LoginSuccess, nil
}

func challenged(ctx context.Context, page fetcher.Page) bool {
	html, err := page.HTML(ctx)
	if err != nil {
		return false
	}
	_, ok := fetcher.DetectChallenge(html)
	return ok
}

// classifyStepError maps a failed login step to an outcome. Only a dead session or a
// cancelled context is returned as an error.
func classifyStepError(ctx context.Context, log *slog.Logger, step string, err error) (LoginOutcome, error) {
	switch {
	case ctx.Err() != nil:
		return LoginFailure, ctx.Err()
	case errors.Is(err, types.ErrSessionDied):
		return LoginFailure, err
	case errors.Is(err, types.ErrChallengeDetected):
		log.Warn("challenge during login", "step", step, "error", err)
		return LoginChallenge, nil
	default:
		log.Warn("login step failed", "step", step, "error", err)
		return LoginFailure, nil
	}
}
