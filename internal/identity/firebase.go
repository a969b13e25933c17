// File: internal/identity/firebase.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/config"
	"lingualearn_backend/internal/firebase"
)

// FirebaseProvider implements Provider on top of Firebase Authentication.
// Account operations go through the Identity Toolkit API (the same endpoints
// the mobile SDKs call); sign-out revokes refresh tokens through the Admin SDK.
type FirebaseProvider struct {
	*notifier
	rp     *identitytoolkit.RelyingpartyService
	admin  *firebase.Service
	cfg    *config.Config
	logger *zap.Logger
}

var _ Provider = (*FirebaseProvider)(nil)

// NewFirebaseProvider creates a Provider backed by Firebase Authentication.
func NewFirebaseProvider(cfg *config.Config, admin *firebase.Service, logger *zap.Logger) (*FirebaseProvider, error) {
	svc, err := identitytoolkit.NewService(context.Background(), option.WithAPIKey(cfg.FirebaseWebAPIKey))
	if err != nil {
		logger.Error("Failed to initialize Identity Toolkit service", zap.Error(err))
		return nil, fmt.Errorf("error initializing identity toolkit service: %w", err)
	}

	return &FirebaseProvider{
		notifier: newNotifier(),
		rp:       svc.Relyingparty,
		admin:    admin,
		cfg:      cfg,
		logger:   logger.Named("FirebaseProvider"),
	}, nil
}

// CreateAccount registers a new email/password account with the display name
// set to username, then publishes the resulting identity.
func (p *FirebaseProvider) CreateAccount(ctx context.Context, email, password, username string) (*Identity, *Token, error) {
	resp, err := p.rp.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:       strings.ToLower(strings.TrimSpace(email)),
		Password:    password,
		DisplayName: username,
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Warn("Account creation failed", zap.String("email", email), zap.Error(err))
		return nil, nil, translateToolkitError(err)
	}

	ident := &Identity{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: username,
	}
	token := &Token{
		IDToken:   resp.IdToken,
		ExpiresAt: time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}

	p.logger.Info("Account created", zap.String("uid", ident.UID))
	p.publish(ident)
	return ident, token, nil
}

// PasswordSignIn verifies an email/password pair and publishes the identity.
func (p *FirebaseProvider) PasswordSignIn(ctx context.Context, email, password string) (*Identity, *Token, error) {
	resp, err := p.rp.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             strings.ToLower(strings.TrimSpace(email)),
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Warn("Password sign-in failed", zap.String("email", email), zap.Error(err))
		return nil, nil, translateToolkitError(err)
	}

	ident := &Identity{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		PhotoURL:    resp.PhotoUrl,
	}
	token := &Token{
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}

	p.logger.Info("Password sign-in succeeded", zap.String("uid", ident.UID))
	p.publish(ident)
	return ident, token, nil
}

// OAuthSignIn exchanges an OpenID Connect ID token from the on-device consent
// flow for a Firebase session. An empty assertion means the user aborted the
// consent flow.
func (p *FirebaseProvider) OAuthSignIn(ctx context.Context, provider OAuthProvider, assertion string) (*Identity, *Token, error) {
	if !provider.Valid() {
		return nil, nil, common.ErrBadRequest.WithDetails(fmt.Sprintf("Unsupported OAuth provider %q.", provider))
	}
	if strings.TrimSpace(assertion) == "" {
		p.logger.Info("OAuth sign-in cancelled by user", zap.String("provider", string(provider)))
		return nil, nil, common.ErrCancelled.WithDetails(fmt.Sprintf("%s sign-in was cancelled or returned no token.", provider))
	}

	resp, err := p.rp.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:          fmt.Sprintf("id_token=%s&providerId=%s", assertion, provider.providerID()),
		RequestUri:        "http://localhost",
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Warn("OAuth assertion exchange failed", zap.String("provider", string(provider)), zap.Error(err))
		return nil, nil, translateToolkitError(err)
	}

	ident := &Identity{
		UID:         resp.LocalId,
		Email:       strings.ToLower(resp.Email),
		DisplayName: resp.DisplayName,
		PhotoURL:    resp.PhotoUrl,
	}
	token := &Token{
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}

	p.logger.Info("OAuth sign-in succeeded",
		zap.String("uid", ident.UID),
		zap.String("provider", string(provider)),
	)
	p.publish(ident)
	return ident, token, nil
}

// ExchangeGoogleCode converts a Google OAuth authorization code into an ID
// token suitable for OAuthSignIn. Used by web-style callers that run the
// authorization-code flow instead of producing an ID token on device.
func (p *FirebaseProvider) ExchangeGoogleCode(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", common.ErrCancelled.WithDetails("Google sign-in was cancelled before an authorization code was issued.")
	}
	if p.cfg.GoogleClientID == "" || p.cfg.GoogleClientSecret == "" {
		return "", common.ErrProvider.WithDetails("Google OAuth client is not configured.")
	}

	conf := &oauth2.Config{
		ClientID:     p.cfg.GoogleClientID,
		ClientSecret: p.cfg.GoogleClientSecret,
		RedirectURL:  p.cfg.GoogleRedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     googleoauth.Endpoint,
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		p.logger.Error("Failed to exchange Google auth code for token", zap.Error(err))
		return "", common.ErrProvider.WithDetails("Could not exchange Google authorization code.")
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		p.logger.Error("Google token response carried no id_token")
		return "", common.ErrProvider.WithDetails("Google returned no ID token for the authorization code.")
	}
	return idToken, nil
}

// SignOut clears the provider session. Token revocation is best effort: a
// revocation failure never blocks the local sign-out.
func (p *FirebaseProvider) SignOut(ctx context.Context) error {
	if cur := p.Identity(); cur != nil {
		if err := p.admin.RevokeRefreshTokens(ctx, cur.UID); err != nil {
			p.logger.Warn("Refresh token revocation failed during sign-out", zap.String("uid", cur.UID), zap.Error(err))
		}
	}
	p.publish(nil)
	return nil
}

// credentialMessages are Identity Toolkit error codes that indicate a problem
// with the supplied credentials rather than a provider failure. The API may
// append explanatory text after the code ("WEAK_PASSWORD : ..."), so matching
// is by prefix.
var credentialMessages = []string{
	"EMAIL_EXISTS",
	"EMAIL_NOT_FOUND",
	"INVALID_EMAIL",
	"INVALID_PASSWORD",
	"INVALID_LOGIN_CREDENTIALS",
	"WEAK_PASSWORD",
	"USER_DISABLED",
	"MISSING_PASSWORD",
}

// translateToolkitError normalizes Identity Toolkit failures into the
// adapter error taxonomy.
func translateToolkitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return common.ErrCancelled.WithDetails("The sign-in request was cancelled.")
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, code := range credentialMessages {
			if strings.HasPrefix(gerr.Message, code) {
				return common.ErrCredential.WithDetails(gerr.Message)
			}
		}
		return common.ErrProvider.WithDetails(gerr.Message)
	}
	return common.ErrProvider.WithDetails(err.Error())
}
