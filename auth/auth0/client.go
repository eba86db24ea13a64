// Package auth0 exchanges Auth0 authorization codes for account identities.
package auth0

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-tenant-auth/auth"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"
)

var _ auth.IdentityProvider = (*Client)(nil)

type Config struct {
	// Domain is the tenant domain, e.g. example.eu.auth0.com. A value with a
	// scheme is used as-is.
	Domain        string
	ClientID      string
	ClientSecret  string
	Audience      string
	// BaseURL is this service's public url; redirect paths are appended to it.
	BaseURL       string
	Scopes        []string
	VerifyIDToken bool
}

// idTokenClaims holds the profile fields read from the id_token.
type idTokenClaims struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client

	providerLock sync.Mutex
	provider     *oidc.Provider
}

type Option func(c *Client)

// WithHTTPClient sets the client used for the token and discovery requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func New(cfg Config, options ...Option) (*Client, error) {
	if cfg.Domain == "" {
		return nil, errors.New("[auth0.New] domain is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[auth0.New] client id is required")
	}
	base := strings.TrimRight(cfg.Domain, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	c := &Client{cfg: cfg, baseURL: base}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Client) oauthConfig(redirectPath string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.baseURL + "/authorize",
			TokenURL:  c.baseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: strings.TrimRight(c.cfg.BaseURL, "/") + redirectPath,
		Scopes:      c.cfg.Scopes,
	}
}

func (c *Client) AuthCodeURL(state, redirectPath string) string {
	var opts []oauth2.AuthCodeOption
	if c.cfg.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", c.cfg.Audience))
	}
	return c.oauthConfig(redirectPath).AuthCodeURL(state, opts...)
}

// Exchange trades the code for tokens and reads the identity from the id_token.
func (c *Client) Exchange(ctx context.Context, code, redirectPath string) (*auth.Identity, error) {
	ctx = c.clientContext(ctx)

	tok, err := c.oauthConfig(redirectPath).Exchange(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.Exchange] token exchange")
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("[Client.Exchange] no id_token in token response")
	}

	claims, err := c.readClaims(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("[Client.Exchange] id_token has no subject")
	}
	return &auth.Identity{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Picture: claims.Picture,
	}, nil
}

func (c *Client) readClaims(ctx context.Context, rawIDToken string) (*idTokenClaims, error) {
	var claims idTokenClaims
	if !c.cfg.VerifyIDToken {
		if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, &claims); err != nil {
			return nil, pkgerrors.Wrap(err, "[Client.readClaims] decode id_token")
		}
		return &claims, nil
	}

	provider, err := c.oidcProvider(ctx)
	if err != nil {
		return nil, err
	}
	idToken, err := provider.Verifier(&oidc.Config{ClientID: c.cfg.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.readClaims] verify id_token")
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.readClaims] id_token claims")
	}
	claims.Subject = idToken.Subject
	return &claims, nil
}

// oidcProvider runs discovery once; a failed discovery is retried on the next call.
func (c *Client) oidcProvider(ctx context.Context) (*oidc.Provider, error) {
	c.providerLock.Lock()
	defer c.providerLock.Unlock()
	if c.provider != nil {
		return c.provider, nil
	}
	provider, err := oidc.NewProvider(ctx, c.baseURL+"/")
	if err != nil {
		return nil, fmt.Errorf("[Client.oidcProvider] discovery: %w", err)
	}
	c.provider = provider
	return provider, nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oidc.ClientContext(ctx, c.httpClient)
}
