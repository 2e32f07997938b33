package app

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medquiz-service/internal/auth"
	"medquiz-service/internal/domain"
)

// DefaultLanding is where callbacks go when no safe redirect was supplied.
const DefaultLanding = "/"

// DefaultHandshakeTTL bounds how long a deep-link token stays usable.
const DefaultHandshakeTTL = 10 * time.Minute

const tokenBytes = 16

// HandshakeConfig configures deep links and token policy.
type HandshakeConfig struct {
	BotName        string
	PublicBaseURL  string
	TTL            time.Duration
	AllowTokenless bool
}

// HandshakeCoordinator links a bot identity to a web session through a short-lived token.
//
// Flow: the web client calls BeginHandshake and opens the deep link; the bot receives
// "/start auth_<token>", calls ClaimHandshake and replies with the callback URL; the
// callback hits CompleteHandshake, which consumes the token and resolves the user.
type HandshakeCoordinator struct {
	accounts *AccountService
	tokens   TokenStore
	cfg      HandshakeConfig
	now      func() time.Time
}

func NewHandshakeCoordinator(accounts *AccountService, tokens TokenStore, cfg HandshakeConfig) *HandshakeCoordinator {
	return NewHandshakeCoordinatorWithClock(accounts, tokens, cfg, time.Now)
}

// NewHandshakeCoordinatorWithClock allows deterministic expiry in tests.
func NewHandshakeCoordinatorWithClock(accounts *AccountService, tokens TokenStore, cfg HandshakeConfig, now func() time.Time) *HandshakeCoordinator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultHandshakeTTL
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &HandshakeCoordinator{accounts: accounts, tokens: tokens, cfg: cfg, now: now}
}

// BeginHandshake issues a token for the pending web session and returns the bot deep link.
func (c *HandshakeCoordinator) BeginHandshake(ctx context.Context, webSessionID string) (domain.Handshake, string, error) {
	h, err := c.issue(ctx, webSessionID, 0)
	if err != nil {
		return domain.Handshake{}, "", err
	}
	return h, c.DeepLink(h.Token), nil
}

// DeepLink addresses the bot start command with the token.
func (c *HandshakeCoordinator) DeepLink(token string) string {
	return "https://t.me/" + c.cfg.BotName + "?start=auth_" + token
}

// ClaimHandshake binds the sender's external id to a pending token and returns the callback URL.
func (c *HandshakeCoordinator) ClaimHandshake(ctx context.Context, token string, externalID int64) (string, error) {
	if externalID <= 0 {
		return "", domain.ErrInvalidExternalID
	}
	_, err := c.tokens.Claim(ctx, token, externalID)
	if errors.Is(err, domain.ErrHandshakeNotFound) || errors.Is(err, domain.ErrHandshakeClaimed) {
		return "", domain.ErrHandshakeInvalid
	}
	if err != nil {
		return "", domain.Internal("claim handshake", err)
	}
	return c.CallbackURL(token, externalID, ""), nil
}

// IssueLoginLink creates a token already bound to externalID, for bot-initiated logins.
func (c *HandshakeCoordinator) IssueLoginLink(ctx context.Context, externalID int64, redirect string) (string, error) {
	if externalID <= 0 {
		return "", domain.ErrInvalidExternalID
	}
	h, err := c.issue(ctx, "", externalID)
	if err != nil {
		return "", err
	}
	return c.CallbackURL(h.Token, externalID, redirect), nil
}

// CallbackURL is the web endpoint the bot sends the user back to.
func (c *HandshakeCoordinator) CallbackURL(token string, externalID int64, redirect string) string {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(externalID, 10))
	q.Set("state", token)
	if redirect != "" {
		q.Set("redirect", redirect)
	}
	return c.cfg.PublicBaseURL + "/api/telegram/callback?" + q.Encode()
}

// HandshakeResult is the outcome of a completed callback.
type HandshakeResult struct {
	User     domain.User
	Created  bool
	Redirect string
}

// CompleteHandshake validates the callback and resolves or creates the linked user.
// The token is consumed whether or not it matches.
func (c *HandshakeCoordinator) CompleteHandshake(ctx context.Context, rawExternalID, token, redirect string) (HandshakeResult, error) {
	externalID, err := ParseExternalID(rawExternalID)
	if err != nil {
		return HandshakeResult{}, err
	}

	if token == "" {
		if !c.cfg.AllowTokenless {
			return HandshakeResult{}, domain.ErrHandshakeTokenNeeded
		}
	} else {
		h, err := c.tokens.Consume(ctx, token)
		if errors.Is(err, domain.ErrHandshakeNotFound) {
			return HandshakeResult{}, domain.ErrHandshakeInvalid
		}
		if err != nil {
			return HandshakeResult{}, domain.Internal("consume handshake", err)
		}
		if !h.Claimed() || h.ExternalID != externalID || !c.now().Before(h.ExpiresAt) {
			return HandshakeResult{}, domain.ErrHandshakeInvalid
		}
	}

	user, created, err := c.accounts.EnsureExternalUser(ctx, externalID, ExternalProfile{})
	if err != nil {
		return HandshakeResult{}, err
	}
	return HandshakeResult{User: user, Created: created, Redirect: SafeRedirect(redirect)}, nil
}

func (c *HandshakeCoordinator) issue(ctx context.Context, webSessionID string, externalID int64) (domain.Handshake, error) {
	token, err := auth.RandomHex(tokenBytes)
	if err != nil {
		return domain.Handshake{}, domain.Internal("generate token", err)
	}
	now := c.now()
	h := domain.Handshake{
		Token:        token,
		WebSessionID: webSessionID,
		ExternalID:   externalID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.cfg.TTL),
	}
	if err := c.tokens.Save(ctx, h); err != nil {
		return domain.Handshake{}, domain.Internal("save handshake", err)
	}
	return h, nil
}

// ParseExternalID validates an integer-like messaging identity.
func ParseExternalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrMissingExternalID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidExternalID
	}
	return id, nil
}

// SafeRedirect accepts only local absolute paths; anything else becomes DefaultLanding.
func SafeRedirect(path string) string {
	if path == "" || !strings.HasPrefix(path, "/") || strings.Contains(path, "//") || strings.Contains(path, `\`) {
		return DefaultLanding
	}
	return path
}
