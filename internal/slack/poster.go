// Package slack mirrors daily reports to a Slack channel.
//
// A post is attempted with the submitting user's own token first so the
// message appears under their name. When that fails, or the user has no
// usable token, the bot token is used instead unless fallback is disabled.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/polycle/member/internal/retry"
)

// Errors.
var (
	ErrNoCredentials = errors.New("no slack credentials")
	ErrNoChannel     = errors.New("no slack channel configured")
)

// Delivery paths.
const (
	ViaUser = "user"
	ViaBot  = "bot"
)

// userTokenPrefix marks a Slack user OAuth token.
const userTokenPrefix = "xoxp-"

// DefaultRateLimit is chat.postMessage's documented budget of roughly one
// message per second per channel.
const DefaultRateLimit = rate.Limit(1)

// Delivery identifies a posted message.
type Delivery struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
	Via     string `json:"via"`
}

// Profile is the identity Slack holds for a user.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"realName"`
	Email    string `json:"email"`
}

// Poster posts messages with a user token and falls back to the bot.
type Poster struct {
	botToken        string
	channel         string
	disableFallback bool
	apiURL          string
	httpClient      *http.Client
	limiter         *rate.Limiter
	policy          retry.Policy
	logger          *zap.Logger
	bot             *slackapi.Client
}

// Option configures a Poster.
type Option func(*Poster)

// WithAPIURL points the client at a different Slack API base URL.
func WithAPIURL(url string) Option {
	return func(p *Poster) {
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		p.apiURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poster) {
		p.httpClient = c
	}
}

// WithRateLimit sets the shared posting rate. rate.Inf disables limiting.
func WithRateLimit(limit rate.Limit) Option {
	return func(p *Poster) {
		p.limiter = rate.NewLimiter(limit, 1)
	}
}

// WithRetryPolicy sets the retry policy for each API call.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Poster) {
		p.policy = policy
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poster) {
		p.logger = l
	}
}

// WithDisableFallback stops a failed user post from being retried as the bot.
func WithDisableFallback(disable bool) Option {
	return func(p *Poster) {
		p.disableFallback = disable
	}
}

// NewPoster returns a Poster for channel. botToken may be empty, in which
// case only user tokens can post.
func NewPoster(botToken, channel string, opts ...Option) *Poster {
	p := &Poster{
		botToken:   strings.TrimSpace(botToken),
		channel:    strings.TrimSpace(channel),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(DefaultRateLimit, 1),
		policy:     retry.DefaultPolicy,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.botToken != "" {
		p.bot = p.client(p.botToken)
	}
	return p
}

func (p *Poster) client(token string) *slackapi.Client {
	opts := []slackapi.Option{slackapi.OptionHTTPClient(p.httpClient)}
	if p.apiURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(p.apiURL))
	}
	return slackapi.New(token, opts...)
}

// Channel returns the configured channel.
func (p *Poster) Channel() string { return p.channel }

// IsUserToken reports whether token looks like a Slack user token.
func IsUserToken(token string) bool {
	token = strings.TrimSpace(token)
	return strings.HasPrefix(token, userTokenPrefix) && len(token) > len(userTokenPrefix)
}

// Post sends text to the configured channel. userToken may be empty.
func (p *Poster) Post(ctx context.Context, text, userToken string) (Delivery, error) {
	if p.channel == "" {
		return Delivery{}, ErrNoChannel
	}
	hasUser := IsUserToken(userToken)
	if !hasUser && p.bot == nil {
		return Delivery{}, ErrNoCredentials
	}

	if hasUser {
		d, err := p.post(ctx, p.client(strings.TrimSpace(userToken)), ViaUser, text)
		if err == nil {
			return d, nil
		}
		if p.disableFallback || p.bot == nil {
			return Delivery{}, fmt.Errorf("posting as user: %w", err)
		}
		p.logger.Warn("user post failed, falling back to bot",
			zap.String("channel", p.channel),
			zap.Error(err),
		)
	}

	d, err := p.post(ctx, p.bot, ViaBot, text)
	if err != nil {
		return Delivery{}, fmt.Errorf("posting as bot: %w", err)
	}
	return d, nil
}

func (p *Poster) post(ctx context.Context, c *slackapi.Client, via, text string) (Delivery, error) {
	return retry.Value(ctx, p.policy, func(ctx context.Context) (Delivery, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return Delivery{}, err
		}
		channel, ts, err := c.PostMessageContext(ctx, p.channel,
			slackapi.MsgOptionText(text, false),
		)
		if err != nil {
			return Delivery{}, err
		}
		return Delivery{Channel: channel, TS: ts, Via: via}, nil
	}, func(attempt int, err error, next time.Duration) {
		p.logger.Warn("retrying slack post",
			zap.String("via", via),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
}

// UserInfo looks up a Slack user with the bot token, or with userToken
// when no bot is configured.
func (p *Poster) UserInfo(ctx context.Context, userID, userToken string) (Profile, error) {
	c := p.bot
	if c == nil && IsUserToken(userToken) {
		c = p.client(strings.TrimSpace(userToken))
	}
	if c == nil {
		return Profile{}, ErrNoCredentials
	}
	u, err := retry.Value(ctx, p.policy, func(ctx context.Context) (*slackapi.User, error) {
		return c.GetUserInfoContext(ctx, userID)
	}, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("looking up slack user %s: %w", userID, err)
	}
	name := u.Profile.DisplayName
	if name == "" {
		name = u.Name
	}
	realName := u.Profile.RealName
	if realName == "" {
		realName = u.RealName
	}
	return Profile{ID: u.ID, Name: name, RealName: realName, Email: u.Profile.Email}, nil
}

// IsAuthError reports whether err is Slack rejecting the token.
func IsAuthError(err error) bool {
	var se slackapi.SlackErrorResponse
	if !errors.As(err, &se) {
		return false
	}
	switch se.Err {
	case "invalid_auth", "not_authed", "token_revoked", "token_expired", "account_inactive":
		return true
	}
	return false
}
