package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/polycle/member/internal/slack"
)

// Provider names.
const (
	ProviderGoogle = "google"
	ProviderSlack  = "slack"
)

// ErrUnknownProvider is returned for provider names that are not configured.
var ErrUnknownProvider = errors.New("unknown auth provider")

// Identity is who a provider says the user is.
type Identity struct {
	Provider    string
	Name        string
	Email       string
	SlackUserID string
	SlackToken  string
}

// Provider is one OAuth sign-in method.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}

// Providers indexes the configured providers by name.
type Providers map[string]Provider

// Get returns the named provider.
func (p Providers) Get(name string) (Provider, error) {
	if pr, ok := p[name]; ok {
		return pr, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// CallbackURL returns the redirect URL registered for provider.
func CallbackURL(baseURL, provider string) string {
	return strings.TrimRight(baseURL, "/") + "/auth/" + provider + "/callback"
}

// GoogleProvider signs users in with their Google account.
type GoogleProvider struct {
	config     *oauth2.Config
	apiOptions []option.ClientOption
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleEndpoint overrides the OAuth endpoint and the userinfo API base.
func WithGoogleEndpoint(ep oauth2.Endpoint, apiURL string) GoogleOption {
	return func(g *GoogleProvider) {
		g.config.Endpoint = ep
		g.apiOptions = append(g.apiOptions, option.WithEndpoint(apiURL))
	}
}

// NewGoogleProvider returns a Google provider redirecting to baseURL.
func NewGoogleProvider(clientID, clientSecret, baseURL string, opts ...GoogleOption) *GoogleProvider {
	g := &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  CallbackURL(baseURL, ProviderGoogle),
			Scopes: []string{
				oauth2api.OpenIDScope,
				oauth2api.UserinfoEmailScope,
				oauth2api.UserinfoProfileScope,
			},
			Endpoint: google.Endpoint,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GoogleProvider) Name() string { return ProviderGoogle }

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (g *GoogleProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchanging google code: %w", err)
	}
	opts := append([]option.ClientOption{option.WithTokenSource(g.config.TokenSource(ctx, tok))}, g.apiOptions...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("creating userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("reading google userinfo: %w", err)
	}
	if info.Email == "" {
		return Identity{}, errors.New("google account has no email")
	}
	return Identity{Provider: ProviderGoogle, Name: info.Name, Email: info.Email}, nil
}

// UserLookup resolves a Slack user id. Implemented by *slack.Poster.
type UserLookup interface {
	UserInfo(ctx context.Context, userID, userToken string) (slack.Profile, error)
}

// SlackUserScopes are requested for the user token so reports can be
// posted under the user's own name.
var SlackUserScopes = []string{"chat:write", "users:read", "users:read.email"}

// SlackProvider signs users in with Slack OAuth v2.
type SlackProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	authorizeURL string
	httpClient   *http.Client
	users        UserLookup
}

// SlackOption configures a SlackProvider.
type SlackOption func(*SlackProvider)

// WithSlackHTTPClient sets the client used for oauth.v2.access.
func WithSlackHTTPClient(c *http.Client) SlackOption {
	return func(s *SlackProvider) {
		s.httpClient = c
	}
}

// NewSlackProvider returns a Slack provider redirecting to baseURL.
func NewSlackProvider(clientID, clientSecret, baseURL string, users UserLookup, opts ...SlackOption) *SlackProvider {
	s := &SlackProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  CallbackURL(baseURL, ProviderSlack),
		authorizeURL: "https://slack.com/oauth/v2/authorize",
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		users:        users,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlackProvider) Name() string { return ProviderSlack }

func (s *SlackProvider) AuthCodeURL(state string) string {
	v := url.Values{}
	v.Set("client_id", s.clientID)
	v.Set("user_scope", strings.Join(SlackUserScopes, ","))
	v.Set("redirect_uri", s.redirectURL)
	v.Set("state", state)
	return s.authorizeURL + "?" + v.Encode()
}

func (s *SlackProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	resp, err := slackapi.GetOAuthV2ResponseContext(ctx, s.httpClient, s.clientID, s.clientSecret, code, s.redirectURL)
	if err != nil {
		return Identity{}, fmt.Errorf("exchanging slack code: %w", err)
	}
	userID := resp.AuthedUser.ID
	token := resp.AuthedUser.AccessToken
	if userID == "" {
		return Identity{}, errors.New("slack did not return an authed user")
	}

	prof, err := s.users.UserInfo(ctx, userID, token)
	if err != nil {
		return Identity{}, err
	}
	name := prof.RealName
	if name == "" {
		name = prof.Name
	}
	return Identity{
		Provider:    ProviderSlack,
		Name:        name,
		Email:       prof.Email,
		SlackUserID: userID,
		SlackToken:  token,
	}, nil
}
