package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/services/users"
	"github.com/dghubble/oauth1"
)

// DefaultTwitterVerifyURL is the account endpoint used to verify user tokens
const DefaultTwitterVerifyURL = "https://api.twitter.com/1.1/account/verify_credentials.json"

// TwitterProvider verifies OAuth 1.0a user tokens (token + token secret)
type TwitterProvider struct {
	consumerKey    string
	consumerSecret string
	verifyURL      string
	users          UserResolver
	client         *http.Client
}

// NewTwitterProvider creates the twitter provider
func NewTwitterProvider(consumerKey, consumerSecret, verifyURL string, users UserResolver, client *http.Client, timeout time.Duration) *TwitterProvider {
	if verifyURL == "" {
		verifyURL = DefaultTwitterVerifyURL
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &TwitterProvider{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		verifyURL:      verifyURL,
		users:          users,
		client:         client,
	}
}

func (p *TwitterProvider) Name() string { return "twitter" }

// Arity returns 2: the user's oauth token and token secret
func (p *TwitterProvider) Arity() int { return 2 }

// GetOrCreateUser verifies the token pair against the account endpoint and resolves the user
func (p *TwitterProvider) GetOrCreateUser(ctx context.Context, appID string, credentials ...string) (*models.User, error) {
	if len(credentials) != 2 {
		return nil, fmt.Errorf("twitter: expected token and token secret, got %d values", len(credentials))
	}

	endpoint, err := url.Parse(p.verifyURL)
	if err != nil {
		return nil, fmt.Errorf("twitter: invalid verify url: %w", err)
	}
	q := endpoint.Query()
	q.Set("include_email", "true")
	q.Set("skip_status", "true")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("twitter: failed to build request: %w", err)
	}

	resp, err := p.signedClient(ctx, credentials[0], credentials[1]).Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter: failed to verify credentials: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("twitter: verify credentials failed with status %d: %s", resp.StatusCode, string(body))
	}

	var account struct {
		IDStr           string `json:"id_str"`
		Name            string `json:"name"`
		ScreenName      string `json:"screen_name"`
		Email           string `json:"email"`
		ProfileImageURL string `json:"profile_image_url_https"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("twitter: failed to decode account: %w", err)
	}
	if account.IDStr == "" {
		return nil, fmt.Errorf("twitter: missing user id in account response")
	}

	name := account.Name
	if name == "" {
		name = account.ScreenName
	}
	return p.users.GetOrCreate(ctx, appID, users.Profile{
		Provider: p.Name(),
		ID:       account.IDStr,
		Name:     name,
		Email:    account.Email,
		Picture:  account.ProfileImageURL,
	})
}

// signedClient wraps the base client so every request carries an HMAC-SHA1
// OAuth 1.0a Authorization header for the user's token pair
func (p *TwitterProvider) signedClient(ctx context.Context, token, tokenSecret string) *http.Client {
	config := oauth1.NewConfig(p.consumerKey, p.consumerSecret)
	client := config.Client(context.WithValue(ctx, oauth1.HTTPClient, p.client), oauth1.NewToken(token, tokenSecret))
	client.Timeout = p.client.Timeout
	return client
}
