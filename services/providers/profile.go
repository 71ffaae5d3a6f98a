package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/services/users"
	"golang.org/x/oauth2"
)

// AttributeMapping names the profile fields that hold each user attribute.
// Dotted paths descend into nested objects (e.g., "picture.data.url").
type AttributeMapping struct {
	ID      string
	Name    string
	Email   string
	Picture string
}

// ProfileProvider authenticates bearer access tokens by fetching the
// provider's profile endpoint with them
type ProfileProvider struct {
	name       string
	profileURL string
	mapping    AttributeMapping
	users      UserResolver
	client     *http.Client
}

// NewProfileProvider creates a provider for an OAuth 2.0 bearer-token profile API.
// A nil client uses a default client with the given timeout.
func NewProfileProvider(name, profileURL string, mapping AttributeMapping, users UserResolver, client *http.Client, timeout time.Duration) *ProfileProvider {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &ProfileProvider{
		name:       name,
		profileURL: profileURL,
		mapping:    mapping,
		users:      users,
		client:     client,
	}
}

// NewFacebookProvider creates the facebook provider
func NewFacebookProvider(profileURL string, users UserResolver, client *http.Client, timeout time.Duration) *ProfileProvider {
	return NewProfileProvider("facebook", profileURL, AttributeMapping{
		ID: "id", Name: "name", Email: "email", Picture: "picture.data.url",
	}, users, client, timeout)
}

// NewGoogleProvider creates the google provider
func NewGoogleProvider(profileURL string, users UserResolver, client *http.Client, timeout time.Duration) *ProfileProvider {
	return NewProfileProvider("google", profileURL, AttributeMapping{
		ID: "sub", Name: "name", Email: "email", Picture: "picture",
	}, users, client, timeout)
}

// NewGitHubProvider creates the github provider
func NewGitHubProvider(profileURL string, users UserResolver, client *http.Client, timeout time.Duration) *ProfileProvider {
	return NewProfileProvider("github", profileURL, AttributeMapping{
		ID: "id", Name: "name", Email: "email", Picture: "avatar_url",
	}, users, client, timeout)
}

// NewLinkedInProvider creates the linkedin provider
func NewLinkedInProvider(profileURL string, users UserResolver, client *http.Client, timeout time.Duration) *ProfileProvider {
	return NewProfileProvider("linkedin", profileURL, AttributeMapping{
		ID: "sub", Name: "name", Email: "email", Picture: "picture",
	}, users, client, timeout)
}

// Name returns the provider name
func (p *ProfileProvider) Name() string { return p.name }

// Arity returns 1: a single access token
func (p *ProfileProvider) Arity() int { return 1 }

// GetOrCreateUser fetches the profile behind the access token and resolves the user
func (p *ProfileProvider) GetOrCreateUser(ctx context.Context, appID string, credentials ...string) (*models.User, error) {
	if len(credentials) != 1 || strings.TrimSpace(credentials[0]) == "" {
		return nil, fmt.Errorf("%s: access token is required", p.name)
	}

	profile, err := p.fetchProfile(ctx, credentials[0])
	if err != nil {
		return nil, err
	}
	return p.users.GetOrCreate(ctx, appID, profile)
}

func (p *ProfileProvider) fetchProfile(ctx context.Context, accessToken string) (users.Profile, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, p.client), src)
	client.Timeout = p.client.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return users.Profile{}, fmt.Errorf("%s: failed to build profile request: %w", p.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return users.Profile{}, fmt.Errorf("%s: failed to fetch profile: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return users.Profile{}, fmt.Errorf("%s: profile request failed with status %d: %s", p.name, resp.StatusCode, string(body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var data map[string]interface{}
	if err := dec.Decode(&data); err != nil {
		return users.Profile{}, fmt.Errorf("%s: failed to decode profile: %w", p.name, err)
	}

	profile := users.Profile{
		Provider: p.name,
		ID:       lookupString(data, p.mapping.ID),
		Name:     lookupString(data, p.mapping.Name),
		Email:    lookupString(data, p.mapping.Email),
		Picture:  lookupString(data, p.mapping.Picture),
	}
	if profile.ID == "" {
		return users.Profile{}, fmt.Errorf("%s: missing user id in profile response", p.name)
	}
	return profile, nil
}

// lookupString resolves a dotted path to a string; numeric ids are rendered verbatim
func lookupString(data map[string]interface{}, path string) string {
	if path == "" {
		return ""
	}
	var cur interface{} = data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = m[key]
	}
	switch v := cur.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
