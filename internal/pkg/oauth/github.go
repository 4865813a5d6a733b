package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

// Profile is the slice of a GitHub account used to provision a login.
type Profile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	Name      string `json:"name"`
}

// GithubClient drives the authorization-code flow and reads the profile
// endpoints needed for first-login account creation.
type GithubClient struct {
	conf    *oauth2.Config
	apiBase string
}

func NewGithubClient(clientID, clientSecret, redirectURI string) *GithubClient {
	return &GithubClient{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPIBase,
	}
}

// AuthCodeURL returns the GitHub authorization redirect for the given state.
func (c *GithubClient) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

// Exchange trades the authorization code for an access token.
func (c *GithubClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.conf.Exchange(ctx, code)
}

// FetchProfile loads the authenticated user. Accounts with a private
// profile email get it filled in from the emails endpoint, preferring the
// primary verified address.
func (c *GithubClient) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	httpClient := c.conf.Client(ctx, token)

	var profile Profile
	if err := c.getJSON(httpClient, "/user", &profile); err != nil {
		return nil, err
	}

	if profile.Email == "" {
		var emails []githubEmail
		if err := c.getJSON(httpClient, "/user/emails", &emails); err == nil {
			profile.Email = pickEmail(emails)
		}
	}
	return &profile, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (c *GithubClient) getJSON(client *http.Client, path string, out interface{}) error {
	resp, err := client.Get(c.apiBase + path)
	if err != nil {
		return fmt.Errorf("github request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github api %s returned %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func pickEmail(emails []githubEmail) string {
	fallback := ""
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
		if fallback == "" && e.Verified {
			fallback = e.Email
		}
	}
	if fallback == "" && len(emails) > 0 {
		fallback = emails[0].Email
	}
	return fallback
}
