// Package oauth2provider implements an authgate.Provider that exchanges
// a delegated access token for userinfo via golang.org/x/oauth2,
// grounded on r3e-network-service_layer's OAuth2 client usage.
package oauth2provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/liveframe/live/pkg/authgate"
	"golang.org/x/oauth2"
)

// UserInfo is the shape expected back from the configured userinfo
// endpoint.
type UserInfo struct {
	Subject     string   `json:"sub"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// UserInfoFetcher abstracts the HTTP call to the OAuth2 provider's
// userinfo endpoint so tests can substitute a fake.
type UserInfoFetcher func(ctx context.Context, client *http.Client, endpoint string) (*UserInfo, error)

// Provider exchanges the "accessToken" credential for an AuthContext by
// calling the configured userinfo endpoint.
type Provider struct {
	name            string
	config          *oauth2.Config
	userInfoURL     string
	fetchUserInfo   UserInfoFetcher
}

// New builds an OAuth2 provider. fetch defaults to a plain JSON GET
// against userInfoURL if nil.
func New(config *oauth2.Config, userInfoURL string, fetch UserInfoFetcher) *Provider {
	if fetch == nil {
		fetch = defaultFetchUserInfo
	}
	return &Provider{name: "oauth2", config: config, userInfoURL: userInfoURL, fetchUserInfo: fetch}
}

func (p *Provider) Name() string { return p.name }

// Authenticate treats the "accessToken" credential as an already-issued
// OAuth2 access token and resolves it to an AuthContext via userinfo.
func (p *Provider) Authenticate(ctx context.Context, creds authgate.Credentials) (*authgate.AuthContext, error) {
	accessToken := creds["accessToken"]
	if accessToken == "" {
		return authgate.Anonymous(), nil
	}

	client := p.config.Client(ctx, &oauth2.Token{AccessToken: accessToken})
	info, err := p.fetchUserInfo(ctx, client, p.userInfoURL)
	if err != nil || info == nil || info.Subject == "" {
		return authgate.Anonymous(), nil
	}

	return authgate.NewAuthenticated(info.Subject, info.Roles, info.Permissions, 0), nil
}

func defaultFetchUserInfo(ctx context.Context, client *http.Client, endpoint string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
