// Package identity resolves an OAuth access token to the caller's profile.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"ticket-bazaar/internal/apierr"
)

type Profile struct {
	ID      string
	Email   string
	Name    string
	Picture *string
}

type Provider interface {
	Lookup(ctx context.Context, accessToken string) (*Profile, error)
}

// fetchJSON decodes a 200 body into out. A 4xx becomes IdentityAuth carrying
// the upstream message; any other status becomes IdentityMisc.
func fetchJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("identity request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("identity response %s: %w", req.URL.Path, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return apierr.IdentityMisc(map[string]any{"status": resp.StatusCode, "error": err.Error()})
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apierr.IdentityAuth(upstreamMessage(body))
	default:
		var parsed any
		if json.Unmarshal(body, &parsed) != nil {
			parsed = strings.TrimSpace(string(body))
		}
		return apierr.IdentityMisc(map[string]any{"status": resp.StatusCode, "body": parsed})
	}
}

// upstreamMessage digs out {"error": {"message": ...}} or an OAuth error_description.
func upstreamMessage(body []byte) string {
	var payload struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return strings.TrimSpace(string(body))
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	if payload.ErrorDescription != "" {
		return payload.ErrorDescription
	}
	var flat string
	if json.Unmarshal(payload.Error, &flat) == nil && flat != "" {
		return flat
	}
	return strings.TrimSpace(string(body))
}

// GraphProvider talks to a Graph-style API: /me for the profile and
// /me/picture for the avatar.
type GraphProvider struct {
	BaseURL string
	Client  *http.Client
}

func (g *GraphProvider) get(ctx context.Context, accessToken, resource string, params url.Values, out any) error {
	params.Set("access_token", accessToken)
	endpoint := strings.TrimSuffix(g.BaseURL, "/") + "/me"
	if resource != "" {
		endpoint += "/" + resource
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	return fetchJSON(g.Client, req, out)
}

func (g *GraphProvider) Lookup(ctx context.Context, accessToken string) (*Profile, error) {
	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := g.get(ctx, accessToken, "", url.Values{"fields": {"id,email,name"}}, &me); err != nil {
		return nil, err
	}

	var picture struct {
		Data struct {
			URL          string `json:"url"`
			IsSilhouette bool   `json:"is_silhouette"`
		} `json:"data"`
	}
	params := url.Values{"type": {"square"}, "redirect": {"false"}}
	if err := g.get(ctx, accessToken, "picture", params, &picture); err != nil {
		return nil, err
	}

	profile := &Profile{ID: me.ID, Email: me.Email, Name: me.Name}
	if !picture.Data.IsSilhouette && picture.Data.URL != "" {
		profile.Picture = &picture.Data.URL
	}
	return profile, nil
}

// OIDCProvider discovers the issuer's userinfo endpoint and reads the
// standard claims from it.
type OIDCProvider struct {
	userInfoURL string
	client      *http.Client
}

func NewOIDCProvider(ctx context.Context, issuer string, client *http.Client) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider %s: %w", issuer, err)
	}
	endpoint := provider.UserInfoEndpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("OIDC provider %s has no userinfo endpoint", issuer)
	}
	return &OIDCProvider{userInfoURL: endpoint, client: client}, nil
}

func (o *OIDCProvider) Lookup(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var claims struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := fetchJSON(o.client, req, &claims); err != nil {
		return nil, err
	}
	if claims.Sub == "" {
		return nil, apierr.IdentityMisc("userinfo response has no subject")
	}

	profile := &Profile{ID: claims.Sub, Email: claims.Email, Name: claims.Name}
	if claims.Picture != "" {
		profile.Picture = &claims.Picture
	}
	return profile, nil
}
