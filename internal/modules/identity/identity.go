package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the identity-provider account view we care about.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Confirmed bool   `json:"-"`
}

var (
	// ErrNotFound means the provider has no such user.
	ErrNotFound = errors.New("identity: user not found")
	// ErrProvider covers transport failures and unexpected responses.
	ErrProvider = errors.New("identity: provider error")
)

// Provider is the privileged admin surface of the identity service. All
// lookups run with the service key; nothing here trusts client input.
type Provider interface {
	AdminGetUser(ctx context.Context, userID string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, email string) (*User, error)
	ConfirmUser(ctx context.Context, userID string) error
	GenerateSignInLink(ctx context.Context, email, redirectTo string) (string, error)
}

// SubjectFromToken extracts the subject claim from a bearer token without
// verifying the signature. The result is only ever used as a lookup key for
// a privileged AdminGetUser call, which is what actually authenticates.
func SubjectFromToken(raw string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return "", err
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// AdminClient talks to a GoTrue-compatible identity service using the
// service-role key.
type AdminClient struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

func NewAdminClient(baseURL, serviceKey string) *AdminClient {
	return &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

type gotrueUser struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	EmailConfirmedAt string `json:"email_confirmed_at"`
}

func (u *gotrueUser) toUser() *User {
	return &User{
		ID:        u.ID,
		Email:     u.Email,
		Confirmed: u.EmailConfirmedAt != "",
	}
}

func (c *AdminClient) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrProvider, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"msg"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, errResp.Message)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode: %v", ErrProvider, err)
		}
	}
	return resp.StatusCode, nil
}

// AdminGetUser fetches a user by id via the admin API.
func (c *AdminClient) AdminGetUser(ctx context.Context, userID string) (*User, error) {
	var gu gotrueUser
	if _, err := c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(userID), nil, &gu); err != nil {
		return nil, err
	}
	if gu.ID == "" {
		return nil, ErrNotFound
	}
	return gu.toUser(), nil
}

// FindUserByEmail looks up a user by email. Matching is case-insensitive.
func (c *AdminClient) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var list struct {
		Users []gotrueUser `json:"users"`
	}
	path := "/admin/users?per_page=10&filter=" + url.QueryEscape(email)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	for i := range list.Users {
		if strings.EqualFold(list.Users[i].Email, email) {
			return list.Users[i].toUser(), nil
		}
	}
	return nil, ErrNotFound
}

// CreateUser provisions a pre-confirmed account so the magic link signs the
// invitee straight in without an email-confirmation round trip.
func (c *AdminClient) CreateUser(ctx context.Context, email string) (*User, error) {
	var gu gotrueUser
	payload := map[string]interface{}{
		"email":         email,
		"email_confirm": true,
	}
	if _, err := c.do(ctx, http.MethodPost, "/admin/users", payload, &gu); err != nil {
		return nil, err
	}
	if gu.ID == "" {
		return nil, fmt.Errorf("%w: create returned no user", ErrProvider)
	}
	return gu.toUser(), nil
}

// ConfirmUser marks an existing account's email as confirmed. Magic links
// only sign in confirmed accounts, so reused accounts go through here first.
func (c *AdminClient) ConfirmUser(ctx context.Context, userID string) error {
	payload := map[string]interface{}{
		"email_confirm": true,
	}
	_, err := c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(userID), payload, nil)
	return err
}

// GenerateSignInLink asks the provider for a single-use magic link that
// redirects to redirectTo after sign-in.
func (c *AdminClient) GenerateSignInLink(ctx context.Context, email, redirectTo string) (string, error) {
	var out struct {
		ActionLink string `json:"action_link"`
	}
	payload := map[string]interface{}{
		"type":        "magiclink",
		"email":       email,
		"redirect_to": redirectTo,
	}
	if _, err := c.do(ctx, http.MethodPost, "/admin/generate_link", payload, &out); err != nil {
		return "", err
	}
	if out.ActionLink == "" {
		return "", fmt.Errorf("%w: empty action link", ErrProvider)
	}
	return out.ActionLink, nil
}
