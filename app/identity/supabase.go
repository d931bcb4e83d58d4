package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

// SupabaseProvider talks to the GoTrue API under {project}/auth/v1.
type SupabaseProvider struct {
	client  *resty.Client
	baseURL string
}

func NewSupabaseProvider(projectURL, anonKey string) *SupabaseProvider {
	base := strings.TrimRight(projectURL, "/") + "/auth/v1"
	client := resty.New()
	client.SetBaseURL(base)
	client.SetTimeout(15 * time.Second)
	client.SetHeader("apikey", anonKey)
	client.SetHeader("Content-Type", "application/json")
	return &SupabaseProvider{client: client, baseURL: base}
}

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type gotrueSession struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   int        `json:"expires_in"`
	User        gotrueUser `json:"user"`
}

// signup answers with a bare user when confirmation is pending.
type gotrueSignup struct {
	gotrueSession
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e gotrueError) text() string {
	return firstOf(e.ErrorDescription, e.Msg, e.Message, e.Error)
}

func (p *SupabaseProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	var out gotrueSession
	var apiErr gotrueError
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/token")
	if err != nil {
		return Session{}, fmt.Errorf("supabase login: %w", err)
	}
	if resp.StatusCode() == 400 || resp.StatusCode() == 401 {
		return Session{}, ErrInvalidCredentials
	}
	if resp.IsError() {
		return Session{}, fmt.Errorf("supabase login: status %d: %s", resp.StatusCode(), apiErr.text())
	}
	return toSession(out), nil
}

func (p *SupabaseProvider) SignUp(ctx context.Context, name, email, password string) (RegisterResult, error) {
	var out gotrueSignup
	var apiErr gotrueError
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"email":    email,
			"password": password,
			"data":     map[string]string{"name": name},
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/signup")
	if err != nil {
		return RegisterResult{}, fmt.Errorf("supabase signup: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.text()
		if strings.Contains(strings.ToLower(msg), "already registered") {
			return RegisterResult{}, ErrEmailTaken
		}
		return RegisterResult{}, fmt.Errorf("supabase signup: status %d: %s", resp.StatusCode(), msg)
	}
	if out.AccessToken == "" {
		return RegisterResult{
			ConfirmationRequired: true,
			Message:              "Verifique seu email para confirmar a conta",
		}, nil
	}
	sess := toSession(out.gotrueSession)
	return RegisterResult{Session: &sess, Message: "Conta criada com sucesso"}, nil
}

func (p *SupabaseProvider) SignOut(ctx context.Context, token string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		Post("/logout")
	if err != nil {
		return fmt.Errorf("supabase logout: %w", err)
	}
	// An already expired session is as good as revoked.
	if resp.IsError() && resp.StatusCode() != 401 && resp.StatusCode() != 403 {
		return fmt.Errorf("supabase logout: status %d", resp.StatusCode())
	}
	return nil
}

func (p *SupabaseProvider) UpdateUser(ctx context.Context, _ string, upd ProfileUpdate) (models.User, error) {
	if upd.AccessToken == "" {
		return models.User{}, errors.New("supabase profile update needs the access token")
	}
	data := map[string]string{}
	if upd.Name != nil {
		data["name"] = *upd.Name
	}
	if upd.Avatar != nil {
		data["avatar_url"] = *upd.Avatar
	}
	var out gotrueUser
	var apiErr gotrueError
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(upd.AccessToken).
		SetBody(map[string]any{"data": data}).
		SetResult(&out).
		SetError(&apiErr).
		Put("/user")
	if err != nil {
		return models.User{}, fmt.Errorf("supabase profile update: %w", err)
	}
	if resp.IsError() {
		return models.User{}, fmt.Errorf("supabase profile update: status %d: %s", resp.StatusCode(), apiErr.text())
	}
	return toUser(out), nil
}

// AuthorizeURL builds the GoTrue OAuth redirect.
func (p *SupabaseProvider) AuthorizeURL(provider, redirectTo string) (string, error) {
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return p.baseURL + "/authorize?" + q.Encode(), nil
}

func toSession(s gotrueSession) Session {
	exp := time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	return Session{Token: s.AccessToken, ExpiresAt: exp, User: toUser(s.User)}
}

func toUser(u gotrueUser) models.User {
	name, _ := u.UserMetadata["name"].(string)
	if name == "" {
		name, _ = u.UserMetadata["full_name"].(string)
	}
	if name == "" {
		name = strings.Split(u.Email, "@")[0]
	}
	avatar, _ := u.UserMetadata["avatar_url"].(string)
	return models.User{ID: u.ID, Name: name, Email: u.Email, Avatar: avatar}
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return "unknown error"
}
