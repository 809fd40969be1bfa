package salonclient

import (
	"context"
	"net/http"

	"salonfront/pkg/domain"
)

type backendUser struct {
	ID    string      `json:"_id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  backendUser `json:"user"`
}

func (u backendUser) session() domain.Session {
	return domain.Session{
		SubjectID:   u.ID,
		DisplayName: u.Name,
		Email:       u.Email,
		Role:        u.Role,
	}
}

// Login exchanges credentials for a backend token and profile. IssuedAt is
// left zero; the caller stamps it when persisting the session.
func (c *Client) Login(ctx context.Context, email, password string) (domain.Session, string, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", payload, &resp); err != nil {
		return domain.Session{}, "", err
	}
	return resp.User.session(), resp.Token, nil
}

// Register creates an account and signs the visitor in.
func (c *Client) Register(ctx context.Context, name, email, password string) (domain.Session, string, error) {
	payload := map[string]string{"name": name, "email": email, "password": password}
	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", "", payload, &resp); err != nil {
		return domain.Session{}, "", err
	}
	return resp.User.session(), resp.Token, nil
}
