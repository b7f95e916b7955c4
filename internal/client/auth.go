package client

import (
	"context"
	"net/http"

	"github.com/isdelr/vs-recorder/internal/models"
)

// Login exchanges credentials for a token and profile.
func (c *Client) Login(ctx context.Context, username, password string) (models.AuthResponse, error) {
	var resp models.AuthResponse
	err := c.do(ctx, "auth.login", http.MethodPost, "/auth/login",
		models.Credentials{Username: username, Password: password}, &resp)
	if err != nil {
		return models.AuthResponse{}, err
	}
	if resp.Token == "" {
		return models.AuthResponse{}, &Error{Status: http.StatusOK, Message: "Sign-in failed. Please try again.", Err: ErrMissingToken}
	}
	return resp, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, reg models.Registration) (models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, "auth.register", http.MethodPost, "/auth/register", reg, &resp); err != nil {
		return models.AuthResponse{}, err
	}
	if resp.Token == "" {
		return models.AuthResponse{}, &Error{Status: http.StatusOK, Message: "Registration failed. Please try again.", Err: ErrMissingToken}
	}
	return resp, nil
}

// Me fetches the profile of the token's owner.
func (c *Client) Me(ctx context.Context) (models.UserProfile, error) {
	var profile models.UserProfile
	if err := c.do(ctx, "auth.me", http.MethodGet, "/auth/me", nil, &profile); err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

// ForgotPassword asks the API to mail a reset link. The API answers 2xx
// whether or not the account exists.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, "auth.forgot_password", http.MethodPost, "/auth/forgot-password",
		map[string]string{"email": email}, nil)
}
