package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/repteam/rep/internal/shared"
)

// FirebaseIdentity implements [Identity] with Firebase Authentication.
type FirebaseIdentity struct {
	client *auth.Client
}

// NewFirebaseIdentity initializes a Firebase app for projectID and returns its auth client.
func NewFirebaseIdentity(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirebaseIdentity, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}
	return &FirebaseIdentity{client: client}, nil
}

func (f *FirebaseIdentity) VerifyIDToken(ctx context.Context, token string) (*Caller, error) {
	tok, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	email, _ := tok.Claims["email"].(string)
	return &Caller{UID: tok.UID, Email: email}, nil
}

func (f *FirebaseIdentity) GetUserByEmail(ctx context.Context, email string) (*AuthUser, error) {
	u, err := f.client.GetUserByEmail(ctx, email)
	if auth.IsUserNotFound(err) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", email, err)
	}
	return &AuthUser{UID: u.UID, Email: u.Email, DisplayName: u.DisplayName, Disabled: u.Disabled}, nil
}

func (f *FirebaseIdentity) CreateUser(ctx context.Context, user NewAuthUser) (string, error) {
	params := (&auth.UserToCreate{}).
		Email(user.Email).
		Password(user.Password).
		DisplayName(user.DisplayName).
		EmailVerified(user.EmailVerified)
	if user.UID != "" {
		params = params.UID(user.UID)
	}

	u, err := f.client.CreateUser(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}
	return u.UID, nil
}

func (f *FirebaseIdentity) ResetPassword(ctx context.Context, uid, password string) error {
	params := (&auth.UserToUpdate{}).Password(password).Disabled(false)
	if _, err := f.client.UpdateUser(ctx, uid, params); err != nil {
		return fmt.Errorf("failed to reset password for %s: %w", uid, err)
	}
	return nil
}
