package shared

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// GoogleScopes are requested for service-account credentials used by Firestore and Firebase Auth.
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/userinfo.email",
}

// GoogleClientOptions builds client options for Google APIs from a service-account key file.
//
// An empty path yields no options so the client libraries fall back to application default credentials.
func GoogleClientOptions(ctx context.Context, credentialsFile string) ([]option.ClientOption, error) {
	if credentialsFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read credentials file: %v", ErrMissingCredentials, err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, GoogleScopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	return []option.ClientOption{option.WithCredentials(creds)}, nil
}
