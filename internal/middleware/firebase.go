package middleware

import (
	"context"
	"errors"
	"net/http"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/focusguard/backend/internal/models"
)

type FirebaseAuthConfig struct {
	ProjectID       string
	CredentialsJSON string
}

// NewFirebaseAuthClient builds the Admin SDK auth client. Without explicit
// credentials the SDK falls back to Application Default Credentials.
func NewFirebaseAuthClient(ctx context.Context, cfg FirebaseAuthConfig) (*fbauth.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, err
	}
	return app.Auth(ctx)
}

// TokenVerifier is the part of the Firebase auth client the middleware uses.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseAuth verifies Firebase ID tokens and stores the token UID as the
// user ID.
func FirebaseAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse("Authentication unavailable"))
				return
			}

			idToken, msg := bearerToken(r)
			if msg != "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(msg))
				return
			}

			token, err := verifier.VerifyIDToken(r.Context(), idToken)
			if err != nil || token.UID == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), token.UID)))
		})
	}
}
