package database

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"ddpcore/internal/config"
)

// ConnectFirestore opens a Firestore client for the configured Firebase project.
//
// Service account credentials are optional: without them the SDK falls back to
// application default credentials (or the emulator when FIRESTORE_EMULATOR_HOST is set).
func ConnectFirestore(ctx context.Context, cfg *config.Config) (*firestore.Client, error) {
	if cfg.FirebaseProjectID == "" {
		return nil, fmt.Errorf("missing FIREBASE_PROJECT_ID")
	}

	var opts []option.ClientOption
	if cfg.FirebaseClientEmail != "" && cfg.FirebasePrivateKey != "" {
		// .env files carry the PEM key with escaped newlines
		privateKey := strings.ReplaceAll(cfg.FirebasePrivateKey, "\\n", "\n")
		credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, cfg.FirebaseProjectID, privateKey, cfg.FirebaseClientEmail)
		opts = append(opts, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firestore client: %w", err)
	}

	log.Info().Str("project", cfg.FirebaseProjectID).Msg("Connected to Firestore")
	return client, nil
}
