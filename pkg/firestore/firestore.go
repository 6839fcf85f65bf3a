// Package firestore opens the document database holding appointments and
// patients.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/Alijeyrad/ehms_backend/config"
)

var ErrBadCredentials = errors.New("firestore: service account credentials are not valid")

// New builds a client from config. Credentials that fail to parse are fatal.
func New(ctx context.Context, cfg config.FirestoreConfig) (*firestore.Client, error) {
	opts, err := ClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return client, nil
}

// ClientOptions checks the credentials JSON and turns it into client options.
// Empty credentials fall back to application default credentials or the
// emulator.
func ClientOptions(cfg config.FirestoreConfig) ([]option.ClientOption, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	if cfg.CredentialsJSON == "" {
		return nil, nil
	}

	var key struct {
		Type      string `json:"type"`
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(cfg.CredentialsJSON), &key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	if key.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrBadCredentials)
	}
	return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}, nil
}
