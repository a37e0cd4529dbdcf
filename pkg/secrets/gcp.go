package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Accessor reads the latest version of a named secret.
type Accessor interface {
	GetSecret(ctx context.Context, secretName string) (string, error)
}

type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	logger    *logrus.Logger
}

// NewGCPSecretManager uses application default credentials, or the service
// account file at credentialsFile when set.
func NewGCPSecretManager(ctx context.Context, projectID, credentialsFile string, logger *logrus.Logger) (*GCPSecretManager, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

func (g *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, secretName)

	result, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}
	return strings.TrimSpace(string(result.Payload.Data)), nil
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// WithDefault returns the secret, or defaultValue when it cannot be read.
func WithDefault(ctx context.Context, a Accessor, logger *logrus.Logger, secretName, defaultValue string) string {
	if secretName == "" {
		return defaultValue
	}
	value, err := a.GetSecret(ctx, secretName)
	if err != nil || value == "" {
		logger.WithError(err).WithField("secret", secretName).Debug("Failed to get secret, using default")
		return defaultValue
	}
	return value
}

type SecretNames struct {
	APIKey        string `mapstructure:"api_key"`
	JWTKeyName    string `mapstructure:"jwt_key_name"`
	JWTPrivateKey string `mapstructure:"jwt_private_key"`
	DatabaseDSN   string `mapstructure:"database_dsn"`
}

func DefaultSecretNames() SecretNames {
	return SecretNames{
		APIKey:        "rit-api-key",
		JWTKeyName:    "rit-jwt-key-name",
		JWTPrivateKey: "rit-jwt-private-key",
		DatabaseDSN:   "rit-journal-dsn",
	}
}
