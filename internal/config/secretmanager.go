package config

import (
	"context"
	"errors"
	"fmt"
	"path"

	"farmiot/internal/utils"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
)

// SecretManagerVault reads secrets from Google Cloud Secret Manager for one
// project.
type SecretManagerVault struct {
	client  *secretmanager.Client
	project string
}

// NewSecretManagerVault connects with application default credentials.
func NewSecretManagerVault(ctx context.Context, project string) (*SecretManagerVault, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &SecretManagerVault{client: client, project: project}, nil
}

func (v *SecretManagerVault) ListSecrets(ctx context.Context) ([]string, error) {
	it := v.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent: "projects/" + v.project,
	})

	var ids []string
	for {
		secret, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, utils.ClassifyGRPC(err)
		}
		ids = append(ids, path.Base(secret.GetName()))
	}
	return ids, nil
}

func (v *SecretManagerVault) LatestVersion(ctx context.Context, secretID string) (SecretVersion, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", v.project, secretID)
	version, err := v.client.GetSecretVersion(ctx, &secretmanagerpb.GetSecretVersionRequest{Name: name})
	if err != nil {
		return SecretVersion{}, utils.ClassifyGRPC(err)
	}
	return SecretVersion{
		Name:    version.GetName(),
		Enabled: version.GetState() == secretmanagerpb.SecretVersion_ENABLED,
	}, nil
}

func (v *SecretManagerVault) Access(ctx context.Context, versionName string) ([]byte, error) {
	resp, err := v.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: versionName})
	if err != nil {
		return nil, utils.ClassifyGRPC(err)
	}
	return resp.GetPayload().GetData(), nil
}

func (v *SecretManagerVault) Close() error {
	return v.client.Close()
}
