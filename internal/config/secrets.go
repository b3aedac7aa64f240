package config

import (
	"context"
	"strings"
	"unicode/utf8"

	"farmiot/internal/models"

	log "github.com/sirupsen/logrus"
)

// SecretVersion describes the version of a secret the vault would serve.
type SecretVersion struct {
	Name    string
	Enabled bool
}

// Vault is the narrow contract the secret provider needs from a secret store.
type Vault interface {
	// ListSecrets returns the ids of every secret visible to the credentials.
	ListSecrets(ctx context.Context) ([]string, error)
	LatestVersion(ctx context.Context, secretID string) (SecretVersion, error)
	Access(ctx context.Context, versionName string) ([]byte, error)
}

// SecretProvider turns vault secrets into configuration key/value pairs.
type SecretProvider struct {
	vault Vault
}

// NewSecretProvider creates a SecretProvider.
func NewSecretProvider(vault Vault) *SecretProvider {
	return &SecretProvider{vault: vault}
}

// SecretKey rewrites an underscore-segmented secret id to the colon-segmented
// configuration key it populates: service_token -> service:token.
func SecretKey(secretID string) string {
	return strings.ReplaceAll(secretID, "_", ":")
}

// Load fetches every enabled secret. A secret that cannot be resolved,
// fetched or decoded is skipped; only a failure to list secrets at all is
// returned.
func (p *SecretProvider) Load(ctx context.Context) (map[string]string, error) {
	ids, err := p.vault.ListSecrets(ctx)
	if err != nil {
		return nil, models.Upstream(models.SubsystemSecretManager, "list", err)
	}

	data := make(map[string]string, len(ids))
	for _, id := range ids {
		logger := log.WithFields(log.Fields{"subsystem": models.SubsystemSecretManager, "secret": id})

		version, err := p.vault.LatestVersion(ctx, id)
		if err != nil {
			logger.WithError(err).Warn("Skipping secret, version lookup failed")
			continue
		}
		if !version.Enabled {
			logger.Debug("Skipping secret, latest version is not enabled")
			continue
		}

		payload, err := p.vault.Access(ctx, version.Name)
		if err != nil {
			logger.WithError(err).Warn("Skipping secret, access failed")
			continue
		}
		if !utf8.Valid(payload) {
			logger.Warn("Skipping secret, payload is not valid UTF-8")
			continue
		}

		data[SecretKey(id)] = string(payload)
	}

	log.WithField("count", len(data)).Infof("Loaded %d of %d secrets", len(data), len(ids))
	return data, nil
}
