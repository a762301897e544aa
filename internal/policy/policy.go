package policy

import (
	"context"
	"errors"

	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
)

// Source reads guild policy snapshots from the server config store.
type Source struct {
	configs storage.ConfigStore
}

var _ moderation.PolicySource = (*Source)(nil)

func NewSource(configs storage.ConfigStore) *Source {
	return &Source{configs: configs}
}

func (s *Source) GetPolicy(ctx context.Context, guildID string) (moderation.Policy, bool, error) {
	cfg, err := s.configs.GetServerConfig(ctx, guildID)
	if errors.Is(err, storage.ErrNotFound) {
		return moderation.Policy{}, false, nil
	}
	if err != nil {
		return moderation.Policy{}, false, err
	}
	return cfg.Policy(), true, nil
}
