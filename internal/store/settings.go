package store

import (
	"context"
	"fmt"

	"basegraph.app/autoreply/core/db"
	"basegraph.app/autoreply/internal/settings"
	"github.com/jackc/pgx/v5"
)

const listAutoReplySettingsSQL = `
SELECT name, value
FROM settings
WHERE value IS NOT NULL`

type settingsStore struct {
	conn db.DBTX
}

func newSettingsStore(conn db.DBTX) SettingsStore {
	return &settingsStore{conn: conn}
}

func (s *settingsStore) Load(ctx context.Context) (settings.ResolvedConfig, error) {
	rows, err := s.conn.Query(ctx, listAutoReplySettingsSQL)
	if err != nil {
		return settings.ResolvedConfig{}, fmt.Errorf("listing settings: %w", err)
	}

	values := make(map[string]string)
	var name, value string
	if _, err := pgx.ForEachRow(rows, []any{&name, &value}, func() error {
		values[name] = value
		return nil
	}); err != nil {
		return settings.ResolvedConfig{}, fmt.Errorf("scanning settings: %w", err)
	}

	return settings.New(values), nil
}
