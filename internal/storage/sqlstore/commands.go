package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"guildwarden/internal/storage"
)

const commandColumns = `id, guild_id, name, description, response, created_by, created_at`

func (s *Store) CreateCustomCommand(ctx context.Context, cmd storage.CustomCommand) (storage.CustomCommand, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = s.now()
	}
	cmd.Name = strings.ToLower(cmd.Name)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_commands (`+commandColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cmd.ID, cmd.GuildID, cmd.Name, cmd.Description, cmd.Response, cmd.CreatedBy, millis(cmd.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.CustomCommand{}, storage.ErrConflict
		}
		return storage.CustomCommand{}, fmt.Errorf("create custom command: %w", err)
	}
	cmd.CreatedAt = fromMillis(millis(cmd.CreatedAt))
	return cmd, nil
}

func (s *Store) GetCustomCommand(ctx context.Context, guildID, name string) (storage.CustomCommand, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+commandColumns+` FROM custom_commands
		WHERE guild_id = $1 AND name = $2`, guildID, strings.ToLower(name))
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CustomCommand{}, storage.ErrNotFound
		}
		return storage.CustomCommand{}, fmt.Errorf("get custom command: %w", err)
	}
	return cmd, nil
}

func (s *Store) ListCustomCommands(ctx context.Context, guildID string) ([]storage.CustomCommand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commandColumns+` FROM custom_commands
		WHERE guild_id = $1
		ORDER BY name`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list custom commands: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var commands []storage.CustomCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan custom command: %w", err)
		}
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

func (s *Store) DeleteCustomCommand(ctx context.Context, guildID, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_commands WHERE guild_id = $1 AND name = $2`, guildID, strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("delete custom command: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanCommand(row scanner) (storage.CustomCommand, error) {
	var cmd storage.CustomCommand
	var created int64
	if err := row.Scan(&cmd.ID, &cmd.GuildID, &cmd.Name, &cmd.Description, &cmd.Response, &cmd.CreatedBy, &created); err != nil {
		return storage.CustomCommand{}, err
	}
	cmd.CreatedAt = fromMillis(created)
	return cmd, nil
}
