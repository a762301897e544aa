package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"guildwarden/internal/storage"
)

const ticketColumns = `id, guild_id, channel_id, user_id, subject, status, created_at, closed_at`

func (s *Store) CreateTicket(ctx context.Context, ticket storage.Ticket) (storage.Ticket, error) {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.now()
	}
	ticket.Status = storage.TicketOpen
	ticket.ClosedAt = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)`,
		ticket.ID, ticket.GuildID, ticket.ChannelID, ticket.UserID, ticket.Subject, string(ticket.Status), millis(ticket.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Ticket{}, storage.ErrConflict
		}
		return storage.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	ticket.CreatedAt = fromMillis(millis(ticket.CreatedAt))
	return ticket, nil
}

func (s *Store) GetTicketByChannel(ctx context.Context, channelID string) (storage.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE channel_id = $1
		ORDER BY created_at DESC LIMIT 1`, channelID)
	return oneTicket(row)
}

func (s *Store) GetOpenTicket(ctx context.Context, guildID, userID string) (storage.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE guild_id = $1 AND user_id = $2 AND status = 'open'`, guildID, userID)
	return oneTicket(row)
}

func (s *Store) ListTickets(ctx context.Context, guildID string) ([]storage.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE guild_id = $1
		ORDER BY created_at DESC`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []storage.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func (s *Store) CloseTicket(ctx context.Context, ticketID string, at time.Time) (storage.Ticket, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = 'closed', closed_at = $1
		WHERE id = $2 AND status = 'open'`, millis(at), ticketID)
	if err != nil {
		return storage.Ticket{}, fmt.Errorf("close ticket: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.Ticket{}, storage.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, ticketID)
	return oneTicket(row)
}

func oneTicket(row *sql.Row) (storage.Ticket, error) {
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Ticket{}, storage.ErrNotFound
		}
		return storage.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func scanTicket(row scanner) (storage.Ticket, error) {
	var ticket storage.Ticket
	var status string
	var created int64
	var closed sql.NullInt64
	if err := row.Scan(&ticket.ID, &ticket.GuildID, &ticket.ChannelID, &ticket.UserID, &ticket.Subject, &status, &created, &closed); err != nil {
		return storage.Ticket{}, err
	}
	ticket.Status = storage.TicketStatus(status)
	ticket.CreatedAt = fromMillis(created)
	if closed.Valid {
		value := fromMillis(closed.Int64)
		ticket.ClosedAt = &value
	}
	return ticket, nil
}
