package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"card-room-server/cards"
	"card-room-server/round"
	"card-room-server/roomerrors"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS rooms (
	id            TEXT PRIMARY KEY,
	mode          SMALLINT NOT NULL,
	max_boosts    INT NOT NULL,
	decks         SMALLINT NOT NULL DEFAULT 1,
	current_round INT NOT NULL DEFAULT 1,
	used_cards    JSONB NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_rooms_created_at ON rooms(created_at);
CREATE TABLE IF NOT EXISTS room_players (
	id                    BIGSERIAL PRIMARY KEY,
	conn_id               TEXT NOT NULL,
	room_id               TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	name                  TEXT NOT NULL,
	identifier            TEXT,
	seat                  INT NOT NULL,
	round_number          INT NOT NULL DEFAULT 1,
	cards                 JSONB NOT NULL DEFAULT '[]',
	chant_count           INT NOT NULL DEFAULT 0,
	total_swaps           INT NOT NULL DEFAULT 0,
	folded                BOOLEAN NOT NULL DEFAULT false,
	ready_for_new_round   BOOLEAN NOT NULL DEFAULT false,
	flipped_cards         JSONB NOT NULL DEFAULT '[]',
	completion_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	joined_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (conn_id, room_id, round_number)
);
CREATE INDEX IF NOT EXISTS idx_room_players_room_round ON room_players(room_id, round_number);
`

// PostgresStore persists rooms and round records in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the tables exist.
// If databaseURL is empty, it returns (nil, nil) and the caller should use a MemoryStore.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// CreateRoom inserts a room.
func (s *PostgresStore) CreateRoom(ctx context.Context, room *round.Room) error {
	owned, err := encodeJSON(room.Owned)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rooms (id, mode, max_boosts, decks, current_round, used_cards, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		room.ID, room.Mode, room.MaxBoosts, room.Decks, room.CurrentRound, owned, room.CreatedAt)
	return err
}

// GetRoom loads a room.
func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (*round.Room, error) {
	var r round.Room
	var owned []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, mode, max_boosts, decks, current_round, used_cards, created_at
		FROM rooms WHERE id = $1`, roomID).
		Scan(&r.ID, &r.Mode, &r.MaxBoosts, &r.Decks, &r.CurrentRound, &owned, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	if err != nil {
		return nil, err
	}
	if r.Owned, err = decodeInts(owned); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetOwnedCards replaces the room's owned set.
func (s *PostgresStore) SetOwnedCards(ctx context.Context, roomID string, owned []int) error {
	data, err := encodeJSON(owned)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE rooms SET used_cards = $1::jsonb WHERE id = $2`, data, roomID)
	return err
}

// GetRoundParticipants returns the records of one round keyed by connection id.
func (s *PostgresStore) GetRoundParticipants(ctx context.Context, roomID string, roundNumber int) (map[string]*round.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conn_id, COALESCE(identifier, ''), name, seat, round_number, cards, chant_count, total_swaps,
			folded, ready_for_new_round, flipped_cards, completion_percentage, joined_at
		FROM room_players
		WHERE room_id = $1 AND round_number = $2
		ORDER BY seat ASC`,
		roomID, roundNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]*round.Record)
	for rows.Next() {
		var r round.Record
		var hand, flipped []byte
		if err := rows.Scan(&r.ConnID, &r.Identifier, &r.Name, &r.Seat, &r.Round, &hand, &r.ChantCount, &r.TotalSwaps,
			&r.Folded, &r.Ready, &flipped, &r.Completion, &r.JoinedAt); err != nil {
			return nil, err
		}
		if r.Hand, err = decodeCards(hand); err != nil {
			return nil, err
		}
		if r.Flipped, err = decodeInts(flipped); err != nil {
			return nil, err
		}
		out[r.ConnID] = &r
	}
	return out, rows.Err()
}

// AddParticipant inserts a record; an existing (conn, room, round) row is left alone.
func (s *PostgresStore) AddParticipant(ctx context.Context, roomID string, rec *round.Record) error {
	hand, err := encodeJSON(rec.Hand)
	if err != nil {
		return err
	}
	flipped, err := encodeJSON(rec.Flipped)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO room_players (conn_id, room_id, name, identifier, seat, round_number, cards, chant_count,
			total_swaps, folded, ready_for_new_round, flipped_cards, completion_percentage, joined_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7::jsonb, $8, $9, $10, $11, $12::jsonb, $13, $14)
		ON CONFLICT (conn_id, room_id, round_number) DO NOTHING`,
		rec.ConnID, roomID, rec.Name, rec.Identifier, rec.Seat, rec.Round, hand, rec.ChantCount,
		rec.TotalSwaps, rec.Folded, rec.Ready, flipped, rec.Completion, rec.JoinedAt)
	return err
}

// Column names accepted by setColumn.
const (
	colCards      = "cards"
	colFlipped    = "flipped_cards"
	colChant      = "chant_count"
	colSwaps      = "total_swaps"
	colFolded     = "folded"
	colReady      = "ready_for_new_round"
	colCompletion = "completion_percentage"
)

func (s *PostgresStore) setColumn(ctx context.Context, column, cast string, value any, connID, roomID string, roundNumber int) error {
	q := fmt.Sprintf(`UPDATE room_players SET %s = $1%s WHERE conn_id = $2 AND room_id = $3 AND round_number = $4`, column, cast)
	_, err := s.pool.Exec(ctx, q, value, connID, roomID, roundNumber)
	return err
}

func (s *PostgresStore) SetHand(ctx context.Context, connID, roomID string, roundNumber int, hand []cards.Card) error {
	data, err := encodeJSON(hand)
	if err != nil {
		return err
	}
	return s.setColumn(ctx, colCards, "::jsonb", data, connID, roomID, roundNumber)
}

func (s *PostgresStore) SetFlippedCards(ctx context.Context, connID, roomID string, roundNumber int, flipped []int) error {
	data, err := encodeJSON(flipped)
	if err != nil {
		return err
	}
	return s.setColumn(ctx, colFlipped, "::jsonb", data, connID, roomID, roundNumber)
}

func (s *PostgresStore) SetChantCount(ctx context.Context, connID, roomID string, roundNumber int, n int) error {
	return s.setColumn(ctx, colChant, "", n, connID, roomID, roundNumber)
}

func (s *PostgresStore) SetTotalSwaps(ctx context.Context, connID, roomID string, roundNumber int, n int) error {
	return s.setColumn(ctx, colSwaps, "", n, connID, roomID, roundNumber)
}

func (s *PostgresStore) SetFolded(ctx context.Context, connID, roomID string, roundNumber int, folded bool) error {
	return s.setColumn(ctx, colFolded, "", folded, connID, roomID, roundNumber)
}

func (s *PostgresStore) SetReady(ctx context.Context, connID, roomID string, roundNumber int, ready bool) error {
	return s.setColumn(ctx, colReady, "", ready, connID, roomID, roundNumber)
}

func (s *PostgresStore) SetCompletion(ctx context.Context, connID, roomID string, roundNumber int, pct float64) error {
	return s.setColumn(ctx, colCompletion, "", pct, connID, roomID, roundNumber)
}

// SetIdentifier binds a persistent identifier to the connection's rows in the room.
func (s *PostgresStore) SetIdentifier(ctx context.Context, connID, roomID string, identifier string) error {
	_, err := s.pool.Exec(ctx, `UPDATE room_players SET identifier = NULLIF($1, '') WHERE conn_id = $2 AND room_id = $3`,
		identifier, connID, roomID)
	return err
}

// RekeyParticipant moves the connection's rows in the room to newConnID.
func (s *PostgresStore) RekeyParticipant(ctx context.Context, oldConnID, newConnID, roomID string) error {
	if oldConnID == newConnID {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE room_players SET conn_id = $1 WHERE conn_id = $2 AND room_id = $3`,
		newConnID, oldConnID, roomID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s in room %s", roomerrors.ErrIdentifierConflict, newConnID, roomID)
	}
	return err
}

// uniqueViolation is the SQLSTATE for a UNIQUE constraint failure.
const uniqueViolation = "23505"

// AdvanceRoundRecords copies the current round's roster into fresh rows for the next round
// and clears the owned set, in one transaction.
func (s *PostgresStore) AdvanceRoundRecords(ctx context.Context, roomID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var current int
	err = tx.QueryRow(ctx, `SELECT current_round FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	if err != nil {
		return 0, err
	}
	next := current + 1
	_, err = tx.Exec(ctx, `
		INSERT INTO room_players (conn_id, room_id, name, identifier, seat, round_number, joined_at)
		SELECT conn_id, room_id, name, identifier, seat, $2, joined_at
		FROM room_players WHERE room_id = $1 AND round_number = $3
		ON CONFLICT (conn_id, room_id, round_number) DO NOTHING`,
		roomID, next, current)
	if err != nil {
		return 0, err
	}
	if _, err = tx.Exec(ctx, `UPDATE rooms SET current_round = $1, used_cards = '[]' WHERE id = $2`, next, roomID); err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return next, nil
}

// DeleteRoomsOlderThan removes rooms created before cutoff; their records cascade.
func (s *PostgresStore) DeleteRoomsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM rooms WHERE created_at < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func decodeCards(data []byte) ([]cards.Card, error) {
	out := []cards.Card{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding cards: %w", err)
	}
	return out, nil
}

func decodeInts(data []byte) ([]int, error) {
	out := []int{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding indices: %w", err)
	}
	return out, nil
}
