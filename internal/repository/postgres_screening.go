package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type PostgresScreeningRepository struct {
	db *pgxpool.Pool
}

func NewPostgresScreeningRepository(db *pgxpool.Pool) *PostgresScreeningRepository {
	return &PostgresScreeningRepository{
		db: db,
	}
}

func (p *PostgresScreeningRepository) GetByID(ctx context.Context, id int) (*domain.Screening, error) {
	query := `
		SELECT
			s.id,
			s.movie_id,
			s.room_id,
			s.starts_at,
			s.ends_at,
			s.base_price,
			r.seat_codes
		FROM screenings s
		JOIN rooms r ON s.room_id = r.id
		WHERE s.id = $1
	`

	var screening domain.Screening

	err := p.db.QueryRow(ctx, query, id).Scan(
		&screening.ID,
		&screening.MovieID,
		&screening.RoomID,
		&screening.StartsAt,
		&screening.EndsAt,
		&screening.BasePrice,
		&screening.SeatCodes,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &screening, nil
}
