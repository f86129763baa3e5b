package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type PostgresPromotionRepository struct {
	db *pgxpool.Pool
}

func NewPostgresPromotionRepository(db *pgxpool.Pool) *PostgresPromotionRepository {
	return &PostgresPromotionRepository{
		db: db,
	}
}

func (p *PostgresPromotionRepository) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	query := `
		SELECT code, type, value, start_date, end_date, max_usage, current_usage, active
		FROM promotions
		WHERE code = $1
	`

	var (
		promo domain.Promotion
		typ   string
	)

	err := p.db.QueryRow(ctx, query, code).Scan(
		&promo.Code,
		&typ,
		&promo.Value,
		&promo.StartDate,
		&promo.EndDate,
		&promo.MaxUsage,
		&promo.CurrentUsage,
		&promo.Active,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	promo.Type = domain.PromotionType(typ)

	return &promo, nil
}

func (p *PostgresPromotionRepository) IncrementUsage(ctx context.Context, code string) error {
	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		var maxUsage, currentUsage int

		query := `
			SELECT max_usage, current_usage
			FROM promotions
			WHERE code = $1
			FOR UPDATE
		`

		err := tx.QueryRow(ctx, query, code).Scan(&maxUsage, &currentUsage)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRecordNotFound
			}

			return err
		}

		if maxUsage > 0 && currentUsage >= maxUsage {
			return &domain.PromotionRejectedError{Code: code, Reason: domain.PromotionExhausted}
		}

		query = `
			UPDATE promotions
			SET current_usage = current_usage + 1, updated_at = NOW()
			WHERE code = $1
		`

		_, err = tx.Exec(ctx, query, code)
		return err
	})
}
