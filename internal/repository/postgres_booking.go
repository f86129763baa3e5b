package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

const bookingColumns = `
	id,
	user_id,
	screening_id,
	seat_codes,
	base_price,
	promo_code,
	discount,
	total_price,
	status,
	status_reason,
	payment_method,
	payment_ref,
	hold_expires_at,
	created_at,
	updated_at,
	version`

type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db: db,
	}
}

func (p *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	query := `
		INSERT INTO bookings (
			id,
			user_id,
			screening_id,
			seat_codes,
			base_price,
			promo_code,
			discount,
			total_price,
			status,
			hold_expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at, version
	`

	err := p.db.QueryRow(
		ctx,
		query,
		booking.ID,
		booking.UserID,
		booking.ScreeningID,
		booking.SeatCodes,
		booking.BasePrice,
		booking.PromoCode,
		booking.Discount,
		booking.TotalPrice,
		string(booking.Status),
		booking.HoldExpiresAt,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt, &booking.Version)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return domain.ErrEditConflict
			case pgerrcode.ForeignKeyViolation:
				return domain.ErrRecordNotFound
			}
		}

		return err
	}

	return nil
}

func (p *PostgresBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE id = $1
	`

	booking, err := scanBooking(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return booking, nil
}

func (p *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	query := `
		UPDATE bookings
		SET seat_codes = $1,
			promo_code = $2,
			discount = $3,
			total_price = $4,
			hold_expires_at = $5,
			updated_at = NOW(),
			version = version + 1
		WHERE id = $6 AND version = $7 AND status = 'pending'
		RETURNING updated_at, version
	`

	err := p.db.QueryRow(
		ctx,
		query,
		booking.SeatCodes,
		booking.PromoCode,
		booking.Discount,
		booking.TotalPrice,
		booking.HoldExpiresAt,
		booking.ID,
		booking.Version,
	).Scan(&booking.UpdatedAt, &booking.Version)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	stored, err := p.GetByID(ctx, booking.ID)
	if err != nil {
		return err
	}

	if stored.Status != domain.BookingStatusPending {
		return &domain.InvalidTransitionError{
			BookingID: booking.ID,
			Current:   stored.Status,
			Attempted: domain.BookingStatusPending,
		}
	}

	return domain.ErrEditConflict
}

func (p *PostgresBookingRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.BookingStatus,
	reason string,
	payment *domain.PaymentDetails) (*domain.Booking, error) {

	var method, ref *string
	if payment != nil {
		m := string(payment.Method)
		method = &m
		ref = &payment.Ref
	}

	query := `
		UPDATE bookings
		SET status = $2,
			status_reason = $3,
			payment_method = COALESCE($4, payment_method),
			payment_ref = COALESCE($5, payment_ref),
			updated_at = NOW(),
			version = version + 1
		WHERE id = $1 AND status = 'pending'
		RETURNING` + bookingColumns

	booking, err := scanBooking(p.db.QueryRow(ctx, query, id, string(to), reason, method, ref))
	if err == nil {
		return booking, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	stored, err := p.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return stored, &domain.InvalidTransitionError{
		BookingID: id,
		Current:   stored.Status,
		Attempted: to,
	}
}

func (p *PostgresBookingRepository) ListExpiredPending(
	ctx context.Context,
	now time.Time,
	limit int) ([]*domain.Booking, error) {

	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND hold_expires_at <= $1
		ORDER BY hold_expires_at
		LIMIT $2
	`

	rows, err := p.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0)

	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}

		bookings = append(bookings, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return bookings, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		booking       domain.Booking
		status        string
		paymentMethod *string
	)

	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.ScreeningID,
		&booking.SeatCodes,
		&booking.BasePrice,
		&booking.PromoCode,
		&booking.Discount,
		&booking.TotalPrice,
		&status,
		&booking.StatusReason,
		&paymentMethod,
		&booking.PaymentRef,
		&booking.HoldExpiresAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
		&booking.Version,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)

	if paymentMethod != nil {
		method := domain.PaymentMethod(*paymentMethod)
		booking.PaymentMethod = &method
	}

	return &booking, nil
}

func runInTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	var txOptions pgx.TxOptions

	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err == nil {
		return tx.Commit(ctx)
	}

	rollbackErr := tx.Rollback(ctx)
	if rollbackErr != nil {
		return errors.Join(err, rollbackErr)
	}

	return err
}
