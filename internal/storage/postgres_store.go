package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

// Migrate executes a schema script as one statement batch.
func (p *PostgresStore) Migrate(ctx context.Context, script string) error {
	_, err := p.db.ExecContext(ctx, script)
	return err
}

const userColumns = `id, name, email, password_hash, phone, role, lat, lng, available, rating, rating_count,
	completed_jobs, service_radius_km, specialties, hourly_rate, monthly_rate, yearly_rate, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                                  models.User
		role, specialties                  string
		lat, lng                           sql.NullFloat64
		available                          bool
		rating, radius, hourly, monthly, y float64
		ratingCount, completed             int
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &role, &lat, &lng, &available,
		&rating, &ratingCount, &completed, &radius, &specialties, &hourly, &monthly, &y, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if u.Role == models.RoleMechanic {
		m := &models.MechanicProfile{
			Available:       available,
			Rating:          rating,
			RatingCount:     ratingCount,
			CompletedJobs:   completed,
			ServiceRadiusKm: radius,
			HourlyRate:      hourly,
			MonthlyRate:     monthly,
			YearlyRate:      y,
		}
		if lat.Valid && lng.Valid {
			m.Loc = &models.Coord{Lat: lat.Float64, Lng: lng.Float64}
		}
		if specialties != "" {
			m.Specialties = strings.Split(specialties, ",")
		}
		u.Mechanic = m
	}
	return &u, nil
}

// userArgs flattens a user into the column order of userColumns.
func userArgs(u *models.User) []any {
	var (
		lat, lng                           sql.NullFloat64
		available                          bool
		rating, radius, hourly, monthly, y float64
		ratingCount, completed             int
		specialties                        string
	)
	if m := u.Mechanic; m != nil {
		if m.Loc != nil {
			lat = sql.NullFloat64{Float64: m.Loc.Lat, Valid: true}
			lng = sql.NullFloat64{Float64: m.Loc.Lng, Valid: true}
		}
		available, rating, ratingCount, completed = m.Available, m.Rating, m.RatingCount, m.CompletedJobs
		radius, hourly, monthly, y = m.ServiceRadiusKm, m.HourlyRate, m.MonthlyRate, m.YearlyRate
		specialties = strings.Join(m.Specialties, ",")
	}
	return []any{u.ID, u.Name, u.Email, u.PasswordHash, u.Phone, string(u.Role), lat, lng, available, rating,
		ratingCount, completed, radius, specialties, hourly, monthly, y, u.CreatedAt, u.UpdatedAt}
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO users(`+userColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`, userArgs(u)...)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperr.Conflict("email %s already registered", u.Email)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (p *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user with email %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (p *PostgresStore) ListMechanics(ctx context.Context) ([]*models.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role=$1 ORDER BY id`, string(models.RoleMechanic))
	if err != nil {
		return nil, fmt.Errorf("list mechanics: %w", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mechanic: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateUser(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error) {
	var out *models.User
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		u, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		if err := writeUser(ctx, tx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

func lockUser(ctx context.Context, tx *sql.Tx, id string) (*models.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return u, nil
}

func writeUser(ctx context.Context, tx *sql.Tx, u *models.User) error {
	args := userArgs(u)
	_, err := tx.ExecContext(ctx, `UPDATE users SET name=$2, email=$3, password_hash=$4, phone=$5, role=$6,
		lat=$7, lng=$8, available=$9, rating=$10, rating_count=$11, completed_jobs=$12, service_radius_km=$13,
		specialties=$14, hourly_rate=$15, monthly_rate=$16, yearly_rate=$17, updated_at=$18 WHERE id=$1`,
		args[0], args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[8], args[9], args[10],
		args[11], args[12], args[13], args[14], args[15], args[16], args[18])
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

const bookingColumns = `id, customer_id, mechanic_id, status, description, vehicle_type, vehicle_model, lat, lng,
	subscription, price, scheduled_at, created_at, updated_at, accepted_at, completed_at,
	customer_rating, customer_feedback, mechanic_rating, mechanic_feedback`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                              models.Booking
		mechanicID                     sql.NullString
		status, subscription           string
		scheduled, accepted, completed sql.NullTime
		customerRating, mechanicRating sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.CustomerID, &mechanicID, &status, &b.Description, &b.VehicleType, &b.VehicleModel,
		&b.Loc.Lat, &b.Loc.Lng, &subscription, &b.Price, &scheduled, &b.CreatedAt, &b.UpdatedAt, &accepted, &completed,
		&customerRating, &b.CustomerFeedback, &mechanicRating, &b.MechanicFeedback)
	if err != nil {
		return nil, err
	}
	b.MechanicID = mechanicID.String
	b.Status = models.Status(status)
	b.Subscription = models.SubscriptionType(subscription)
	b.ScheduledAt = timePtr(scheduled)
	b.AcceptedAt = timePtr(accepted)
	b.CompletedAt = timePtr(completed)
	b.CustomerRating = intPtr(customerRating)
	b.MechanicRating = intPtr(mechanicRating)
	return &b, nil
}

func bookingArgs(b *models.Booking) []any {
	return []any{b.ID, b.CustomerID, nullString(b.MechanicID), string(b.Status), b.Description, b.VehicleType,
		b.VehicleModel, b.Loc.Lat, b.Loc.Lng, string(b.Subscription), b.Price, nullTime(b.ScheduledAt), b.CreatedAt,
		b.UpdatedAt, nullTime(b.AcceptedAt), nullTime(b.CompletedAt), nullInt(b.CustomerRating), b.CustomerFeedback,
		nullInt(b.MechanicRating), b.MechanicFeedback}
}

func (p *PostgresStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO bookings(`+bookingColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`, bookingArgs(b)...)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := scanBooking(p.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (p *PostgresStore) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, v string) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id", f.CustomerID)
	}
	if f.MechanicID != "" {
		add("mechanic_id", f.MechanicID)
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateBooking(ctx context.Context, id string, fn func(b *models.Booking) error) (*models.Booking, error) {
	var out *models.Booking
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		b, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		if err := writeBooking(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (p *PostgresStore) UpdateBookingWithUser(ctx context.Context, bookingID, userID string, fn func(b *models.Booking, u *models.User) error) (*models.Booking, *models.User, error) {
	var (
		outB *models.Booking
		outU *models.User
	)
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		b, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(b, u); err != nil {
			return err
		}
		if err := writeBooking(ctx, tx, b); err != nil {
			return err
		}
		if err := writeUser(ctx, tx, u); err != nil {
			return err
		}
		outB, outU = b, u
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outB, outU, nil
}

func lockBooking(ctx context.Context, tx *sql.Tx, id string) (*models.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	return b, nil
}

// writeBooking leaves position, customer and created_at alone; they never change.
func writeBooking(ctx context.Context, tx *sql.Tx, b *models.Booking) error {
	_, err := tx.ExecContext(ctx, `UPDATE bookings SET mechanic_id=$2, status=$3, subscription=$4, price=$5,
		updated_at=$6, accepted_at=$7, completed_at=$8, customer_rating=$9, customer_feedback=$10,
		mechanic_rating=$11, mechanic_feedback=$12 WHERE id=$1`,
		b.ID, nullString(b.MechanicID), string(b.Status), string(b.Subscription), b.Price, b.UpdatedAt,
		nullTime(b.AcceptedAt), nullTime(b.CompletedAt), nullInt(b.CustomerRating), b.CustomerFeedback,
		nullInt(b.MechanicRating), b.MechanicFeedback)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return nil
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}
