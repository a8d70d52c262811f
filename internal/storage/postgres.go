package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"notary-signing-router/internal/domain"
)

var (
	ErrOrderAlreadyAssigned = errors.New("storage: order already assigned to another vendor")
	ErrVendorDoubleBooked   = errors.New("storage: vendor already booked for an overlapping window")
	ErrVendorNotFound       = errors.New("storage: vendor not found")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateOrder inserts o and reports whether it was new. An existing order with the same id is
// left untouched.
func (s *PostgresStore) CreateOrder(ctx context.Context, o domain.SigningOrder) (bool, error) {
	start, end := windowArgs(o.Window)
	lat, lng := pointArgs(o.Location)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signing_orders (id, state, signing_type, loan_type, window_start, window_end, service_tier, lat, lng, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, o.ID, o.State, o.SigningType, o.LoanType, start, end, o.ServiceTier.String(), lat, lng, domain.StatusReceived)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (domain.SigningOrder, error) {
	var (
		o          domain.SigningOrder
		start, end sql.NullTime
		lat, lng   sql.NullFloat64
		tier       string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, signing_type, loan_type, window_start, window_end, service_tier, lat, lng, status, created_at
		FROM signing_orders
		WHERE id = $1
	`, orderID)
	if err := row.Scan(&o.ID, &o.State, &o.SigningType, &o.LoanType, &start, &end, &tier, &lat, &lng, &o.Status, &o.CreatedAt); err != nil {
		return domain.SigningOrder{}, err
	}
	if start.Valid && end.Valid {
		o.Window = domain.TimeWindow{Start: start.Time, End: end.Time}
	}
	if lat.Valid && lng.Valid {
		o.Location = &domain.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	parsed, err := domain.ParseTier(tier)
	if err != nil {
		return domain.SigningOrder{}, fmt.Errorf("order %s: %w", orderID, err)
	}
	o.ServiceTier = parsed
	return o, nil
}

func (s *PostgresStore) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, *string, error) {
	var status domain.OrderStatus
	var vendorID sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT status, assigned_vendor_id FROM signing_orders WHERE id = $1`, orderID)
	if err := row.Scan(&status, &vendorID); err != nil {
		return "", nil, err
	}
	if vendorID.Valid {
		return status, &vendorID.String, nil
	}
	return status, nil, nil
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE signing_orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $3
	`, orderID, status, domain.StatusAssigned)
	return err
}

func (s *PostgresStore) UpsertVendor(ctx context.Context, v domain.Vendor) error {
	availability, err := json.Marshal(v.Availability)
	if err != nil {
		return err
	}
	if v.Availability == nil {
		availability = []byte("[]")
	}
	specializations := make([]string, 0, len(v.Specializations))
	for _, sp := range v.Specializations {
		specializations = append(specializations, string(sp))
	}
	channel := v.Channel
	if channel == "" {
		channel = domain.ChannelSMS
	}
	lat, lng := pointArgs(v.Location)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, phone, channel, licensed_states, ron_authorized, tier, specializations,
		                     performance_score, availability, lat, lng, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			channel = EXCLUDED.channel,
			licensed_states = EXCLUDED.licensed_states,
			ron_authorized = EXCLUDED.ron_authorized,
			tier = EXCLUDED.tier,
			specializations = EXCLUDED.specializations,
			performance_score = EXCLUDED.performance_score,
			availability = EXCLUDED.availability,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, v.ID, v.Name, v.Phone, channel, pq.Array(v.LicensedStates), v.RonAuthorized, v.Tier.String(),
		pq.Array(specializations), v.PerformanceScore, string(availability), lat, lng, v.Active)
	return err
}

func (s *PostgresStore) GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error) {
	row := s.db.QueryRowContext(ctx, vendorSelect+` WHERE id = $1`, vendorID)
	v, err := scanVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vendor{}, ErrVendorNotFound
	}
	return v, err
}

// ListCandidateVendors returns active vendors licensed in state, ordered by id.
func (s *PostgresStore) ListCandidateVendors(ctx context.Context, state string) ([]domain.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, vendorSelect+`
		WHERE active AND $1 = ANY (licensed_states)
		ORDER BY id ASC
	`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vendors, nil
}

const vendorSelect = `
	SELECT id, name, phone, channel, licensed_states, ron_authorized, tier, specializations,
	       performance_score, availability, lat, lng, active
	FROM vendors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVendor(row rowScanner) (domain.Vendor, error) {
	var (
		v               domain.Vendor
		tier            string
		specializations []string
		availability    []byte
		lat, lng        sql.NullFloat64
	)
	if err := row.Scan(&v.ID, &v.Name, &v.Phone, &v.Channel, pq.Array(&v.LicensedStates), &v.RonAuthorized, &tier,
		pq.Array(&specializations), &v.PerformanceScore, &availability, &lat, &lng, &v.Active); err != nil {
		return domain.Vendor{}, err
	}
	parsed, err := domain.ParseTier(tier)
	if err != nil {
		return domain.Vendor{}, fmt.Errorf("vendor %s: %w", v.ID, err)
	}
	v.Tier = parsed
	for _, sp := range specializations {
		v.Specializations = append(v.Specializations, domain.LoanType(sp))
	}
	if len(availability) > 0 {
		if err := json.Unmarshal(availability, &v.Availability); err != nil {
			return domain.Vendor{}, fmt.Errorf("vendor %s availability: %w", v.ID, err)
		}
	}
	if lat.Valid && lng.Valid {
		v.Location = &domain.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	return v, nil
}

func (s *PostgresStore) SaveDecision(ctx context.Context, d domain.Decision, objectKey string) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	var selected *string
	if d.Selected != nil {
		selected = &d.Selected.VendorID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routing_decisions (id, order_id, status, selected_vendor_id, decision, object_key, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.OrderID, d.Status, selected, string(payload), objectKey, d.DecidedAt)
	return err
}

func (s *PostgresStore) GetLatestDecision(ctx context.Context, orderID string) (domain.Decision, error) {
	var payload []byte
	row := s.db.QueryRowContext(ctx, `
		SELECT decision
		FROM routing_decisions
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID)
	if err := row.Scan(&payload); err != nil {
		return domain.Decision{}, err
	}
	var d domain.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return domain.Decision{}, fmt.Errorf("decode decision for order %s: %w", orderID, err)
	}
	return d, nil
}

func (s *PostgresStore) CreateOffer(ctx context.Context, offer domain.Offer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignment_offers (id, order_id, vendor_id, rank, score, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, vendor_id) DO NOTHING
	`, offer.ID, offer.OrderID, offer.VendorID, offer.Rank, offer.Score, domain.OfferPending, offer.ExpiresAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE signing_orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND assigned_vendor_id IS NULL
	`, offer.OrderID, domain.StatusOffered)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) ResolveOffer(ctx context.Context, orderID, vendorID string, status domain.OfferStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assignment_offers
		SET status = $3, responded_at = NOW()
		WHERE order_id = $1 AND vendor_id = $2 AND status = $4
	`, orderID, vendorID, status, domain.OfferPending)
	return err
}

// AssignVendor records vendorID as the single assignee of orderID. The vendor row is locked so
// concurrent assignments cannot book the vendor for overlapping windows. Re-assigning the same
// vendor is a no-op.
func (s *PostgresStore) AssignVendor(ctx context.Context, orderID, vendorID string, window domain.TimeWindow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM vendors WHERE id = $1 FOR UPDATE`, vendorID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVendorNotFound
		}
		return fmt.Errorf("lock vendor %s: %w", vendorID, err)
	}

	if !window.IsZero() {
		var clash bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM signing_orders
				WHERE assigned_vendor_id = $1
				  AND id <> $2
				  AND window_start < $4
				  AND window_end > $3
			)
		`, vendorID, orderID, window.Start, window.End).Scan(&clash); err != nil {
			return fmt.Errorf("check vendor bookings: %w", err)
		}
		if clash {
			return ErrVendorDoubleBooked
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE signing_orders
		SET assigned_vendor_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND (assigned_vendor_id IS NULL OR assigned_vendor_id = $2)
	`, orderID, vendorID, domain.StatusAssigned)
	if err != nil {
		return fmt.Errorf("assign order %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderAlreadyAssigned
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE assignment_offers
		SET status = $3, responded_at = COALESCE(responded_at, NOW())
		WHERE order_id = $1 AND vendor_id = $2
	`, orderID, vendorID, domain.OfferAccepted)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) MarkEscalated(ctx context.Context, orderID string, status domain.OrderStatus, reasons []domain.Reason) error {
	payload, err := json.Marshal(reasons)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE signing_orders
		SET status = $2, escalation_reasons = $3::jsonb, updated_at = NOW()
		WHERE id = $1 AND assigned_vendor_id IS NULL
	`, orderID, status, string(payload))
	return err
}

func (s *PostgresStore) ListEscalations(ctx context.Context) ([]domain.Escalation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state, status, COALESCE(escalation_reasons, '[]'::jsonb), updated_at
		FROM signing_orders
		WHERE status = ANY ($1)
		ORDER BY updated_at ASC
	`, pq.Array([]string{string(domain.StatusUnassignable), string(domain.StatusEscalated)}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Escalation, 0)
	for rows.Next() {
		var item domain.Escalation
		var reasons []byte
		if err := rows.Scan(&item.OrderID, &item.State, &item.Status, &reasons, &item.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reasons, &item.Reasons); err != nil {
			return nil, fmt.Errorf("decode escalation reasons for %s: %w", item.OrderID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) InsertAudit(ctx context.Context, orderID string, state domain.AuditState, detail any) error {
	var payload []byte
	switch v := detail.(type) {
	case nil:
		payload = []byte("{}")
	case []byte:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		payload = b
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (order_id, state, detail)
		VALUES ($1, $2, $3::jsonb)
	`, orderID, state, string(payload))
	return err
}

func windowArgs(w domain.TimeWindow) (any, any) {
	if w.IsZero() {
		return nil, nil
	}
	return w.Start, w.End
}

func pointArgs(p *domain.GeoPoint) (any, any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat, p.Lng
}
