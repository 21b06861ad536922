package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/backhaul-matching/internal/geo"
	"github.com/example/backhaul-matching/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle, e.g. one opened by sqlmock.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlx.NewDb(db, "postgres")}
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema files in name order. They are
// idempotent, so running them on every start is safe.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, e := range entries {
		b, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

type routeRow struct {
	ID              string         `db:"id"`
	DriverID        string         `db:"driver_id"`
	OriginAddress   string         `db:"origin_address"`
	OriginCity      string         `db:"origin_city"`
	OriginState     string         `db:"origin_state"`
	OriginPincode   string         `db:"origin_pincode"`
	OriginLat       float64        `db:"origin_lat"`
	OriginLng       float64        `db:"origin_lng"`
	DestAddress     string         `db:"dest_address"`
	DestCity        string         `db:"dest_city"`
	DestState       string         `db:"dest_state"`
	DestPincode     string         `db:"dest_pincode"`
	DestLat         float64        `db:"dest_lat"`
	DestLng         float64        `db:"dest_lng"`
	AvailableDate   time.Time      `db:"available_date"`
	AvailableUntil  sql.NullTime   `db:"available_until"`
	PricePerKm      float64        `db:"price_per_km"`
	MinimumCharge   float64        `db:"minimum_charge"`
	TruckType       string         `db:"truck_type"`
	CapacityTons    float64        `db:"capacity_tons"`
	TotalDistanceKm float64        `db:"total_distance_km"`
	EstimatedPrice  float64        `db:"estimated_price"`
	Status          string         `db:"status"`
	Notes           string         `db:"notes"`
	AcceptedGoods   pq.StringArray `db:"accepted_goods"`
	RejectedGoods   pq.StringArray `db:"rejected_goods"`
	Views           int            `db:"views"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`

	DriverName         sql.NullString  `db:"driver_name"`
	DriverRating       sql.NullFloat64 `db:"driver_average_rating"`
	DriverTotalRatings sql.NullInt64   `db:"driver_total_ratings"`
	DriverTruckNumber  sql.NullString  `db:"driver_truck_number"`
	DriverTotalTrips   sql.NullInt64   `db:"driver_total_trips"`

	DistanceKm sql.NullFloat64 `db:"distance_km"`
}

const routeColumns = `r.id, r.driver_id,
	r.origin_address, r.origin_city, r.origin_state, r.origin_pincode, r.origin_lat, r.origin_lng,
	r.dest_address, r.dest_city, r.dest_state, r.dest_pincode, r.dest_lat, r.dest_lng,
	r.available_date, r.available_until, r.price_per_km, r.minimum_charge, r.truck_type,
	r.capacity_tons, r.total_distance_km, r.estimated_price, r.status, r.notes,
	r.accepted_goods, r.rejected_goods, r.views, r.created_at, r.updated_at,
	d.name AS driver_name, d.average_rating AS driver_average_rating,
	d.total_ratings AS driver_total_ratings, d.truck_number AS driver_truck_number,
	d.total_trips AS driver_total_trips`

const routeFrom = ` FROM posted_routes r LEFT JOIN drivers d ON d.id = r.driver_id`

func (row routeRow) toModel() models.PostedRoute {
	r := models.PostedRoute{
		ID:       row.ID,
		DriverID: row.DriverID,
		Origin: models.Place{
			Address: row.OriginAddress, City: row.OriginCity, State: row.OriginState, Pincode: row.OriginPincode,
			Location: models.Coordinate{Lng: row.OriginLng, Lat: row.OriginLat},
		},
		Destination: models.Place{
			Address: row.DestAddress, City: row.DestCity, State: row.DestState, Pincode: row.DestPincode,
			Location: models.Coordinate{Lng: row.DestLng, Lat: row.DestLat},
		},
		AvailableDate:   row.AvailableDate,
		PricePerKm:      row.PricePerKm,
		MinimumCharge:   row.MinimumCharge,
		TruckType:       row.TruckType,
		CapacityTons:    row.CapacityTons,
		TotalDistanceKm: row.TotalDistanceKm,
		EstimatedPrice:  row.EstimatedPrice,
		Status:          models.RouteStatus(row.Status),
		Notes:           row.Notes,
		AcceptedGoods:   []string(row.AcceptedGoods),
		RejectedGoods:   []string(row.RejectedGoods),
		Views:           row.Views,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		Driver: models.DriverSummary{
			ID:           row.DriverID,
			Name:         row.DriverName.String,
			TotalRatings: int(row.DriverTotalRatings.Int64),
			TruckNumber:  row.DriverTruckNumber.String,
			TotalTrips:   int(row.DriverTotalTrips.Int64),
		},
	}
	if row.AvailableUntil.Valid {
		t := row.AvailableUntil.Time
		r.AvailableUntil = &t
	}
	if row.DriverRating.Valid {
		v := row.DriverRating.Float64
		r.Driver.AverageRating = &v
	}
	return r
}

func rowFromModel(r *models.PostedRoute) routeRow {
	row := routeRow{
		ID: r.ID, DriverID: r.DriverID,
		OriginAddress: r.Origin.Address, OriginCity: r.Origin.City, OriginState: r.Origin.State, OriginPincode: r.Origin.Pincode,
		OriginLat: r.Origin.Location.Lat, OriginLng: r.Origin.Location.Lng,
		DestAddress: r.Destination.Address, DestCity: r.Destination.City, DestState: r.Destination.State, DestPincode: r.Destination.Pincode,
		DestLat: r.Destination.Location.Lat, DestLng: r.Destination.Location.Lng,
		AvailableDate: r.AvailableDate, PricePerKm: r.PricePerKm, MinimumCharge: r.MinimumCharge,
		TruckType: r.TruckType, CapacityTons: r.CapacityTons, TotalDistanceKm: r.TotalDistanceKm,
		EstimatedPrice: r.EstimatedPrice, Status: string(r.Status), Notes: r.Notes,
		AcceptedGoods: pq.StringArray(r.AcceptedGoods), RejectedGoods: pq.StringArray(r.RejectedGoods),
		Views: r.Views, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if row.AcceptedGoods == nil {
		row.AcceptedGoods = pq.StringArray{}
	}
	if row.RejectedGoods == nil {
		row.RejectedGoods = pq.StringArray{}
	}
	if r.AvailableUntil != nil {
		row.AvailableUntil = sql.NullTime{Time: *r.AvailableUntil, Valid: true}
	}
	return row
}

const upsertRouteSQL = `INSERT INTO posted_routes (
	id, driver_id, origin_address, origin_city, origin_state, origin_pincode, origin_lat, origin_lng,
	dest_address, dest_city, dest_state, dest_pincode, dest_lat, dest_lng,
	available_date, available_until, price_per_km, minimum_charge, truck_type, capacity_tons,
	total_distance_km, estimated_price, status, notes, accepted_goods, rejected_goods, views,
	created_at, updated_at
) VALUES (
	:id, :driver_id, :origin_address, :origin_city, :origin_state, :origin_pincode, :origin_lat, :origin_lng,
	:dest_address, :dest_city, :dest_state, :dest_pincode, :dest_lat, :dest_lng,
	:available_date, :available_until, :price_per_km, :minimum_charge, :truck_type, :capacity_tons,
	:total_distance_km, :estimated_price, :status, :notes, :accepted_goods, :rejected_goods, :views,
	:created_at, :updated_at
) ON CONFLICT (id) DO UPDATE SET
	available_date = EXCLUDED.available_date,
	available_until = EXCLUDED.available_until,
	price_per_km = EXCLUDED.price_per_km,
	minimum_charge = EXCLUDED.minimum_charge,
	capacity_tons = EXCLUDED.capacity_tons,
	estimated_price = EXCLUDED.estimated_price,
	status = EXCLUDED.status,
	notes = EXCLUDED.notes,
	accepted_goods = EXCLUDED.accepted_goods,
	rejected_goods = EXCLUDED.rejected_goods,
	updated_at = EXCLUDED.updated_at`

func (p *PostgresStore) SaveRoute(ctx context.Context, r *models.PostedRoute) error {
	if _, err := p.db.NamedExecContext(ctx, upsertRouteSQL, rowFromModel(r)); err != nil {
		return fmt.Errorf("save route %s: %w", r.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetRoute(ctx context.Context, id string) (*models.PostedRoute, error) {
	var row routeRow
	err := p.db.GetContext(ctx, &row, `SELECT `+routeColumns+routeFrom+` WHERE r.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", id, err)
	}
	r := row.toModel()
	return &r, nil
}

func (p *PostgresStore) UpdateRouteStatus(ctx context.Context, id string, status models.RouteStatus) (*models.PostedRoute, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE posted_routes SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update route %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return p.GetRoute(ctx, id)
}

func (p *PostgresStore) IncrementViews(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE posted_routes SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment views %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListDriverRoutes(ctx context.Context, driverID string, status models.RouteStatus, page, limit int) ([]models.PostedRoute, int, error) {
	var total int
	if err := p.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM posted_routes WHERE driver_id = $1 AND ($2 = '' OR status = $2)`, driverID, string(status)); err != nil {
		return nil, 0, fmt.Errorf("count driver routes: %w", err)
	}
	if page < 1 {
		page = 1
	}
	var rows []routeRow
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT `+routeColumns+routeFrom+` WHERE r.driver_id = $1 AND ($2 = '' OR r.status = $2)
		ORDER BY r.created_at DESC, r.id DESC LIMIT $3 OFFSET $4`,
		driverID, string(status), limit, (page-1)*limit); err != nil {
		return nil, 0, fmt.Errorf("list driver routes: %w", err)
	}
	out := make([]models.PostedRoute, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, total, nil
}

// The bounding box lets the origin index do the first cut; the haversine
// expression then applies the true radius before ordering and the limit.
const findNearSQL = `SELECT * FROM (
	SELECT ` + routeColumns + `,
		2 * 6371 * ASIN(LEAST(1, SQRT(
			POWER(SIN(RADIANS(r.origin_lat - $1) / 2), 2) +
			COS(RADIANS($1)) * COS(RADIANS(r.origin_lat)) * POWER(SIN(RADIANS(r.origin_lng - $2) / 2), 2)
		))) AS distance_km` + routeFrom + `
	WHERE r.status = 'active'
		AND r.available_date >= $3 AND r.available_date < $4
		AND r.origin_lat BETWEEN $5 AND $6
		AND (r.origin_lng BETWEEN $7 AND $8 OR r.origin_lng BETWEEN $9 AND $10)
		AND ($11 = '' OR LOWER(r.truck_type) = LOWER($11))
) c WHERE c.distance_km <= $12
ORDER BY c.distance_km, c.id
LIMIT $13`

func (p *PostgresStore) FindActiveRoutesNear(ctx context.Context, point models.Coordinate, radiusKm float64, window models.DateWindow, truckType string, limit int) ([]models.PostedRoute, error) {
	box := geo.BoundingBoxAround(point, radiusKm)
	lng := box.LngRanges()
	var rows []routeRow
	err := p.db.SelectContext(ctx, &rows, findNearSQL,
		point.Lat, point.Lng,
		window.From, window.To,
		box.MinLat, box.MaxLat,
		lng[0][0], lng[0][1], lng[1][0], lng[1][1],
		truckType, radiusKm, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find routes near: %w", err)
	}
	out := make([]models.PostedRoute, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// UpsertDriver records a driver's profile summary. Profiles are owned by the
// account service; this keeps the copy used for ranking current.
func (p *PostgresStore) UpsertDriver(ctx context.Context, d models.DriverSummary) error {
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO drivers (id, name, average_rating, total_ratings, truck_number, total_trips)
		VALUES (:id, :name, :average_rating, :total_ratings, :truck_number, :total_trips)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, average_rating = EXCLUDED.average_rating,
		total_ratings = EXCLUDED.total_ratings, truck_number = EXCLUDED.truck_number, total_trips = EXCLUDED.total_trips`, d)
	if err != nil {
		return fmt.Errorf("upsert driver %s: %w", d.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetDrivers(ctx context.Context, ids []string) (map[string]models.DriverSummary, error) {
	out := make(map[string]models.DriverSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.DriverSummary
	err := p.db.SelectContext(ctx, &rows, `SELECT id, name, average_rating, total_ratings, truck_number, total_trips
		FROM drivers WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get drivers: %w", err)
	}
	for _, d := range rows {
		out[d.ID] = d
	}
	return out, nil
}
