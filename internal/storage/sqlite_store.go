package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/search"
	"github.com/arafat3300/propmatch/internal/segment"
)

// Store is the sqlite-backed catalog and profile store. Each operation
// acquires what it needs and releases it on every exit path; there is no
// shared mutable session state.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) EnsureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS properties (
  id TEXT PRIMARY KEY,
  price REAL NOT NULL DEFAULT 0,
  area REAL NOT NULL DEFAULT 0,
  type TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  bedrooms INTEGER NOT NULL DEFAULT 0,
  bathrooms INTEGER NOT NULL DEFAULT 0,
  payment_option TEXT NOT NULL DEFAULT '',
  sale_rent TEXT NOT NULL DEFAULT '',
  furnished INTEGER NOT NULL DEFAULT 0,
  installment_years REAL NOT NULL DEFAULT 0,
  delivery_in REAL NOT NULL DEFAULT 0,
  down_payment REAL NOT NULL DEFAULT 0,
  finishing TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'available',
  amenities_json TEXT NOT NULL DEFAULT '[]'
);`,
		`CREATE INDEX IF NOT EXISTS idx_properties_city ON properties(city);`,
		`CREATE INDEX IF NOT EXISTS idx_properties_price ON properties(price);`,
		`CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY,
  job TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT '',
  age REAL NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS user_favorites (
  user_id INTEGER NOT NULL REFERENCES users(id),
  property_id TEXT NOT NULL REFERENCES properties(id),
  PRIMARY KEY (user_id, property_id)
);`,
		`CREATE TABLE IF NOT EXISTS recommendations (
  user_id INTEGER NOT NULL REFERENCES users(id),
  property_id TEXT NOT NULL REFERENCES properties(id),
  score REAL NOT NULL DEFAULT 0,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (user_id, property_id)
);`,
		`CREATE TABLE IF NOT EXISTS clusters (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  profile_json TEXT NOT NULL DEFAULT '{}'
);`,
		`CREATE TABLE IF NOT EXISTS user_clusters (
  user_id INTEGER PRIMARY KEY REFERENCES users(id),
  cluster_id INTEGER NOT NULL REFERENCES clusters(id)
);`,
		`CREATE TABLE IF NOT EXISTS property_clusters (
  property_id TEXT PRIMARY KEY REFERENCES properties(id),
  cluster_id INTEGER NOT NULL REFERENCES clusters(id)
);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) CountProperties() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM properties`).Scan(&n)
	return n, err
}

// SeedProperties inserts an initial dataset without duplicating by id.
func (s *Store) SeedProperties(items []*catalog.Property) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT OR IGNORE INTO properties
(id, price, area, type, city, bedrooms, bathrooms, payment_option, sale_rent,
 furnished, installment_years, delivery_in, down_payment, finishing, status, amenities_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range items {
		amenities, _ := json.Marshal(p.Amenities)
		furnished := 0
		if p.Furnished {
			furnished = 1
		}
		if _, err := stmt.Exec(
			p.ID, p.Price, p.Area, p.Type, p.City, p.Bedrooms, p.Bathrooms,
			p.PaymentOption, p.SaleRent, furnished, p.InstallmentYears,
			p.DeliveryIn, p.DownPayment, p.Finishing, p.Status, string(amenities),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const propertyColumns = `id, price, area, type, city, bedrooms, bathrooms, payment_option,
sale_rent, furnished, installment_years, delivery_in, down_payment, finishing, status, amenities_json`

// SnapshotCatalog reads the full property table in one pass. Searches work
// off this immutable snapshot, so a run never observes a half-updated table.
func (s *Store) SnapshotCatalog() (*catalog.Properties, error) {
	rows, err := s.db.Query(`SELECT ` + propertyColumns + ` FROM properties ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := &catalog.Properties{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		snapshot.Items = append(snapshot.Items, p)
	}
	return snapshot, rows.Err()
}

func scanProperty(rows *sql.Rows) (*catalog.Property, error) {
	var p catalog.Property
	var furnished int
	var amenitiesJSON string

	if err := rows.Scan(
		&p.ID, &p.Price, &p.Area, &p.Type, &p.City, &p.Bedrooms, &p.Bathrooms,
		&p.PaymentOption, &p.SaleRent, &furnished, &p.InstallmentYears,
		&p.DeliveryIn, &p.DownPayment, &p.Finishing, &p.Status, &amenitiesJSON,
	); err != nil {
		return nil, err
	}

	p.Furnished = furnished != 0
	_ = json.Unmarshal([]byte(amenitiesJSON), &p.Amenities)
	return &p, nil
}

// SeedUsers inserts user records without duplicating by id.
func (s *Store) SeedUsers(users []segment.User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO users (id, job, country, age) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range users {
		if _, err := stmt.Exec(u.ID, u.Job, u.Country, u.Age); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddFavorite records an explicit favorite interaction.
func (s *Store) AddFavorite(userID int64, propertyID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO user_favorites (user_id, property_id) VALUES (?, ?)`,
		userID, propertyID,
	)
	return err
}

// FavoriteIDs lists the property ids a user has favorited, in id order.
func (s *Store) FavoriteIDs(userID int64) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT property_id FROM user_favorites WHERE user_id = ? ORDER BY property_id`,
		userID,
	)
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

func (s *Store) ListUsers() ([]segment.User, error) {
	rows, err := s.db.Query(`SELECT id, job, country, age FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []segment.User
	for rows.Next() {
		var u segment.User
		if err := rows.Scan(&u.ID, &u.Job, &u.Country, &u.Age); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListInteractions returns the weighted interaction table: favorites at full
// weight, previously recommended properties at the weaker recommendation
// weight. Property records are resolved against the provided snapshot so
// segmentation and search agree on the same catalog state.
func (s *Store) ListInteractions(snapshot *catalog.Properties) ([]segment.Interaction, error) {
	rows, err := s.db.Query(`
SELECT user_id, property_id, ? AS weight FROM user_favorites
UNION ALL
SELECT user_id, property_id, ? AS weight FROM recommendations
ORDER BY user_id, property_id
`, segment.FavoriteWeight, segment.RecommendedWeight)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[string]*catalog.Property, snapshot.Len())
	for _, p := range snapshot.Items {
		index[p.ID] = p
	}

	var interactions []segment.Interaction
	for rows.Next() {
		var userID int64
		var propertyID string
		var weight float64
		if err := rows.Scan(&userID, &propertyID, &weight); err != nil {
			return nil, err
		}
		p, ok := index[propertyID]
		if !ok {
			continue
		}
		interactions = append(interactions, segment.Interaction{
			UserID:   userID,
			Property: p,
			Weight:   weight,
		})
	}
	return interactions, rows.Err()
}

// SaveRecommendations records a ranked result list for a user so future
// segmentation runs can weigh it as an interaction signal.
func (s *Store) SaveRecommendations(userID int64, matches []search.Match) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO recommendations (user_id, property_id, score, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, property_id) DO UPDATE SET score = excluded.score, created_at = excluded.created_at
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range matches {
		if _, err := stmt.Exec(userID, m.Property.ID, m.Score, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReplaceAssignments rewrites every cluster table in one transaction. The
// delete-then-insert is why segmentation runs must not execute concurrently
// against the same store; the single transaction keeps readers from ever
// observing a half-updated assignment set.
func (s *Store) ReplaceAssignments(profiles []*segment.ClusterProfile, userClusters map[int64]int, propertyClusters map[string]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"user_clusters", "property_clusters", "clusters"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return err
		}
	}

	for _, cp := range profiles {
		profileJSON, _ := json.Marshal(cp)
		if _, err := tx.Exec(
			`INSERT INTO clusters (id, name, description, profile_json) VALUES (?, ?, ?, ?)`,
			cp.ClusterID, cp.Name, cp.Description, string(profileJSON),
		); err != nil {
			return err
		}
	}

	userIDs := make([]int64, 0, len(userClusters))
	for id := range userClusters {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	for _, id := range userIDs {
		if _, err := tx.Exec(
			`INSERT INTO user_clusters (user_id, cluster_id) VALUES (?, ?)`,
			id, userClusters[id],
		); err != nil {
			return err
		}
	}

	propertyIDs := make([]string, 0, len(propertyClusters))
	for id := range propertyClusters {
		propertyIDs = append(propertyIDs, id)
	}
	sort.Strings(propertyIDs)
	for _, id := range propertyIDs {
		if _, err := tx.Exec(
			`INSERT INTO property_clusters (property_id, cluster_id) VALUES (?, ?)`,
			id, propertyClusters[id],
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ClusterAssignments reads back the persisted user to cluster mapping.
func (s *Store) ClusterAssignments() (map[int64]int, error) {
	rows, err := s.db.Query(`SELECT user_id, cluster_id FROM user_clusters ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var clusterID int
		if err := rows.Scan(&userID, &clusterID); err != nil {
			return nil, err
		}
		out[userID] = clusterID
	}
	return out, rows.Err()
}

// ClusterProfile returns the persisted aggregate profile for a cluster.
func (s *Store) ClusterProfile(clusterID int) (*segment.ClusterProfile, error) {
	var profileJSON string
	err := s.db.QueryRow(`SELECT profile_json FROM clusters WHERE id = ?`, clusterID).Scan(&profileJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cluster %d not found", clusterID)
	}
	if err != nil {
		return nil, err
	}

	var cp segment.ClusterProfile
	if err := json.Unmarshal([]byte(profileJSON), &cp); err != nil {
		return nil, fmt.Errorf("decode cluster %d profile: %w", clusterID, err)
	}
	return &cp, nil
}
