package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect selects the DDL flavour used by Migrate.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// The users, room_types, rooms and events tables belong to the catalog and
// auth services.  They are created here only when missing so a fresh
// database (or a test) has something to join against.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL DEFAULT 'CUSTOMER'
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS room_types (
		type_id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		type_name VARCHAR(255) NOT NULL,
		price_per_night_cents BIGINT NOT NULL,
		max_occupancy INT NOT NULL DEFAULT 2,
		amenities TEXT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		room_number VARCHAR(32) NOT NULL,
		room_type_id BIGINT UNSIGNED NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'available',
		INDEX idx_rooms_type (room_type_id),
		FOREIGN KEY (room_type_id) REFERENCES room_types(type_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS events (
		event_id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		start_time DATETIME NOT NULL,
		location VARCHAR(255) NOT NULL DEFAULT '',
		vip_capacity INT NOT NULL DEFAULT 0,
		regular_capacity INT NOT NULL DEFAULT 0,
		vip_remaining INT NOT NULL DEFAULT 0,
		regular_remaining INT NOT NULL DEFAULT 0,
		vip_price_cents BIGINT NOT NULL DEFAULT 0,
		regular_price_cents BIGINT NOT NULL DEFAULT 0
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		room_type_id BIGINT UNSIGNED NOT NULL,
		room_id BIGINT UNSIGNED NULL,
		check_in DATE NOT NULL,
		check_out DATE NOT NULL,
		nights INT NOT NULL,
		quantity INT NOT NULL DEFAULT 1,
		base_price_cents BIGINT NOT NULL,
		discount_rate DOUBLE NOT NULL DEFAULT 0,
		final_price_cents BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		payment_ref VARCHAR(255) NULL,
		created_at DATETIME NOT NULL,
		INDEX idx_bookings_type_dates (room_type_id, status, check_in, check_out),
		INDEX idx_bookings_room_dates (room_id, status, check_in, check_out),
		INDEX idx_bookings_user (user_id, created_at)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS event_bookings (
		booking_id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		event_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		ticket_type VARCHAR(16) NOT NULL,
		quantity INT NOT NULL DEFAULT 1,
		total_price_cents BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		payment_ref VARCHAR(255) NULL,
		capacity_applied TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		INDEX idx_event_bookings_tier (event_id, ticket_type, status),
		INDEX idx_event_bookings_ref (payment_ref),
		FOREIGN KEY (event_id) REFERENCES events(event_id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'CUSTOMER'
	)`,
	`CREATE TABLE IF NOT EXISTS room_types (
		type_id INTEGER PRIMARY KEY AUTOINCREMENT,
		type_name TEXT NOT NULL,
		price_per_night_cents INTEGER NOT NULL,
		max_occupancy INTEGER NOT NULL DEFAULT 2,
		amenities TEXT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_number TEXT NOT NULL,
		room_type_id INTEGER NOT NULL REFERENCES room_types(type_id),
		status TEXT NOT NULL DEFAULT 'available'
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		start_time TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		vip_capacity INTEGER NOT NULL DEFAULT 0,
		regular_capacity INTEGER NOT NULL DEFAULT 0,
		vip_remaining INTEGER NOT NULL DEFAULT 0,
		regular_remaining INTEGER NOT NULL DEFAULT 0,
		vip_price_cents INTEGER NOT NULL DEFAULT 0,
		regular_price_cents INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		room_type_id INTEGER NOT NULL,
		room_id INTEGER NULL,
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		nights INTEGER NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		base_price_cents INTEGER NOT NULL,
		discount_rate REAL NOT NULL DEFAULT 0,
		final_price_cents INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_ref TEXT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_type_dates ON bookings (room_type_id, status, check_in, check_out)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_room_dates ON bookings (room_id, status, check_in, check_out)`,
	`CREATE TABLE IF NOT EXISTS event_bookings (
		booking_id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id INTEGER NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		ticket_type TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		total_price_cents INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_ref TEXT NULL,
		capacity_applied INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_bookings_ref ON event_bookings (payment_ref)`,
}

// Migrate creates any missing tables for the given dialect.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := mysqlSchema
	if d == SQLite {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s statement %d: %w", d, i, err)
		}
	}
	return nil
}
