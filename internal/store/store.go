// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package store

import (
	"chamber/pkg/logger"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

type Cycle struct {
	ID        int64      `json:"cycle_id"`
	Name      string     `json:"name"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

func (c Cycle) Running() bool {
	return c.EndTime == nil
}

type Reading struct {
	ID          int64     `json:"reading_id"`
	CycleID     int64     `json:"cycle_id"`
	SensorID    string    `json:"sensor_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
}

// Store opens the database per operation; it holds no connection between
// calls.
type Store struct {
	path string
	log  *logger.Logger
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, wrap("init", err)
		}
	}

	s := &Store{path: path, log: logger.New("Store")}
	err := s.with(func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
	if err != nil {
		return nil, wrap("init", err)
	}
	s.log.Debug("opened %s", path)
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Size returns the database file size in bytes.
func (s *Store) Size() (int64, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *Store) with(fn func(db *sql.DB) error) error {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", s.path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	return fn(db)
}

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.with(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// CreateCycle inserts an open cycle and returns its id.
func (s *Store) CreateCycle(ctx context.Context, name string, start time.Time) (int64, error) {
	var id int64
	err := s.with(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"INSERT INTO cycles (name, start_time) VALUES (?, ?)",
			name, formatTime(start))
		if err != nil {
			var serr sqlite3.Error
			if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
				return fmt.Errorf("%w: %q", ErrDuplicateName, name)
			}
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, wrap("create cycle", err)
}

// EndCycle stamps end_time on the cycle.
func (s *Store) EndCycle(ctx context.Context, id int64, end time.Time) error {
	err := s.with(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE cycles SET end_time = ? WHERE cycle_id = ?",
			formatTime(end), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil
	})
	return wrap("end cycle", err)
}

// CloseOpenCycles ends every cycle left open by an unclean shutdown.
func (s *Store) CloseOpenCycles(ctx context.Context, end time.Time) (int64, error) {
	var n int64
	err := s.with(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE cycles SET end_time = ? WHERE end_time IS NULL",
			formatTime(end))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, wrap("close open cycles", err)
}

// ListCycles returns every cycle ordered by id.
func (s *Store) ListCycles(ctx context.Context) ([]Cycle, error) {
	var cycles []Cycle
	err := s.with(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT cycle_id, name, start_time, end_time FROM cycles ORDER BY cycle_id")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCycle(rows)
			if err != nil {
				return err
			}
			cycles = append(cycles, c)
		}
		return rows.Err()
	})
	return cycles, wrap("list cycles", err)
}

func (s *Store) CycleByName(ctx context.Context, name string) (Cycle, error) {
	var c Cycle
	err := s.with(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx,
			"SELECT cycle_id, name, start_time, end_time FROM cycles WHERE name = ?", name)
		var err error
		c, err = scanCycle(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return err
	})
	return c, wrap("get cycle", err)
}

// DeleteCycle removes the named cycle and its readings in one transaction
// and returns the deleted id.
func (s *Store) DeleteCycle(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.tx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT cycle_id FROM cycles WHERE name = ?", name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sensor_readings WHERE cycle_id = ?", id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM cycles WHERE cycle_id = ?", id)
		return err
	})
	return id, wrap("delete cycle", err)
}

// InsertReadings writes one row per sensor, all sharing ts, in a single
// transaction. Rows are inserted in sensor id order.
func (s *Store) InsertReadings(ctx context.Context, cycleID int64, ts time.Time, values map[string]float64) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	stamp := formatTime(ts)
	err := s.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO sensor_readings (cycle_id, sensor_id, timestamp, temperature) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, cycleID, id, stamp, values[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrap("insert readings", err)
	}
	return len(ids), nil
}

func (s *Store) CountReadings(ctx context.Context, cycleID int64) (int, error) {
	var n int
	err := s.with(func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sensor_readings WHERE cycle_id = ?", cycleID).Scan(&n)
	})
	return n, wrap("count readings", err)
}

// Readings returns the named cycle's readings in insertion order.
func (s *Store) Readings(ctx context.Context, name string) ([]Reading, error) {
	c, err := s.CycleByName(ctx, name)
	if err != nil {
		return nil, err
	}

	var out []Reading
	err = s.with(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT reading_id, cycle_id, sensor_id, timestamp, temperature
			 FROM sensor_readings WHERE cycle_id = ? ORDER BY reading_id`, c.ID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r Reading
			var stamp string
			var temp sql.NullFloat64
			if err := rows.Scan(&r.ID, &r.CycleID, &r.SensorID, &stamp, &temp); err != nil {
				return err
			}
			if r.Timestamp, err = parseTime(stamp); err != nil {
				return err
			}
			if temp.Valid {
				v := temp.Float64
				r.Temperature = &v
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, wrap("read readings", err)
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(row scanner) (Cycle, error) {
	var c Cycle
	var start string
	var end sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &start, &end); err != nil {
		return c, err
	}

	var err error
	if c.StartTime, err = parseTime(start); err != nil {
		return c, err
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return c, err
		}
		c.EndTime = &t
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}
