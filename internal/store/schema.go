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

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    cycle_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL UNIQUE,
    start_time TEXT NOT NULL,
    end_time   TEXT
);

CREATE TABLE IF NOT EXISTS sensor_readings (
    reading_id  INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id    INTEGER NOT NULL REFERENCES cycles(cycle_id) ON DELETE CASCADE,
    sensor_id   TEXT NOT NULL,
    timestamp   TEXT NOT NULL,
    temperature REAL
);
CREATE INDEX IF NOT EXISTS idx_readings_cycle ON sensor_readings(cycle_id, timestamp);
`

// fixed width so lexical order is chronological order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
