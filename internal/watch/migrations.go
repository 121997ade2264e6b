package watch

import (
	"database/sql"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// migrations returns the Watch module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create watch tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS watch_monitors (
						id         TEXT PRIMARY KEY,
						name       TEXT NOT NULL,
						metric     TEXT NOT NULL DEFAULT '',
						snapshot   TEXT NOT NULL,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_watch_monitors_name ON watch_monitors(name)`,

					`CREATE TABLE IF NOT EXISTS watch_events (
						id           TEXT PRIMARY KEY,
						monitor_id   TEXT NOT NULL,
						monitor_name TEXT NOT NULL DEFAULT '',
						type         TEXT NOT NULL,
						window_index INTEGER NOT NULL DEFAULT 0,
						violations   INTEGER NOT NULL DEFAULT 0,
						description  TEXT NOT NULL DEFAULT '',
						created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_watch_events_monitor ON watch_events(monitor_id)`,
					`CREATE INDEX IF NOT EXISTS idx_watch_events_created ON watch_events(created_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
