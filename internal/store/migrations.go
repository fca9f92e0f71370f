package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Analyses table - one row per completed analysis with its aggregate
		// scores and the full result payload as JSON
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			flow REAL NOT NULL DEFAULT 0,
			balance REAL NOT NULL DEFAULT 0,
			smoothness REAL NOT NULL DEFAULT 0,
			energy REAL NOT NULL DEFAULT 0,
			hand_activity REAL NOT NULL DEFAULT 0,
			posture_stability REAL NOT NULL DEFAULT 0,
			detection_rate REAL NOT NULL DEFAULT 0,
			frame_count INTEGER NOT NULL DEFAULT 0,
			interpolated_frame_count INTEGER NOT NULL DEFAULT 0,
			detected_frames_count INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores viewer preferences as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
