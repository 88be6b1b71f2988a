package db

// createSchema creates the tables backing PostgresStore if they don't exist.
// Mirrors the teacher's single CREATE-TABLE-IF-NOT-EXISTS migration, widened
// to the room/membership/file/version shape spec §3 requires.
func (s *PostgresStore) createSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS rooms (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		owner_id VARCHAR(64) NOT NULL,
		invite_code VARCHAR(32) NOT NULL UNIQUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS room_members (
		room_id VARCHAR(36) NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id VARCHAR(64) NOT NULL,
		PRIMARY KEY (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS files (
		id VARCHAR(36) PRIMARY KEY,
		room_id VARCHAR(36) NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_files_room_id ON files(room_id);

	CREATE TABLE IF NOT EXISTS file_versions (
		id VARCHAR(36) PRIMARY KEY,
		file_id VARCHAR(36) NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_file_versions_file_id_created_at ON file_versions(file_id, created_at DESC);
	`

	_, err := s.db.Exec(query)
	return err
}
