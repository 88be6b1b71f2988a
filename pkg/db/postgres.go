package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL, generalized from the
// teacher's single-table PostgresDocumentStore into the room/file/version
// shape spec §3 requires.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and ensures the schema exists.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateRoom(name, ownerID string) (*Room, error) {
	id := uuid.New().String()
	inviteCode := uuid.New().String()[:8]
	now := time.Now()

	query := `
		INSERT INTO rooms (id, name, owner_id, invite_code, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, owner_id, invite_code, created_at
	`

	room := &Room{}
	err := s.db.QueryRow(query, id, name, ownerID, inviteCode, now).Scan(
		&room.ID, &room.Name, &room.OwnerID, &room.InviteCode, &room.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	if err := s.AddMember(room.ID, ownerID); err != nil {
		return nil, fmt.Errorf("failed to add owner as member: %w", err)
	}

	return room, nil
}

func (s *PostgresStore) GetRoom(roomID string) (*Room, error) {
	query := `SELECT id, name, owner_id, invite_code, created_at FROM rooms WHERE id = $1`

	room := &Room{}
	err := s.db.QueryRow(query, roomID).Scan(
		&room.ID, &room.Name, &room.OwnerID, &room.InviteCode, &room.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (s *PostgresStore) GetRoomByInviteCode(inviteCode string) (*Room, error) {
	query := `SELECT id, name, owner_id, invite_code, created_at FROM rooms WHERE invite_code = $1`

	room := &Room{}
	err := s.db.QueryRow(query, inviteCode).Scan(
		&room.ID, &room.Name, &room.OwnerID, &room.InviteCode, &room.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room by invite code: %w", err)
	}
	return room, nil
}

// DeleteRoom removes a room; ON DELETE CASCADE drops its memberships, files,
// and file versions with it, matching spec §3's room-deletion invariant.
func (s *PostgresStore) DeleteRoom(roomID string) error {
	result, err := s.db.Exec(`DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *PostgresStore) AddMember(roomID, userID string) error {
	_, err := s.db.Exec(`
		INSERT INTO room_members (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RoomMember(roomID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateFile(roomID, name, language string) (*File, error) {
	id := uuid.New().String()
	now := time.Now()

	query := `
		INSERT INTO files (id, room_id, name, content, language, created_at, updated_at)
		VALUES ($1, $2, $3, '', $4, $5, $6)
		RETURNING id, room_id, name, content, language, created_at, updated_at
	`

	file := &File{}
	err := s.db.QueryRow(query, id, roomID, name, language, now, now).Scan(
		&file.ID, &file.RoomID, &file.Name, &file.Content, &file.Language,
		&file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return file, nil
}

func (s *PostgresStore) LoadFile(fileID string) (*File, error) {
	query := `
		SELECT id, room_id, name, content, language, created_at, updated_at
		FROM files WHERE id = $1
	`

	file := &File{}
	err := s.db.QueryRow(query, fileID).Scan(
		&file.ID, &file.RoomID, &file.Name, &file.Content, &file.Language,
		&file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return file, nil
}

func (s *PostgresStore) ListFiles(roomID string) ([]*File, error) {
	query := `
		SELECT id, room_id, name, content, language, created_at, updated_at
		FROM files WHERE room_id = $1 ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file := &File{}
		if err := rows.Scan(
			&file.ID, &file.RoomID, &file.Name, &file.Content, &file.Language,
			&file.CreatedAt, &file.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}
	return files, nil
}

// SaveContent atomically updates content and updated_at, per the C2 contract.
func (s *PostgresStore) SaveContent(fileID, content string) error {
	result, err := s.db.Exec(`
		UPDATE files SET content = $1, updated_at = $2 WHERE id = $3
	`, content, time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("failed to save content: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteFile(fileID string) error {
	result, err := s.db.Exec(`DELETE FROM files WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFileNotFound
	}
	return nil
}

// AppendVersion records priorContent as a version row. Idempotent on retry:
// a duplicate (fileID, content, userID) within the same second is tolerated
// rather than erroring, since the caller may retry after a transient
// timeout whose response it never saw.
func (s *PostgresStore) AppendVersion(fileID, priorContent, userID string) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM file_versions
			WHERE file_id = $1 AND content = $2 AND user_id = $3
			AND created_at > $4
		)
	`, fileID, priorContent, userID, time.Now().Add(-1*time.Second)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check duplicate version: %w", err)
	}
	if exists {
		return nil
	}

	id := uuid.New().String()
	_, err = s.db.Exec(`
		INSERT INTO file_versions (id, file_id, content, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, fileID, priorContent, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to append version: %w", err)
	}
	return nil
}

// ListVersions returns up to the 50 most recent versions, newest first.
func (s *PostgresStore) ListVersions(fileID string) ([]*FileVersion, error) {
	rows, err := s.db.Query(`
		SELECT id, file_id, content, user_id, created_at
		FROM file_versions
		WHERE file_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, fileID, VersionRingSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*FileVersion
	for rows.Next() {
		v := &FileVersion{}
		if err := rows.Scan(&v.ID, &v.FileID, &v.Content, &v.UserID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}
	return versions, nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
