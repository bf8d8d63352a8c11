package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables the session subsystem writes to. The user
// tables are owned by the directory; they are created here only so a fresh
// database can serve logins.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(191) NOT NULL UNIQUE,
		name VARCHAR(191) NOT NULL,
		role ENUM('admin','tutor','verifier') NOT NULL,
		specialty VARCHAR(191) NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_users_name_role (name, role)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS students (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(191) NOT NULL UNIQUE,
		name VARCHAR(191) NOT NULL,
		code VARCHAR(32) NOT NULL UNIQUE,
		semester VARCHAR(16) NULL,
		dni VARCHAR(32) NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_students_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS access_log (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NULL,
		student_id BIGINT NULL,
		display_name VARCHAR(191) NOT NULL DEFAULT '',
		access_kind VARCHAR(32) NOT NULL,
		action VARCHAR(64) NOT NULL,
		description TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		session_state ENUM('activa','cerrada') NOT NULL,
		origin_ip VARCHAR(45) NOT NULL DEFAULT '',
		KEY idx_access_log_user (user_id, occurred_at, id),
		KEY idx_access_log_student (student_id, occurred_at, id),
		KEY idx_access_log_name (display_name, access_kind, occurred_at, id),
		CONSTRAINT chk_access_log_subject CHECK (user_id IS NULL OR student_id IS NULL)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS login_codes (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(191) NOT NULL,
		code_hash VARCHAR(100) NOT NULL,
		expires_at DATETIME NOT NULL,
		used_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_login_codes_email (email, used_at, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
