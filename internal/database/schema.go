package database

import (
	"fmt"

	"gorm.io/gorm"
)

// DDL for the skill_badges table. Every statement is idempotent so the
// provisioning endpoint can be invoked repeatedly; the sequence aborts
// on the first failure.
const (
	createSkillBadgesTable = `
		CREATE TABLE IF NOT EXISTS skill_badges (
			id SERIAL PRIMARY KEY,
			student_id INTEGER NOT NULL,
			badge_name VARCHAR(255) NOT NULL,
			badge_description TEXT,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	createUpdatedAtFunction = `
		CREATE OR REPLACE FUNCTION set_skill_badges_updated_at() RETURNS trigger AS $$
		BEGIN
			NEW.updated_at = CURRENT_TIMESTAMP;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`

	dropUpdatedAtTrigger = `DROP TRIGGER IF EXISTS skill_badges_updated_at ON skill_badges`

	createUpdatedAtTrigger = `
		CREATE TRIGGER skill_badges_updated_at
		BEFORE UPDATE ON skill_badges
		FOR EACH ROW EXECUTE FUNCTION set_skill_badges_updated_at()`

	createStudentIndex = `CREATE INDEX IF NOT EXISTS idx_skill_badges_student_id ON skill_badges(student_id)`
)

// SQLite equivalents used when running against the test database.
const (
	createSkillBadgesTableSQLite = `
		CREATE TABLE IF NOT EXISTS skill_badges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id INTEGER NOT NULL,
			badge_name TEXT NOT NULL,
			badge_description TEXT,
			verified BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	createUpdatedAtTriggerSQLite = `
		CREATE TRIGGER IF NOT EXISTS skill_badges_updated_at
		AFTER UPDATE ON skill_badges
		FOR EACH ROW BEGIN
			UPDATE skill_badges SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END`
)

// EnsureSchema idempotently provisions the skill_badges table, the
// updated_at refresh trigger and the student_id index.
func EnsureSchema(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not connected")
	}

	if db.Dialector.Name() == "sqlite" {
		return ensureSchemaSQLite(db)
	}

	statements := []string{
		createSkillBadgesTable,
		createUpdatedAtFunction,
		dropUpdatedAtTrigger,
		createUpdatedAtTrigger,
		createStudentIndex,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to provision skill_badges schema: %w", err)
		}
	}

	return nil
}

func ensureSchemaSQLite(db *gorm.DB) error {
	statements := []string{
		createSkillBadgesTableSQLite,
		createUpdatedAtTriggerSQLite,
		createStudentIndex,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to provision skill_badges schema: %w", err)
		}
	}

	return nil
}
