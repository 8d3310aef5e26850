// Package database provides SQLite database operations for the application
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"inclusiveai-offline/internal/errs"
	"inclusiveai-offline/pkg/models"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	// Add connection parameters to help with concurrent access
	connString := dbPath
	if dbPath != ":memory:" {
		connString = dbPath + "?_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL"
	}

	conn, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	conn.SetMaxOpenConns(1) // SQLite doesn't handle concurrent writes well
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		grade_level INTEGER NOT NULL,
		reading_level INTEGER NOT NULL,
		cognitive_level INTEGER NOT NULL,
		teacher_name TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS special_needs (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		type TEXT NOT NULL,
		severity TEXT,
		FOREIGN KEY (student_id) REFERENCES students(id)
	);

	CREATE INDEX IF NOT EXISTS idx_special_needs_student_id ON special_needs(student_id);

	CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		grade_level INTEGER NOT NULL,
		difficulty INTEGER NOT NULL,
		content TEXT NOT NULL,
		cultural_variants TEXT,
		language_versions TEXT,
		offline_package_url TEXT,
		offline_size INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lessons_grade_level ON lessons(grade_level);
	CREATE INDEX IF NOT EXISTS idx_lessons_difficulty ON lessons(difficulty);

	CREATE TABLE IF NOT EXISTS installed_packages (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		installed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		url TEXT NOT NULL,
		method TEXT NOT NULL,
		headers TEXT,
		body TEXT,
		retry_count INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cached_responses (
		cache_name TEXT NOT NULL,
		url TEXT NOT NULL,
		status INTEGER NOT NULL,
		headers TEXT,
		body BLOB,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (cache_name, url)
	);

	CREATE INDEX IF NOT EXISTS idx_cached_responses_cache_name ON cached_responses(cache_name);

	CREATE TABLE IF NOT EXISTS package_cache_urls (
		package_id TEXT NOT NULL,
		cache_name TEXT NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (package_id, cache_name, url)
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// CreateStudent creates a new student record with its special needs
func (db *DB) CreateStudent(student *models.Student) error {
	query := `
	INSERT INTO students (id, name, grade_level, reading_level, cognitive_level, teacher_name, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query,
		student.ID, student.Name, student.GradeLevel, student.ReadingLevel,
		student.CognitiveLevel, student.TeacherName, student.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}

	for _, need := range student.SpecialNeeds {
		_, err := db.conn.Exec(
			`INSERT INTO special_needs (id, student_id, type, severity) VALUES (?, ?, ?, ?)`,
			need.ID, student.ID, need.Type, need.Severity,
		)
		if err != nil {
			return fmt.Errorf("failed to create special need: %w", err)
		}
	}

	return nil
}

// GetStudent retrieves a student by ID including special needs and teacher
func (db *DB) GetStudent(id string) (*models.Student, error) {
	query := `
	SELECT id, name, grade_level, reading_level, cognitive_level, teacher_name, created_at
	FROM students WHERE id = ?
	`

	var student models.Student
	err := db.conn.QueryRow(query, id).Scan(
		&student.ID, &student.Name, &student.GradeLevel, &student.ReadingLevel,
		&student.CognitiveLevel, &student.TeacherName, &student.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}

	rows, err := db.conn.Query(
		`SELECT id, student_id, type, severity FROM special_needs WHERE student_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get special needs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var need models.SpecialNeed
		if err := rows.Scan(&need.ID, &need.StudentID, &need.Type, &need.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan special need: %w", err)
		}
		student.SpecialNeeds = append(student.SpecialNeeds, need)
	}

	return &student, rows.Err()
}

// ListStudents returns all students ordered by name
func (db *DB) ListStudents() ([]*models.Student, error) {
	rows, err := db.conn.Query(`SELECT id FROM students ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	students := make([]*models.Student, 0, len(ids))
	for _, id := range ids {
		student, err := db.GetStudent(id)
		if err != nil {
			return nil, err
		}
		students = append(students, student)
	}

	return students, nil
}

// CreateLesson creates a new lesson record
func (db *DB) CreateLesson(lesson *models.Lesson) error {
	content, err := json.Marshal(lesson.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal lesson content: %w", err)
	}
	variants, err := json.Marshal(lesson.CulturalVariants)
	if err != nil {
		return fmt.Errorf("failed to marshal cultural variants: %w", err)
	}
	languages, err := json.Marshal(lesson.LanguageVersions)
	if err != nil {
		return fmt.Errorf("failed to marshal language versions: %w", err)
	}

	query := `
	INSERT INTO lessons (
		id, title, description, grade_level, difficulty, content,
		cultural_variants, language_versions, offline_package_url, offline_size, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.conn.Exec(query,
		lesson.ID, lesson.Title, lesson.Description, lesson.GradeLevel,
		lesson.Difficulty, string(content), string(variants), string(languages),
		lesson.OfflinePackageURL, lesson.OfflineSize, lesson.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lesson: %w", err)
	}

	return nil
}

// GetLessonsByLevel returns lessons for a grade level whose difficulty lies in
// [minDifficulty, maxDifficulty], ordered ascending by difficulty
func (db *DB) GetLessonsByLevel(gradeLevel, minDifficulty, maxDifficulty int) ([]*models.Lesson, error) {
	query := `
	SELECT id, title, description, grade_level, difficulty, content,
		   cultural_variants, language_versions, offline_package_url, offline_size, created_at
	FROM lessons
	WHERE grade_level = ? AND difficulty >= ? AND difficulty <= ?
	ORDER BY difficulty ASC
	`

	rows, err := db.conn.Query(query, gradeLevel, minDifficulty, maxDifficulty)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	var lessons []*models.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, lesson)
	}

	return lessons, rows.Err()
}

func scanLesson(rows *sql.Rows) (*models.Lesson, error) {
	var lesson models.Lesson
	var content, variants, languages sql.NullString

	err := rows.Scan(
		&lesson.ID, &lesson.Title, &lesson.Description, &lesson.GradeLevel,
		&lesson.Difficulty, &content, &variants, &languages,
		&lesson.OfflinePackageURL, &lesson.OfflineSize, &lesson.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan lesson: %w", err)
	}

	if content.Valid && content.String != "" {
		if err := json.Unmarshal([]byte(content.String), &lesson.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lesson content: %w", err)
		}
	}
	if variants.Valid && variants.String != "" {
		if err := json.Unmarshal([]byte(variants.String), &lesson.CulturalVariants); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cultural variants: %w", err)
		}
	}
	if languages.Valid && languages.String != "" {
		if err := json.Unmarshal([]byte(languages.String), &lesson.LanguageVersions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal language versions: %w", err)
		}
	}

	return &lesson, nil
}

// UpdateLessonOfflinePointer records the package a lesson was last bundled into
func (db *DB) UpdateLessonOfflinePointer(lessonID, packageURL string, size int64) error {
	result, err := db.conn.Exec(
		`UPDATE lessons SET offline_package_url = ?, offline_size = ? WHERE id = ?`,
		packageURL, size, lessonID,
	)
	if err != nil {
		return fmt.Errorf("failed to update lesson offline pointer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return errs.ErrLessonNotFound
	}

	return nil
}
