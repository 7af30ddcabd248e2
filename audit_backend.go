// audit_backend.go: Storage backends for the nodeconf audit trail
//
// Two backends share one contract: a SQLite database in WAL mode, with
// versioned schema migrations, and an append-only JSON lines file. The
// backend is chosen by the extension of AuditConfig.OutputFile.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditBackend stores and reads back audit events.
type auditBackend interface {
	// Write persists a batch of events. Safe for concurrent use.
	Write(events []AuditEvent) error

	// Flush commits pending writes to storage.
	Flush() error

	// Close releases all resources. The backend is unusable afterwards.
	Close() error

	// Maintenance prunes old events and optimizes storage.
	Maintenance() error

	// GetStats summarizes the stored events.
	GetStats() (*AuditDatabaseStats, error)

	// Query returns the stored events matching q, oldest first.
	Query(q AuditQuery) ([]AuditEvent, error)
}

// AuditQuery filters stored audit events. Zero fields match everything.
type AuditQuery struct {
	Event    string
	Setting  string
	FilePath string
	MinLevel AuditLevel
	Since    time.Time
	Limit    int
}

func (q AuditQuery) matches(e AuditEvent) bool {
	switch {
	case q.Event != "" && e.Event != q.Event:
		return false
	case q.Setting != "" && e.Setting != q.Setting:
		return false
	case q.FilePath != "" && e.FilePath != q.FilePath:
		return false
	case e.Level < q.MinLevel:
		return false
	case !q.Since.IsZero() && e.Timestamp.Before(q.Since):
		return false
	}
	return true
}

// createAuditBackend picks the backend for config. A .jsonl OutputFile
// selects JSON lines; anything else tries SQLite first and falls back to
// JSON lines when SQLite cannot be opened and an OutputFile is set.
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config.OutputFile)
	}

	backend, err := newSQLiteBackend(config)
	if err == nil {
		return backend, nil
	}
	if config.OutputFile == "" {
		return nil, err
	}

	fallback := strings.TrimSuffix(config.OutputFile, filepath.Ext(config.OutputFile)) + ".jsonl"
	jsonlBackend, jsonlErr := newJSONLBackend(fallback)
	if jsonlErr != nil {
		return nil, errors.Wrap(err, ErrCodeIOError,
			fmt.Sprintf("all audit backends failed, jsonl: %v", jsonlErr))
	}
	return jsonlBackend, nil
}

// sharedAuditPath is the database used when no .db OutputFile is given.
func sharedAuditPath() string {
	return filepath.Join(os.TempDir(), "nodeconf", "audit.db")
}

// sqliteAuditBackend stores events in a SQLite database.
type sqliteAuditBackend struct {
	db         *sql.DB
	dbPath     string
	sourceFile string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteBackend(config AuditConfig) (*sqliteAuditBackend, error) {
	dbPath := sharedAuditPath()
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".db" {
		dbPath = config.OutputFile
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot create audit database directory").
			WithContext("path", dbPath)
	}

	db, err := openSQLiteDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	backend := &sqliteAuditBackend{
		db:         db,
		dbPath:     dbPath,
		sourceFile: config.OutputFile,
	}
	if err := backend.ensureSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := backend.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, err
	}
	// Pruning failures do not prevent auditing.
	_ = backend.performMaintenance()

	return backend, nil
}

// openSQLiteDatabase opens dbPath in WAL mode with a busy timeout so that
// several processes can share one audit database.
func openSQLiteDatabase(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=1000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot open audit database").
			WithContext("path", dbPath)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot reach audit database").
			WithContext("path", dbPath)
	}
	return db, nil
}

const currentSchemaVersion = 3

// ensureSchemaVersion migrates the database to currentSchemaVersion.
func (s *sqliteAuditBackend) ensureSchemaVersion() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot create schema_info table")
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot begin schema migration")
	}
	for v := version; v < currentSchemaVersion; v++ {
		if err := migrations[v](tx); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, ErrCodeIOError,
				fmt.Sprintf("schema migration from v%d to v%d failed", v, v+1))
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_info (version, updated_at) VALUES (?, CURRENT_TIMESTAMP)`,
		currentSchemaVersion); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, ErrCodeIOError, "cannot record schema version")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot commit schema migration")
	}
	return nil
}

func (s *sqliteAuditBackend) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeIOError, "cannot read schema version")
	}
	return version, nil
}

// migrations[v] moves the schema from version v to v+1.
var migrations = []func(tx *sql.Tx) error{
	migrateToV1,
	migrateToV2,
	migrateToV3,
}

// migrateToV1 creates the events table.
func migrateToV1(tx *sql.Tx) error {
	statements := []string{`
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		level TEXT NOT NULL,
		event TEXT NOT NULL,
		component TEXT NOT NULL,
		original_output_file TEXT NOT NULL,
		file_path TEXT,
		old_value TEXT,
		new_value TEXT,
		process_id INTEGER NOT NULL,
		process_name TEXT NOT NULL,
		context TEXT,
		checksum TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
		"CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_audit_level ON audit_events(level)",
		"CREATE INDEX IF NOT EXISTS idx_audit_component ON audit_events(component)",
		"CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_events(created_at)",
	}
	return execAll(tx, statements)
}

// migrateToV2 adds composite indexes for the common queries.
func migrateToV2(tx *sql.Tx) error {
	return execAll(tx, []string{
		"CREATE INDEX IF NOT EXISTS idx_audit_event_time ON audit_events(event, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_audit_file_time ON audit_events(file_path, timestamp)",
	})
}

// migrateToV3 records the setting an event is about.
func migrateToV3(tx *sql.Tx) error {
	return execAll(tx, []string{
		"ALTER TABLE audit_events ADD COLUMN setting TEXT",
		"CREATE INDEX IF NOT EXISTS idx_audit_setting_time ON audit_events(setting, timestamp)",
	})
}

func execAll(tx *sql.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// performMaintenance drops events older than the retention period and
// checkpoints the WAL.
func (s *sqliteAuditBackend) performMaintenance() error {
	const retentionDays = 90

	if _, err := s.db.Exec(`DELETE FROM audit_events WHERE created_at < datetime('now', '-' || ? || ' days')`,
		retentionDays); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot prune audit events")
	}
	for _, task := range []string{"PRAGMA optimize", "PRAGMA wal_checkpoint(FULL)"} {
		_, _ = s.db.Exec(task)
	}
	return nil
}

func (s *sqliteAuditBackend) prepareStatements() error {
	stmt, err := s.db.Prepare(`
	INSERT INTO audit_events (
		timestamp, level, event, component,
		original_output_file, process_id, process_name,
		file_path, setting, old_value, new_value, context, checksum
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot prepare audit insert")
	}
	s.insertStmt = stmt
	return nil
}

// AuditDatabaseStats summarizes an audit store.
type AuditDatabaseStats struct {
	TotalEvents   int64            `json:"total_events"`
	EventsByLevel map[string]int64 `json:"events_by_level"`
	EventsByName  map[string]int64 `json:"events_by_name"`
	OldestEvent   *time.Time       `json:"oldest_event"`
	NewestEvent   *time.Time       `json:"newest_event"`
	DatabaseSize  int64            `json:"database_size_bytes"`
	SchemaVersion int              `json:"schema_version"`
}

func newAuditStats() *AuditDatabaseStats {
	return &AuditDatabaseStats{
		EventsByLevel: make(map[string]int64),
		EventsByName:  make(map[string]int64),
	}
}

func (s *sqliteAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	stats := newAuditStats()

	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot count audit events")
	}
	if err := s.countBy("level", stats.EventsByLevel); err != nil {
		return nil, err
	}
	if err := s.countBy("event", stats.EventsByName); err != nil {
		return nil, err
	}

	var oldest, newest sql.NullString
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").
		Scan(&oldest, &newest); err != nil && err != sql.ErrNoRows {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot read audit time range")
	}
	if t, err := time.Parse(time.RFC3339Nano, oldest.String); oldest.Valid && err == nil {
		stats.OldestEvent = &t
	}
	if t, err := time.Parse(time.RFC3339Nano, newest.String); newest.Valid && err == nil {
		stats.NewestEvent = &t
	}

	version, err := s.schemaVersion()
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version
	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

// countBy fills into with event counts grouped by column. column is one of
// a fixed set of names, never user input.
func (s *sqliteAuditBackend) countBy(column string, into map[string]int64) error {
	rows, err := s.db.Query(fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_events GROUP BY %s", column, column))
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot group audit events").WithContext("column", column)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return errors.Wrap(err, ErrCodeIOError, "cannot scan audit counts")
		}
		into[key] = count
	}
	return rows.Err()
}

// Write inserts events in a single transaction.
func (s *sqliteAuditBackend) Write(events []AuditEvent) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New(ErrCodeIOError, "audit database is closed")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot begin audit transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt := tx.Stmt(s.insertStmt)
	defer func() { _ = stmt.Close() }()

	for _, event := range events {
		if err = s.insertEvent(stmt, event); err != nil {
			return errors.Wrap(err, ErrCodeIOError, "cannot insert audit event").
				WithContext("event", event.Event)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot commit audit transaction")
	}
	return nil
}

func (s *sqliteAuditBackend) insertEvent(stmt *sql.Stmt, event AuditEvent) error {
	oldValue, err := marshalOptional(event.OldValue)
	if err != nil {
		return err
	}
	newValue, err := marshalOptional(event.NewValue)
	if err != nil {
		return err
	}
	var context string
	if event.Context != nil {
		context, err = marshalOptional(event.Context)
		if err != nil {
			return err
		}
	}

	_, err = stmt.Exec(
		event.Timestamp.Format(time.RFC3339Nano),
		event.Level.String(),
		event.Event,
		event.Component,
		s.sourceFile,
		event.ProcessID,
		event.ProcessName,
		event.FilePath,
		event.Setting,
		oldValue,
		newValue,
		context,
		event.Checksum,
	)
	return err
}

func marshalOptional(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalOptional(text string, into interface{}) error {
	if text == "" {
		return nil
	}
	return json.Unmarshal([]byte(text), into)
}

// Query reads events back in insertion order.
func (s *sqliteAuditBackend) Query(q AuditQuery) ([]AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New(ErrCodeIOError, "audit database is closed")
	}

	var where []string
	var args []interface{}
	if q.Event != "" {
		where = append(where, "event = ?")
		args = append(args, q.Event)
	}
	if q.Setting != "" {
		where = append(where, "setting = ?")
		args = append(args, q.Setting)
	}
	if q.FilePath != "" {
		where = append(where, "file_path = ?")
		args = append(args, q.FilePath)
	}

	query := `SELECT timestamp, level, event, component, process_id, process_name,
		COALESCE(file_path, ''), COALESCE(setting, ''), COALESCE(old_value, ''),
		COALESCE(new_value, ''), COALESCE(context, ''), COALESCE(checksum, '')
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot query audit events")
	}
	defer func() { _ = rows.Close() }()

	var events []AuditEvent
	for rows.Next() {
		var (
			event                        AuditEvent
			timestamp, level             string
			oldValue, newValue, contextS string
		)
		if err := rows.Scan(&timestamp, &level, &event.Event, &event.Component,
			&event.ProcessID, &event.ProcessName, &event.FilePath, &event.Setting,
			&oldValue, &newValue, &contextS, &event.Checksum); err != nil {
			return nil, errors.Wrap(err, ErrCodeIOError, "cannot scan audit event")
		}
		if event.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
			return nil, errors.Wrap(err, ErrCodeIOError, "invalid audit timestamp")
		}
		if event.Level, err = ParseAuditLevel(level); err != nil {
			return nil, err
		}
		if err := unmarshalOptional(oldValue, &event.OldValue); err != nil {
			return nil, errors.Wrap(err, ErrCodeIOError, "invalid audit old_value")
		}
		if err := unmarshalOptional(newValue, &event.NewValue); err != nil {
			return nil, errors.Wrap(err, ErrCodeIOError, "invalid audit new_value")
		}
		if err := unmarshalOptional(contextS, &event.Context); err != nil {
			return nil, errors.Wrap(err, ErrCodeIOError, "invalid audit context")
		}
		if !q.matches(event) {
			continue
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot read audit events")
	}
	return limitEvents(events, q.Limit), nil
}

// limitEvents keeps the newest limit events.
func limitEvents(events []AuditEvent, limit int) []AuditEvent {
	if limit > 0 && len(events) > limit {
		return events[len(events)-limit:]
	}
	return events
}

// Flush checkpoints the WAL.
func (s *sqliteAuditBackend) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot checkpoint audit database")
	}
	return nil
}

func (s *sqliteAuditBackend) Maintenance() error {
	return s.performMaintenance()
}

// Close checkpoints and closes the database. Safe to call more than once.
func (s *sqliteAuditBackend) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.insertStmt != nil {
		firstErr = s.insertStmt.Close()
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return errors.Wrap(firstErr, ErrCodeIOError, "cannot close audit database")
	}
	return nil
}

// jsonlAuditBackend appends one JSON object per event to a file.
type jsonlAuditBackend struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(path string) (*jsonlAuditBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot create audit log directory").
			WithContext("path", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- path comes from AuditConfig
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot open audit log").
			WithContext("path", path)
	}
	return &jsonlAuditBackend{file: file, path: path}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return errors.New(ErrCodeIOError, "audit log is closed")
	}

	w := bufio.NewWriter(j.file)
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return errors.Wrap(err, ErrCodeIOError, "cannot encode audit event").
				WithContext("event", event.Event)
		}
		_, _ = w.Write(data)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot append to audit log").
			WithContext("path", j.path)
	}
	return nil
}

func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot sync audit log")
	}
	return nil
}

// Maintenance is a no-op; rotating the file is left to the system.
func (j *jsonlAuditBackend) Maintenance() error { return nil }

// readAll decodes the whole file. Lines that do not decode are skipped.
func (j *jsonlAuditBackend) readAll() ([]AuditEvent, error) {
	f, err := os.Open(j.path) // #nosec G304 -- path comes from AuditConfig
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot open audit log").
			WithContext("path", j.path)
	}
	defer func() { _ = f.Close() }()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event AuditEvent
		if json.Unmarshal(scanner.Bytes(), &event) != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot read audit log").
			WithContext("path", j.path)
	}
	return events, nil
}

func (j *jsonlAuditBackend) Query(q AuditQuery) ([]AuditEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	var events []AuditEvent
	for _, event := range all {
		if q.matches(event) {
			events = append(events, event)
		}
	}
	return limitEvents(events, q.Limit), nil
}

func (j *jsonlAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := newAuditStats()
	stats.SchemaVersion = 1
	if info, err := os.Stat(j.path); err == nil {
		stats.DatabaseSize = info.Size()
	}
	events, err := j.readAll()
	if err != nil {
		return nil, err
	}
	for i := range events {
		e := &events[i]
		stats.TotalEvents++
		stats.EventsByLevel[e.Level.String()]++
		stats.EventsByName[e.Event]++
		if stats.OldestEvent == nil || e.Timestamp.Before(*stats.OldestEvent) {
			stats.OldestEvent = &e.Timestamp
		}
		if stats.NewestEvent == nil || e.Timestamp.After(*stats.NewestEvent) {
			stats.NewestEvent = &e.Timestamp
		}
	}
	return stats, nil
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.file.Close(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot close audit log")
	}
	return nil
}
