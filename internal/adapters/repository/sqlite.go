package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/telemetry"
	"github.com/okian/framecoach/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteTemplateStore persists templates in a SQLite database. Watchers only
// observe changes made through the same store instance.
type SQLiteTemplateStore struct {
	db  *sql.DB
	hub *watchHub
	cfg templateConfig

	// wmu serializes writes with their snapshot publication.
	wmu    sync.Mutex
	closed bool
}

var _ TemplateStore = (*SQLiteTemplateStore)(nil)

// OpenSQLiteTemplateStore opens dsn and applies pending migrations.
func OpenSQLiteTemplateStore(ctx context.Context, dsn string, opts ...TemplateOption) (*SQLiteTemplateStore, error) {
	cfg := defaultTemplateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrateUp(db, cfg.log); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteTemplateStore{db: db, hub: newWatchHub(), cfg: cfg}, nil
}

func migrateUp(db *sql.DB, log logger.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{log: log}
	// m is not closed: closing it would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger adapts logger.Logger to migrate.Logger.
type migrateLogger struct {
	log logger.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool { return false }

func (s *SQLiteTemplateStore) List(ctx context.Context, userID string) (out []model.Template, err error) {
	defer observe("list", time.Now(), &err)
	return s.list(ctx, userID)
}

func (s *SQLiteTemplateStore) list(ctx context.Context, userID string) ([]model.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, mode, telemetry, created_at
		   FROM templates WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fault.Wrap("templates.list", fault.ErrStore, err)
	}
	defer rows.Close()

	out := []model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap("templates.list", fault.ErrStore, err)
	}
	return out, nil
}

func (s *SQLiteTemplateStore) Get(ctx context.Context, userID, id string) (out model.Template, err error) {
	defer observe("get", time.Now(), &err)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, mode, telemetry, created_at
		   FROM templates WHERE user_id = ? AND id = ?`, userID, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, ErrTemplateNotFound
	}
	return t, err
}

func (s *SQLiteTemplateStore) Create(ctx context.Context, userID, name string, mode telemetry.Mode, t telemetry.Telemetry) (out model.Template, err error) {
	defer observe("create", time.Now(), &err)
	tmpl, err := newTemplate(s.cfg.newID(), userID, name, mode, t)
	if err != nil {
		return model.Template{}, err
	}
	tmpl.CreatedAt = s.cfg.now().UTC()
	doc, err := json.Marshal(tmpl.Telemetry)
	if err != nil {
		return model.Template{}, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return model.Template{}, ErrClosed
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, user_id, name, mode, telemetry, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tmpl.ID, tmpl.UserID, tmpl.Name, string(tmpl.Mode), string(doc), tmpl.CreatedAt.UnixNano()); err != nil {
		return model.Template{}, fault.Wrap("templates.create", fault.ErrStore, err)
	}
	s.publish(ctx, userID)
	s.cfg.log.Debug(ctx, "template created",
		logger.String("user", userID), logger.String("id", tmpl.ID), logger.String("mode", mode.String()))
	return tmpl, nil
}

func (s *SQLiteTemplateStore) Delete(ctx context.Context, userID, id string) (err error) {
	defer observe("delete", time.Now(), &err)
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fault.Wrap("templates.delete", fault.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault.Wrap("templates.delete", fault.ErrStore, err)
	}
	if n == 0 {
		return ErrTemplateNotFound
	}
	s.publish(ctx, userID)
	return nil
}

func (s *SQLiteTemplateStore) Watch(ctx context.Context, userID string) (<-chan []model.Template, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	initial, err := s.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, userID, initial)
}

// publish must be called with s.wmu held. A failed reload is logged; the
// write itself already succeeded.
func (s *SQLiteTemplateStore) publish(ctx context.Context, userID string) {
	if s.hub.subscribers(userID) == 0 {
		return
	}
	snap, err := s.list(context.WithoutCancel(ctx), userID)
	if err != nil {
		s.cfg.log.Warn(ctx, "template snapshot reload failed", logger.String("user", userID), logger.Error(err))
		return
	}
	s.hub.publish(userID, snap)
}

// Close ends all subscriptions and closes the database.
func (s *SQLiteTemplateStore) Close() error {
	s.wmu.Lock()
	if s.closed {
		s.wmu.Unlock()
		return nil
	}
	s.closed = true
	s.wmu.Unlock()
	s.hub.close()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(r rowScanner) (model.Template, error) {
	var (
		t       model.Template
		mode    string
		doc     string
		created int64
	)
	if err := r.Scan(&t.ID, &t.UserID, &t.Name, &mode, &doc, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Template{}, err
		}
		return model.Template{}, fault.Wrap("templates.scan", fault.ErrStore, err)
	}
	m, err := telemetry.ParseMode(mode)
	if err != nil {
		return model.Template{}, fault.Wrap("templates.scan", fault.ErrStore, err)
	}
	tel, err := telemetry.Parse([]byte(doc), m)
	if err != nil {
		return model.Template{}, fault.Wrap("templates.scan", fault.ErrStore, err)
	}
	t.Mode = m
	t.Telemetry = tel
	t.CreatedAt = time.Unix(0, created).UTC()
	return t, nil
}
