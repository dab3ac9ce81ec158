// Package store persists posts, terms and their key/value meta in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/surerank/seo-analyzer/seoerr"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Kind identifies the entity a meta row belongs to.
type Kind string

const (
	KindPost Kind = "post"
	KindTerm Kind = "term"
	KindSite Kind = "site"
)

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	return k == KindPost || k == KindTerm || k == KindSite
}

// Meta keys written by the analyzers and read by the meta resolver.
const (
	MetaPageTitle       = "page_title"
	MetaPageDescription = "page_description"
	MetaCanonicalURL    = "canonical_url"
	MetaFocusKeyword    = "focus_keyword"
	MetaChecks          = "surerank_seo_checks"
	MetaChecksUpdated   = "surerank_seo_checks_last_updated"
)

// Post is a stored post of any post type.
type Post struct {
	ID            int64     `json:"id"`
	Type          string    `json:"post_type"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Content       string    `json:"content"`
	Excerpt       string    `json:"excerpt"`
	Author        string    `json:"author"`
	Status        string    `json:"status"`
	FeaturedImage string    `json:"featured_image"`
	PublishedAt   time.Time `json:"published_at"`
	ModifiedAt    time.Time `json:"modified_at"`
}

// Term is a stored taxonomy term.
type Term struct {
	ID          int64  `json:"id"`
	Taxonomy    string `json:"taxonomy"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, _, err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) (uint, bool, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Post loads a post by id.
func (s *Store) Post(ctx context.Context, id int64) (*Post, error) {
	var (
		p                 Post
		published, modify int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_type, title, slug, content, excerpt, author, status, featured_image, published_at, modified_at
		FROM posts WHERE id = ?`, id).
		Scan(&p.ID, &p.Type, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.Author, &p.Status, &p.FeaturedImage, &published, &modify)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, seoerr.New(seoerr.KindNotFound, "store.Post", "post %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post %d: %w", id, err)
	}
	p.PublishedAt = fromUnix(published)
	p.ModifiedAt = fromUnix(modify)
	return &p, nil
}

// UpsertPost inserts or replaces a post.
func (s *Store) UpsertPost(ctx context.Context, p *Post) error {
	if p.ID <= 0 {
		return seoerr.New(seoerr.KindInvalidInput, "store.UpsertPost", "invalid post id %d", p.ID)
	}
	if p.Type == "" {
		p.Type = "post"
	}
	if p.Status == "" {
		p.Status = "publish"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, post_type, title, slug, content, excerpt, author, status, featured_image, published_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			post_type = excluded.post_type,
			title = excluded.title,
			slug = excluded.slug,
			content = excluded.content,
			excerpt = excluded.excerpt,
			author = excluded.author,
			status = excluded.status,
			featured_image = excluded.featured_image,
			published_at = excluded.published_at,
			modified_at = excluded.modified_at`,
		p.ID, p.Type, p.Title, p.Slug, p.Content, p.Excerpt, p.Author, p.Status, p.FeaturedImage,
		toUnix(p.PublishedAt), toUnix(p.ModifiedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert post %d: %w", p.ID, err)
	}
	return nil
}

// Term loads a term by id.
func (s *Store) Term(ctx context.Context, id int64) (*Term, error) {
	var t Term
	err := s.db.QueryRowContext(ctx, `
		SELECT id, taxonomy, name, slug, description FROM terms WHERE id = ?`, id).
		Scan(&t.ID, &t.Taxonomy, &t.Name, &t.Slug, &t.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, seoerr.New(seoerr.KindNotFound, "store.Term", "term %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load term %d: %w", id, err)
	}
	return &t, nil
}

// UpsertTerm inserts or replaces a term.
func (s *Store) UpsertTerm(ctx context.Context, t *Term) error {
	if t.ID <= 0 {
		return seoerr.New(seoerr.KindInvalidInput, "store.UpsertTerm", "invalid term id %d", t.ID)
	}
	if t.Taxonomy == "" {
		t.Taxonomy = "category"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO terms (id, taxonomy, name, slug, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			taxonomy = excluded.taxonomy,
			name = excluded.name,
			slug = excluded.slug,
			description = excluded.description`,
		t.ID, t.Taxonomy, t.Name, t.Slug, t.Description)
	if err != nil {
		return fmt.Errorf("failed to upsert term %d: %w", t.ID, err)
	}
	return nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
