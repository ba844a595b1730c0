package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dunamismax/pixelvault/internal/domain"
)

const imageSchemaSQL = `
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL,
	size BIGINT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	path TEXT NOT NULL,
	original_image TEXT REFERENCES images (id),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS images_owner_created_at_idx ON images (owner, created_at DESC);
CREATE INDEX IF NOT EXISTS images_original_image_idx ON images (original_image);
`

const imageColumns = `id, owner, filename, original_name, mime_type, size, width, height, path, original_image, created_at, updated_at`

type PostgresImageStore struct {
	db *sql.DB
}

func NewPostgresImageStore(ctx context.Context, dsn string) (*PostgresImageStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresImageStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresImageStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, imageSchemaSQL); err != nil {
		return fmt.Errorf("ensure images schema: %w", err)
	}
	return nil
}

func (s *PostgresImageStore) Close() error {
	return s.db.Close()
}

// Create inserts rec in a single statement. The parent ownership check is part
// of the same INSERT so a derived record can never point at a foreign image.
func (s *PostgresImageStore) Create(ctx context.Context, rec domain.ImageRecord) (domain.ImageRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO images (`+imageColumns+`)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10::text, $11, $12
		 WHERE $10::text IS NULL
		    OR EXISTS (SELECT 1 FROM images WHERE id = $10::text AND owner = $2)
		 RETURNING `+imageColumns,
		rec.ID,
		rec.Owner,
		rec.Filename,
		rec.OriginalName,
		rec.MimeType,
		rec.Size,
		rec.Width,
		rec.Height,
		rec.Path,
		nullString(rec.OriginalImage),
		rec.CreatedAt,
		rec.UpdatedAt,
	)

	created, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ImageRecord{}, fmt.Errorf("original image %s: %w", rec.OriginalImage, ErrImageNotFound)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ImageRecord{}, fmt.Errorf("%w: %s", ErrDuplicateImage, rec.ID)
		}
		return domain.ImageRecord{}, fmt.Errorf("insert image: %w", err)
	}
	return created, nil
}

func (s *PostgresImageStore) ListByOwner(ctx context.Context, owner string) ([]domain.ImageRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+imageColumns+`
		 FROM images
		 WHERE owner = $1
		 ORDER BY created_at DESC, id DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	return collectImages(rows)
}

func (s *PostgresImageStore) FindByIDAndOwner(ctx context.Context, id, owner string) (domain.ImageRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+imageColumns+`
		 FROM images
		 WHERE id = $1 AND owner = $2`,
		id,
		owner,
	)

	rec, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ImageRecord{}, ErrImageNotFound
	}
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("query image: %w", err)
	}
	return rec, nil
}

func (s *PostgresImageStore) ListDerivatives(ctx context.Context, parentID, owner string) ([]domain.ImageRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+imageColumns+`
		 FROM images
		 WHERE original_image = $1 AND owner = $2
		 ORDER BY created_at DESC, id DESC`,
		parentID,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query derivatives: %w", err)
	}
	return collectImages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (domain.ImageRecord, error) {
	var (
		rec      domain.ImageRecord
		original sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Owner,
		&rec.Filename,
		&rec.OriginalName,
		&rec.MimeType,
		&rec.Size,
		&rec.Width,
		&rec.Height,
		&rec.Path,
		&original,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return domain.ImageRecord{}, err
	}
	rec.OriginalImage = original.String
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func collectImages(rows *sql.Rows) ([]domain.ImageRecord, error) {
	defer rows.Close()

	out := make([]domain.ImageRecord, 0)
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
