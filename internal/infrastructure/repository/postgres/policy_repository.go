package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

// PolicyRepository reads and writes the relational corpus of raw policy
// documents. The root id is not a column: it is derived from component_path,
// everything before the first underscore.
type PolicyRepository struct {
	db *sql.DB
}

func NewPolicyRepository(db *sql.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PolicyRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082201)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS policy_documents (
	id TEXT PRIMARY KEY,
	component_path TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	channels JSONB NOT NULL DEFAULT '[]'::jsonb,
	business_areas JSONB NOT NULL DEFAULT '[]'::jsonb,
	subjects JSONB NOT NULL DEFAULT '[]'::jsonb,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	products JSONB NOT NULL DEFAULT '[]'::jsonb,
	content_type TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policy_documents_component_path ON policy_documents(component_path);
CREATE INDEX IF NOT EXISTS idx_policy_documents_root_id ON policy_documents(split_part(component_path, '_', 1));
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *PolicyRepository) Create(ctx context.Context, doc *domain.PolicyDocument) error {
	lists, err := marshalLists(doc)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO policy_documents (
	id, component_path, title, content, channels, business_areas, subjects, tags, products, content_type, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.ComponentPath, doc.Title, doc.Content,
		lists.channels, lists.businessAreas, lists.subjects, lists.tags, lists.products,
		doc.ContentType, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert policy document: %w", err)
	}
	return nil
}

// ListByRootID returns every document in a root id family, ordered by
// component path so the root document comes first.
func (r *PolicyRepository) ListByRootID(ctx context.Context, rootID string) ([]domain.PolicyDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, component_path, title, content, channels, business_areas, subjects, tags, products, content_type, created_at, updated_at
FROM policy_documents
WHERE split_part(component_path, '_', 1) = $1
ORDER BY component_path
`, rootID)
	if err != nil {
		return nil, fmt.Errorf("query documents by root: %w", err)
	}
	defer rows.Close()

	var documents []domain.PolicyDocument
	for rows.Next() {
		doc, err := scanPolicyDocument(rows)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}

func (r *PolicyRepository) ListRootIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT split_part(component_path, '_', 1) AS root_id
FROM policy_documents
ORDER BY root_id
`)
	if err != nil {
		return nil, fmt.Errorf("query root ids: %w", err)
	}
	defer rows.Close()

	var rootIDs []string
	for rows.Next() {
		var rootID string
		if err := rows.Scan(&rootID); err != nil {
			return nil, fmt.Errorf("scan root id: %w", err)
		}
		rootIDs = append(rootIDs, rootID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate root ids: %w", err)
	}
	return rootIDs, nil
}

type listColumns struct {
	channels      []byte
	businessAreas []byte
	subjects      []byte
	tags          []byte
	products      []byte
}

func marshalLists(doc *domain.PolicyDocument) (listColumns, error) {
	var out listColumns
	var err error
	fields := []struct {
		name   string
		values []string
		target *[]byte
	}{
		{"channels", doc.Channels, &out.channels},
		{"business_areas", doc.BusinessAreas, &out.businessAreas},
		{"subjects", doc.Subjects, &out.subjects},
		{"tags", doc.Tags, &out.tags},
		{"products", doc.Products, &out.products},
	}
	for _, f := range fields {
		values := f.values
		if values == nil {
			values = []string{}
		}
		if *f.target, err = json.Marshal(values); err != nil {
			return listColumns{}, fmt.Errorf("marshal %s: %w", f.name, err)
		}
	}
	return out, nil
}

func scanPolicyDocument(rows *sql.Rows) (domain.PolicyDocument, error) {
	var doc domain.PolicyDocument
	var contentType sql.NullString
	var channels, businessAreas, subjects, tags, products []byte

	err := rows.Scan(
		&doc.ID, &doc.ComponentPath, &doc.Title, &doc.Content,
		&channels, &businessAreas, &subjects, &tags, &products,
		&contentType, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.PolicyDocument{}, fmt.Errorf("scan policy document: %w", err)
	}

	doc.ContentType = contentType.String
	for _, col := range []struct {
		raw    []byte
		target *[]string
	}{
		{channels, &doc.Channels},
		{businessAreas, &doc.BusinessAreas},
		{subjects, &doc.Subjects},
		{tags, &doc.Tags},
		{products, &doc.Products},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.target); err != nil {
			return domain.PolicyDocument{}, fmt.Errorf("unmarshal list column: %w", err)
		}
	}
	return doc, nil
}
