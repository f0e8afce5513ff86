// Package store is the Storage Layer: durable persistence of the CodeDox
// data model in Postgres with full-text search over code snippets.
//
// The retrieval pack this module was grown from relied on a sqlc-generated
// query package that is not present here (see DESIGN.md). Every operation
// below is hand-written against database/sql + pgx/v5/stdlib, in the same
// raw-SQL idiom the teacher already used for its non-generated query paths.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"codedox/internal/apperr"
	"codedox/internal/model"
)

// Store wraps a pooled *sql.DB and implements every Storage Layer
// operation named in the component design.
type Store struct {
	DB *sql.DB
}

// New creates a Store around a shared, pre-configured *sql.DB.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// HashContent returns the SHA-256 content hash of normalized page content.
func HashContent(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// HashCode returns the SHA-256 code hash of a snippet's code text.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// ---- Sources ----------------------------------------------------------

// CreateSource inserts a new Source. Returns ConflictError if (name,
// version) already exists.
func (s *Store) CreateSource(ctx context.Context, name string, version *string, baseURL string, kind model.SourceKind) (*model.Source, error) {
	id := uuid.New()
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO sources (id, name, version, base_url, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, version, base_url, kind, created_at
	`, id, name, version, baseURL, string(kind))

	src, err := scanSource(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict(fmt.Sprintf("source %q (version %v) already exists", name, version), err)
		}
		return nil, apperr.Storage("create source", err)
	}
	return src, nil
}

func scanSource(row *sql.Row) (*model.Source, error) {
	var src model.Source
	var version sql.NullString
	var kind string
	if err := row.Scan(&src.ID, &src.Name, &version, &src.BaseURL, &kind, &src.CreatedAt); err != nil {
		return nil, err
	}
	if version.Valid {
		src.Version = &version.String
	}
	src.Kind = model.SourceKind(kind)
	return &src, nil
}

// GetOrCreateSource looks up a source by (name, version), creating it if
// absent. Source is created on first successful document write.
func (s *Store) GetOrCreateSource(ctx context.Context, name string, version *string, baseURL string, kind model.SourceKind) (*model.Source, error) {
	src, err := s.GetSourceByNameVersion(ctx, name, version)
	if err == nil {
		return src, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	src, err = s.CreateSource(ctx, name, version, baseURL, kind)
	if err != nil && apperr.KindOf(err) == apperr.KindConflict {
		// Lost a create race; fetch the row the winner created.
		return s.GetSourceByNameVersion(ctx, name, version)
	}
	return src, err
}

func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (*model.Source, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, name, version, base_url, kind, created_at FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("source not found", err)
	}
	if err != nil {
		return nil, apperr.Storage("get source", err)
	}
	return src, nil
}

func (s *Store) GetSourceByNameVersion(ctx context.Context, name string, version *string) (*model.Source, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, version, base_url, kind, created_at FROM sources
		WHERE name = $1 AND COALESCE(version, '') = COALESCE($2, '')
	`, name, version)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("source not found", err)
	}
	if err != nil {
		return nil, apperr.Storage("get source by name/version", err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]*model.Source, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, version, base_url, kind, created_at FROM sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Storage("list sources", err)
	}
	defer rows.Close()

	var out []*model.Source
	for rows.Next() {
		var src model.Source
		var version sql.NullString
		var kind string
		if err := rows.Scan(&src.ID, &src.Name, &version, &src.BaseURL, &kind, &src.CreatedAt); err != nil {
			return nil, apperr.Storage("scan source", err)
		}
		if version.Valid {
			src.Version = &version.String
		}
		src.Kind = model.SourceKind(kind)
		out = append(out, &src)
	}
	return out, rows.Err()
}

// RenameSource updates a source's name/version, preserving all documents
// and snippets. Fails with ConflictError and leaves state unchanged if the
// new (name, version) collides with another source.
func (s *Store) RenameSource(ctx context.Context, id uuid.UUID, name string, version *string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE sources SET name = $1, version = $2 WHERE id = $3`, name, version, id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("rename would collide with an existing source", err)
		}
		return apperr.Storage("rename source", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("source not found", nil)
	}
	return nil
}

// DeleteSource removes a source; cascades to its documents and snippets.
func (s *Store) DeleteSource(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("delete source", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("source not found", nil)
	}
	return nil
}

// BulkDeleteSources removes many sources at once, chunked to keep
// transactions bounded.
func (s *Store) BulkDeleteSources(ctx context.Context, ids []uuid.UUID) (int64, error) {
	const chunkSize = 100
	var total int64
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]
		res, err := s.DB.ExecContext(ctx, `DELETE FROM sources WHERE id = ANY($1)`, uuidArray(chunk))
		if err != nil {
			return total, apperr.Storage("bulk delete sources", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func uuidArray(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// ---- Documents ----------------------------------------------------------

// UpsertDocument inserts or replaces a document for (source_id, url). If
// content_hash is unchanged, returns changed=false without touching
// snippets.
func (s *Store) UpsertDocument(ctx context.Context, sourceID uuid.UUID, url, title, contentHash, markdown string, depth int) (docID uuid.UUID, changed bool, err error) {
	var existingHash string
	row := s.DB.QueryRowContext(ctx, `SELECT id, content_hash FROM documents WHERE source_id = $1 AND url = $2`, sourceID, url)
	scanErr := row.Scan(&docID, &existingHash)
	switch {
	case errors.Is(scanErr, sql.ErrNoRows):
		err = s.DB.QueryRowContext(ctx, `
			INSERT INTO documents (source_id, url, title, depth, content_hash, markdown)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, sourceID, url, title, depth, contentHash, markdown).Scan(&docID)
		if err != nil {
			return uuid.Nil, false, apperr.Storage("insert document", err)
		}
		return docID, true, nil
	case scanErr != nil:
		return uuid.Nil, false, apperr.Storage("lookup document", scanErr)
	}

	if existingHash == contentHash {
		return docID, false, nil
	}

	_, err = s.DB.ExecContext(ctx, `
		UPDATE documents SET title = $1, depth = $2, content_hash = $3, markdown = $4, updated_at = now()
		WHERE id = $5
	`, title, depth, contentHash, markdown, docID)
	if err != nil {
		return uuid.Nil, false, apperr.Storage("update document", err)
	}
	return docID, true, nil
}

func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, source_id, url, title, depth, content_hash, markdown, created_at, updated_at
		FROM documents WHERE id = $1
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("document not found", err)
	}
	if err != nil {
		return nil, apperr.Storage("get document", err)
	}
	return doc, nil
}

func (s *Store) GetDocumentBySourceURL(ctx context.Context, sourceID uuid.UUID, url string) (*model.Document, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, source_id, url, title, depth, content_hash, markdown, created_at, updated_at
		FROM documents WHERE source_id = $1 AND url = $2
	`, sourceID, url)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("document not found", err)
	}
	if err != nil {
		return nil, apperr.Storage("get document by url", err)
	}
	return doc, nil
}

// GetDocumentByURL finds a document across all sources, preferring the
// most recently updated match. Used by get_page_markdown.
func (s *Store) GetDocumentByURL(ctx context.Context, url string) (*model.Document, *model.Source, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT d.id, d.source_id, d.url, d.title, d.depth, d.content_hash, d.markdown, d.created_at, d.updated_at
		FROM documents d WHERE d.url = $1 ORDER BY d.updated_at DESC LIMIT 1
	`, url)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperr.NotFound("document not found", err)
	}
	if err != nil {
		return nil, nil, apperr.Storage("get document by url", err)
	}
	src, err := s.GetSource(ctx, doc.SourceID)
	if err != nil {
		return nil, nil, err
	}
	return doc, src, nil
}

func scanDocument(row *sql.Row) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(&d.ID, &d.SourceID, &d.URL, &d.Title, &d.Depth, &d.ContentHash, &d.Markdown, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDocumentsBySource(ctx context.Context, sourceID uuid.UUID, limit, offset int) ([]*model.Document, int64, error) {
	var total int64
	if err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE source_id = $1`, sourceID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count documents", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, source_id, url, title, depth, content_hash, markdown, created_at, updated_at
		FROM documents WHERE source_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3
	`, sourceID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list documents", err)
	}
	defer rows.Close()

	var out []*model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.SourceID, &d.URL, &d.Title, &d.Depth, &d.ContentHash, &d.Markdown, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, apperr.Storage("scan document", err)
		}
		out = append(out, &d)
	}
	return out, total, rows.Err()
}

// GetSnippetCountForDocument returns the current number of snippets
// belonging to a document, used when a page is skipped as unchanged.
func (s *Store) GetSnippetCountForDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	var n int64
	if err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM code_snippets WHERE document_id = $1`, documentID).Scan(&n); err != nil {
		return 0, apperr.Storage("count snippets", err)
	}
	return n, nil
}

// GetSnippetCountForSource returns the total snippet count for a source.
func (s *Store) GetSnippetCountForSource(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM code_snippets cs JOIN documents d ON d.id = cs.document_id WHERE d.source_id = $1
	`, sourceID).Scan(&n)
	if err != nil {
		return 0, apperr.Storage("count source snippets", err)
	}
	return n, nil
}

// ---- Snippets -----------------------------------------------------------

// ReplaceSnippets atomically deletes existing snippets for a document and
// inserts the new set, collapsing (document_id, code_hash) duplicates
// within the batch by keeping the first occurrence.
func (s *Store) ReplaceSnippets(ctx context.Context, documentID uuid.UUID, snippets []model.CodeSnippet) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin replace_snippets tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_snippets WHERE document_id = $1`, documentID); err != nil {
		return apperr.Storage("delete old snippets", err)
	}

	seen := make(map[string]bool, len(snippets))
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_snippets (id, document_id, language, code, title, description, filename, hierarchy, line_start, line_end, code_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return apperr.Storage("prepare insert snippet", err)
	}
	defer stmt.Close()

	for i := range snippets {
		snip := &snippets[i]
		if seen[snip.CodeHash] {
			continue
		}
		seen[snip.CodeHash] = true
		if snip.ID == uuid.Nil {
			snip.ID = uuid.New()
		}
		hierarchy, _ := json.Marshal(snip.Hierarchy)
		if _, err := stmt.ExecContext(ctx, snip.ID, documentID, snip.Language, snip.Code, snip.Title, snip.Description, snip.Filename, hierarchy, snip.LineStart, snip.LineEnd, snip.CodeHash); err != nil {
			return apperr.Storage("insert snippet", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Storage("commit replace_snippets", err)
	}
	return nil
}

// FindDuplicateSnippetInSource looks for a snippet with the same code_hash
// anywhere else within the same source, used to detect cross-document
// duplicates during extraction.
func (s *Store) FindDuplicateSnippetInSource(ctx context.Context, sourceID uuid.UUID, codeHash string) (*uuid.UUID, error) {
	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx, `
		SELECT cs.id FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		WHERE d.source_id = $1 AND cs.code_hash = $2
		LIMIT 1
	`, sourceID, codeHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("find duplicate snippet", err)
	}
	return &id, nil
}

func (s *Store) GetSnippet(ctx context.Context, id uuid.UUID) (*model.CodeSnippet, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, document_id, language, code, title, description, filename, hierarchy, line_start, line_end, code_hash, created_at
		FROM code_snippets WHERE id = $1
	`, id)
	snip, err := scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("snippet not found", err)
	}
	if err != nil {
		return nil, apperr.Storage("get snippet", err)
	}
	return snip, nil
}

func scanSnippet(row *sql.Row) (*model.CodeSnippet, error) {
	var snip model.CodeSnippet
	var hierarchy []byte
	if err := row.Scan(&snip.ID, &snip.DocumentID, &snip.Language, &snip.Code, &snip.Title, &snip.Description, &snip.Filename, &hierarchy, &snip.LineStart, &snip.LineEnd, &snip.CodeHash, &snip.CreatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(hierarchy, &snip.Hierarchy)
	return &snip, nil
}

// ListSnippetsBySource returns the most recent snippets for a source,
// used by get_content when no query is given.
func (s *Store) ListSnippetsBySource(ctx context.Context, sourceID uuid.UUID, limit, offset int) ([]*model.CodeSnippet, int64, error) {
	var total int64
	if err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM code_snippets cs JOIN documents d ON d.id = cs.document_id WHERE d.source_id = $1
	`, sourceID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count source snippets", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT cs.id, cs.document_id, cs.language, cs.code, cs.title, cs.description, cs.filename, cs.hierarchy, cs.line_start, cs.line_end, cs.code_hash, cs.created_at
		FROM code_snippets cs JOIN documents d ON d.id = cs.document_id
		WHERE d.source_id = $1
		ORDER BY cs.created_at DESC, cs.id
		LIMIT $2 OFFSET $3
	`, sourceID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list source snippets", err)
	}
	defer rows.Close()
	return collectSnippets(rows, total)
}

func collectSnippets(rows *sql.Rows, total int64) ([]*model.CodeSnippet, int64, error) {
	var out []*model.CodeSnippet
	for rows.Next() {
		var snip model.CodeSnippet
		var hierarchy []byte
		if err := rows.Scan(&snip.ID, &snip.DocumentID, &snip.Language, &snip.Code, &snip.Title, &snip.Description, &snip.Filename, &hierarchy, &snip.LineStart, &snip.LineEnd, &snip.CodeHash, &snip.CreatedAt); err != nil {
			return nil, 0, apperr.Storage("scan snippet", err)
		}
		_ = json.Unmarshal(hierarchy, &snip.Hierarchy)
		out = append(out, &snip)
	}
	return out, total, rows.Err()
}

// RegenerateSnippetMetadata updates title/description/language in place,
// preserving code and id, per the regenerate operation's contract.
func (s *Store) RegenerateSnippetMetadata(ctx context.Context, id uuid.UUID, language, title, description string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE code_snippets SET language = $1, title = $2, description = $3 WHERE id = $4
	`, language, title, description, id)
	if err != nil {
		return apperr.Storage("regenerate snippet", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("snippet not found", nil)
	}
	return nil
}

// DeleteSnippetsByQuery deletes snippets matching a search filter; used
// by bulk cleanup operations.
func (s *Store) DeleteSnippetsByQuery(ctx context.Context, filter SearchFilter) (int64, error) {
	where, args := filter.whereClause(1)
	q := `DELETE FROM code_snippets cs USING documents d WHERE cs.document_id = d.id`
	if where != "" {
		q += " AND " + where
	}
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, apperr.Storage("delete snippets by query", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ---- Search ---------------------------------------------------------------

// SearchFilter narrows search_snippets / delete_snippets_by_query.
type SearchFilter struct {
	SourceName    string
	SourceVersion string
	Language      string
}

func (f SearchFilter) whereClause(startArg int) (string, []any) {
	var conds []string
	var args []any
	n := startArg
	if f.SourceName != "" {
		conds = append(conds, fmt.Sprintf("s.name ILIKE $%d", n))
		args = append(args, f.SourceName)
		n++
	}
	if f.SourceVersion != "" {
		conds = append(conds, fmt.Sprintf("s.version = $%d", n))
		args = append(args, f.SourceVersion)
		n++
	}
	if f.Language != "" {
		conds = append(conds, fmt.Sprintf("cs.language ILIKE $%d", n))
		args = append(args, f.Language)
		n++
	}
	return strings.Join(conds, " AND "), args
}

// SearchSnippets runs the ranked full-text search described in §4.5:
// title*A, description*B, code*C, ties broken by document.updated_at
// then snippet id.
func (s *Store) SearchSnippets(ctx context.Context, query string, filter SearchFilter, limit, offset int) ([]*model.CodeSnippet, int64, error) {
	where := []string{}
	args := []any{query}
	argN := 2

	if filter.SourceName != "" {
		where = append(where, fmt.Sprintf("s.name ILIKE $%d", argN))
		args = append(args, filter.SourceName)
		argN++
	}
	if filter.SourceVersion != "" {
		where = append(where, fmt.Sprintf("s.version = $%d", argN))
		args = append(args, filter.SourceVersion)
		argN++
	}
	if filter.Language != "" {
		where = append(where, fmt.Sprintf("cs.language ILIKE $%d", argN))
		args = append(args, filter.Language)
		argN++
	}

	whereSQL := "cs.search_vector @@ websearch_to_tsquery('simple', $1)"
	if len(where) > 0 {
		whereSQL += " AND " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf(`
		SELECT count(*) FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		JOIN sources s ON s.id = d.source_id
		WHERE %s
	`, whereSQL)
	var total int64
	if err := s.DB.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count search results", err)
	}

	args = append(args, limit, offset)
	dataQ := fmt.Sprintf(`
		SELECT cs.id, cs.document_id, cs.language, cs.code, cs.title, cs.description, cs.filename, cs.hierarchy, cs.line_start, cs.line_end, cs.code_hash, cs.created_at
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		JOIN sources s ON s.id = d.source_id
		WHERE %s
		ORDER BY ts_rank(cs.search_vector, websearch_to_tsquery('simple', $1)) DESC, d.updated_at DESC, cs.id
		LIMIT $%d OFFSET $%d
	`, whereSQL, argN, argN+1)

	rows, err := s.DB.QueryContext(ctx, dataQ, args...)
	if err != nil {
		return nil, 0, apperr.Storage("search snippets", err)
	}
	defer rows.Close()
	return collectSnippets(rows, total)
}

// SearchSources does a fuzzy-friendly (case-insensitive substring + token
// prefix) ranked match against source name/version for search_libraries.
func (s *Store) SearchSources(ctx context.Context, query string, limit, offset int) ([]*model.Source, int64, error) {
	like := "%" + strings.ToLower(query) + "%"
	prefixLike := strings.ToLower(query) + "%"

	var total int64
	if err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM sources
		WHERE lower(name) LIKE $1 OR lower(coalesce(version,'')) LIKE $1
	`, like).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count sources search", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, version, base_url, kind, created_at FROM sources
		WHERE lower(name) LIKE $1 OR lower(coalesce(version,'')) LIKE $1
		ORDER BY (lower(name) LIKE $2) DESC, name ASC
		LIMIT $3 OFFSET $4
	`, like, prefixLike, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("search sources", err)
	}
	defer rows.Close()

	var out []*model.Source
	for rows.Next() {
		var src model.Source
		var version sql.NullString
		var kind string
		if err := rows.Scan(&src.ID, &src.Name, &version, &src.BaseURL, &kind, &src.CreatedAt); err != nil {
			return nil, 0, apperr.Storage("scan source search", err)
		}
		if version.Valid {
			src.Version = &version.String
		}
		src.Kind = model.SourceKind(kind)
		out = append(out, &src)
	}
	return out, total, rows.Err()
}

// ResolveLibraryID accepts either a UUID or a library name (case-insensitive
// exact match, then nearest unique prefix) and resolves it to a Source.
func (s *Store) ResolveLibraryID(ctx context.Context, libraryID string) (*model.Source, error) {
	if id, err := uuid.Parse(libraryID); err == nil {
		return s.GetSource(ctx, id)
	}

	row := s.DB.QueryRowContext(ctx, `SELECT id, name, version, base_url, kind, created_at FROM sources WHERE lower(name) = lower($1) LIMIT 1`, libraryID)
	if src, err := scanSource(row); err == nil {
		return src, nil
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, version, base_url, kind, created_at FROM sources WHERE lower(name) LIKE lower($1) || '%' ORDER BY name LIMIT 2`, libraryID)
	if err != nil {
		return nil, apperr.Storage("resolve library id", err)
	}
	defer rows.Close()

	var matches []*model.Source
	for rows.Next() {
		var src model.Source
		var version sql.NullString
		var kind string
		if err := rows.Scan(&src.ID, &src.Name, &version, &src.BaseURL, &kind, &src.CreatedAt); err != nil {
			return nil, apperr.Storage("scan library match", err)
		}
		if version.Valid {
			src.Version = &version.String
		}
		src.Kind = model.SourceKind(kind)
		matches = append(matches, &src)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	return nil, apperr.NotFound(fmt.Sprintf("no unique library matches %q", libraryID), nil)
}

// ---- Crawl jobs -----------------------------------------------------------

// CreateJob inserts a new pending CrawlJob.
func (s *Store) CreateJob(ctx context.Context, job *model.CrawlJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	startURLs, _ := json.Marshal(job.StartURLs)
	include, _ := json.Marshal(job.IncludePatterns)
	exclude, _ := json.Marshal(job.ExcludePatterns)
	metadata, _ := json.Marshal(job.Metadata)

	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO crawl_jobs (id, source_id, name, start_urls, max_depth, include_patterns, exclude_patterns, domain_filter, max_concurrent_crawls, max_pages, status, phase, base_snippet_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, heartbeat_at
	`, job.ID, job.SourceID, job.Name, startURLs, job.MaxDepth, include, exclude, job.DomainFilter, job.MaxConcurrentCrawls, job.MaxPages, model.JobStatusPending, "", job.BaseSnippetCount, metadata).
		Scan(&job.CreatedAt, &job.HeartbeatAt)
	if err != nil {
		return apperr.Storage("create job", err)
	}
	job.Status = model.JobStatusPending
	return nil
}

func scanJob(scan func(dest ...any) error) (*model.CrawlJob, error) {
	var j model.CrawlJob
	var sourceID uuid.NullUUID
	var startURLs, include, exclude, metadata []byte
	var status, phase string
	var startedAt, endedAt sql.NullTime

	err := scan(&j.ID, &sourceID, &j.Name, &startURLs, &j.MaxDepth, &include, &exclude, &j.DomainFilter,
		&j.MaxConcurrentCrawls, &j.MaxPages, &status, &phase,
		&j.Counters.PagesCrawled, &j.Counters.PagesSkippedUnchanged, &j.Counters.SnippetsExtracted, &j.Counters.FailedPages,
		&j.BaseSnippetCount, &j.RetryGeneration, &j.HeartbeatAt, &j.ErrorMessage, &j.Version,
		&j.CreatedAt, &startedAt, &endedAt, &metadata)
	if err != nil {
		return nil, err
	}

	if sourceID.Valid {
		id := sourceID.UUID
		j.SourceID = &id
	}
	_ = json.Unmarshal(startURLs, &j.StartURLs)
	_ = json.Unmarshal(include, &j.IncludePatterns)
	_ = json.Unmarshal(exclude, &j.ExcludePatterns)
	_ = json.Unmarshal(metadata, &j.Metadata)
	j.Status = model.JobStatus(status)
	j.Phase = model.JobPhase(phase)
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		j.EndedAt = &endedAt.Time
	}
	return &j, nil
}

const jobColumns = `id, source_id, name, start_urls, max_depth, include_patterns, exclude_patterns, domain_filter,
	max_concurrent_crawls, max_pages, status, phase,
	pages_crawled, pages_skipped_unchanged, snippets_extracted, failed_pages_count,
	base_snippet_count, retry_generation, heartbeat_at, error_message, version,
	created_at, started_at, ended_at, metadata`

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*model.CrawlJob, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, id)
	job, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job not found", err)
	}
	if err != nil {
		return nil, apperr.Storage("get job", err)
	}
	return job, nil
}

// JobListFilter narrows ListJobs.
type JobListFilter struct {
	Status string
	Limit  int
	Offset int
}

func (s *Store) ListJobs(ctx context.Context, filter JobListFilter) ([]*model.CrawlJob, error) {
	q := `SELECT ` + jobColumns + ` FROM crawl_jobs`
	var args []any
	if filter.Status != "" {
		q += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	q += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Storage("list jobs", err)
	}
	defer rows.Close()

	var out []*model.CrawlJob
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, apperr.Storage("scan job", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ListPendingJobs returns up to `limit` pending jobs in FIFO order, for
// the runner's poll loop.
func (s *Store) ListPendingJobs(ctx context.Context, limit int) ([]*model.CrawlJob, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, model.JobStatusPending, limit)
	if err != nil {
		return nil, apperr.Storage("list pending jobs", err)
	}
	defer rows.Close()

	var out []*model.CrawlJob
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, apperr.Storage("scan pending job", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// TransitionJob performs an exclusive compare-and-set transition guarded
// by the job's version, serializing concurrent workers' status writes.
func (s *Store) TransitionJob(ctx context.Context, id uuid.UUID, expectVersion int64, newStatus model.JobStatus, errMsg string) (bool, error) {
	now := time.Now().UTC()
	var startedAt, endedAt any
	if newStatus == model.JobStatusRunning {
		startedAt = now
	}
	if newStatus.IsTerminal() {
		endedAt = now
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE crawl_jobs SET
			status = $1,
			error_message = $2,
			version = version + 1,
			heartbeat_at = now(),
			started_at = COALESCE(started_at, $3),
			ended_at = COALESCE($4, ended_at)
		WHERE id = $5 AND version = $6
	`, string(newStatus), errMsg, startedAt, endedAt, id, expectVersion)
	if err != nil {
		return false, apperr.Storage("transition job", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// UpdateCounters adds an accumulated delta to each of a job's counters,
// including snippets_extracted, the single source of truth for the
// displayed snippet count, and bumps the heartbeat.
func (s *Store) UpdateCounters(ctx context.Context, id uuid.UUID, delta model.JobCounters) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE crawl_jobs SET
			pages_crawled = pages_crawled + $1,
			pages_skipped_unchanged = pages_skipped_unchanged + $2,
			snippets_extracted = snippets_extracted + $3,
			failed_pages_count = failed_pages_count + $4,
			heartbeat_at = now()
		WHERE id = $5
	`, delta.PagesCrawled, delta.PagesSkippedUnchanged, delta.SnippetsExtracted, delta.FailedPages, id)
	if err != nil {
		return apperr.Storage("update job counters", err)
	}
	return nil
}

// Heartbeat bumps a job's heartbeat timestamp without altering status.
func (s *Store) Heartbeat(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE crawl_jobs SET heartbeat_at = now() WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("heartbeat", err)
	}
	return nil
}

// SetJobPhase records which phase ("crawling", "extracting",
// "finalizing") a running job is currently in.
func (s *Store) SetJobPhase(ctx context.Context, id uuid.UUID, phase model.JobPhase) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE crawl_jobs SET phase = $1 WHERE id = $2`, string(phase), id)
	if err != nil {
		return apperr.Storage("set job phase", err)
	}
	return nil
}

// SetJobSource attaches a source id to a job once the first document is
// written (source id is nullable until then).
func (s *Store) SetJobSource(ctx context.Context, id, sourceID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE crawl_jobs SET source_id = $1 WHERE id = $2`, sourceID, id)
	if err != nil {
		return apperr.Storage("set job source", err)
	}
	return nil
}

// BumpRetryGeneration increments a job's retry generation on resume.
func (s *Store) BumpRetryGeneration(ctx context.Context, id uuid.UUID) (int, error) {
	var gen int
	err := s.DB.QueryRowContext(ctx, `UPDATE crawl_jobs SET retry_generation = retry_generation + 1 WHERE id = $1 RETURNING retry_generation`, id).Scan(&gen)
	if err != nil {
		return 0, apperr.Storage("bump retry generation", err)
	}
	return gen, nil
}

// ---- Failed pages -----------------------------------------------------

func (s *Store) InsertFailedPage(ctx context.Context, fp model.FailedPage) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO failed_pages (job_id, url, error_message, retry_generation)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, url, retry_generation) DO UPDATE SET error_message = EXCLUDED.error_message, failed_at = now()
	`, fp.JobID, fp.URL, fp.ErrorMessage, fp.RetryGeneration)
	if err != nil {
		return apperr.Storage("insert failed page", err)
	}
	return nil
}

func (s *Store) ListFailedPages(ctx context.Context, jobID uuid.UUID, retryGeneration int) ([]model.FailedPage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT job_id, url, error_message, failed_at, retry_generation FROM failed_pages
		WHERE job_id = $1 AND retry_generation = $2
	`, jobID, retryGeneration)
	if err != nil {
		return nil, apperr.Storage("list failed pages", err)
	}
	defer rows.Close()

	var out []model.FailedPage
	for rows.Next() {
		var fp model.FailedPage
		if err := rows.Scan(&fp.JobID, &fp.URL, &fp.ErrorMessage, &fp.FailedAt, &fp.RetryGeneration); err != nil {
			return nil, apperr.Storage("scan failed page", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// ---- Retention ----------------------------------------------------------

// DeleteExpiredDocuments deletes documents older than cutoff.
func (s *Store) DeleteExpiredDocuments(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, apperr.Storage("delete expired documents", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteExpiredJobs deletes terminal jobs older than cutoff.
func (s *Store) DeleteExpiredJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM crawl_jobs WHERE created_at < $1 AND status IN ('completed','failed','cancelled')
	`, cutoff)
	if err != nil {
		return 0, apperr.Storage("delete expired jobs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
