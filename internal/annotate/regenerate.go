package annotate

import (
	"context"

	"github.com/google/uuid"

	"codedox/internal/apperr"
	"codedox/internal/model"
)

// SnippetStore is the narrow slice of *store.Store the Regenerate
// operation needs, so it can be faked in tests without a database.
type SnippetStore interface {
	ListSnippetsBySource(ctx context.Context, sourceID uuid.UUID, limit, offset int) ([]*model.CodeSnippet, int64, error)
	RegenerateSnippetMetadata(ctx context.Context, id uuid.UUID, language, title, description string) error
}

// Regenerate re-runs annotation for every snippet belonging to a source,
// overwriting language/title/description in place while preserving
// snippet identity and code.
func Regenerate(ctx context.Context, pool *Pool, st SnippetStore, sourceID uuid.UUID, onProgress ProgressFunc) (int, error) {
	const pageSize = 200
	total := 0

	for offset := 0; ; offset += pageSize {
		snippets, _, err := st.ListSnippetsBySource(ctx, sourceID, pageSize, offset)
		if err != nil {
			return total, apperr.Storage("list snippets for regenerate", err)
		}
		if len(snippets) == 0 {
			break
		}

		reqs := make([]Request, len(snippets))
		byID := make(map[string]uuid.UUID, len(snippets))
		for i, s := range snippets {
			id := s.ID.String()
			byID[id] = s.ID
			reqs[i] = Request{
				SnippetID:   id,
				Code:        s.Code,
				Language:    s.Language,
				Title:       s.Title,
				Description: s.Description,
			}
		}

		results := pool.Run(ctx, reqs, onProgress)
		for _, r := range results {
			id, ok := byID[r.SnippetID]
			if !ok || r.Err != nil {
				continue
			}
			if err := st.RegenerateSnippetMetadata(ctx, id, r.Language, r.Title, r.Description); err != nil {
				return total, apperr.Storage("persist regenerated snippet", err)
			}
			total++
		}

		if len(snippets) < pageSize {
			break
		}
	}

	return total, nil
}
