package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/quakemap/internal/db"
	"github.com/joeblew999/quakemap/internal/humastar"
)

// DBHandler exposes the DuckDB hover journal.
type DBHandler struct {
	journal *db.Journal
}

// NewDBHandler creates a new database handler. journal may be nil.
func NewDBHandler(journal *db.Journal) *DBHandler {
	return &DBHandler{journal: journal}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("health"))
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *humastar.EmptyInput) (*TablesOutput, error) {
	if h.journal == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	tables, err := h.journal.Tables(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}

	out := &TablesOutput{}
	out.Body.Tables = tables
	return out, nil
}
