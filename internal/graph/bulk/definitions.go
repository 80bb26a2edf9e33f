package bulk

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kartograph-backend/internal/errors"
	"kartograph-backend/internal/graph"
)

// DefinitionStore persists DEFINE operations: per-label type metadata kept
// alongside the graph so callers can discover what a label means and which
// properties it carries.
type DefinitionStore struct {
	graph string
}

// NewDefinitionStore creates a store scoped to one graph.
func NewDefinitionStore(graphName string) *DefinitionStore {
	return &DefinitionStore{graph: graphName}
}

const definitionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS graph_type_definitions (
	graph_name          TEXT NOT NULL,
	entity_kind         TEXT NOT NULL,
	label               TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	required_properties JSONB NOT NULL DEFAULT '[]'::jsonb,
	optional_properties JSONB NOT NULL DEFAULT '[]'::jsonb,
	example             JSONB,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (graph_name, entity_kind, label)
)`

const upsertDefinitionSQL = `
INSERT INTO graph_type_definitions
	(graph_name, entity_kind, label, description, required_properties, optional_properties, example, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (graph_name, entity_kind, label) DO UPDATE SET
	description         = EXCLUDED.description,
	required_properties = EXCLUDED.required_properties,
	optional_properties = EXCLUDED.optional_properties,
	example             = EXCLUDED.example,
	updated_at          = now()`

const listDefinitionsSQL = `
SELECT entity_kind, label, description, required_properties, optional_properties, example
FROM graph_type_definitions
WHERE graph_name = $1
ORDER BY entity_kind, label`

// EnsureSchema creates the definitions table when missing.
func (s *DefinitionStore) EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, definitionsSchemaSQL); err != nil {
		return errors.Database("ensure type definitions schema", err)
	}
	return nil
}

// Upsert writes one DEFINE operation inside the batch transaction. Repeated
// DEFINEs for the same (kind, label) overwrite the previous metadata.
func (s *DefinitionStore) Upsert(ctx context.Context, tx pgx.Tx, op *graph.Operation) error {
	required, err := jsonArray(op.RequiredProperties)
	if err != nil {
		return err
	}
	optional, err := jsonArray(op.OptionalProperties)
	if err != nil {
		return err
	}

	var example []byte
	if op.Example != nil {
		example, err = json.Marshal(op.Example)
		if err != nil {
			return errors.Internal("failed to encode definition example", err)
		}
	}

	_, err = tx.Exec(ctx, upsertDefinitionSQL,
		s.graph, string(op.Type), op.Label, op.Description, required, optional, example)
	if err != nil {
		return errors.Database("upsert type definition", err)
	}
	return nil
}

// Definition is one persisted label definition.
type Definition struct {
	Kind               graph.EntityKind `json:"kind"`
	Label              string           `json:"label"`
	Description        string           `json:"description"`
	RequiredProperties []string         `json:"required_properties"`
	OptionalProperties []string         `json:"optional_properties"`
	Example            graph.Properties `json:"example,omitempty"`
}

// List returns every definition recorded for the graph.
func (s *DefinitionStore) List(ctx context.Context, pool *pgxpool.Pool) ([]Definition, error) {
	rows, err := pool.Query(ctx, listDefinitionsSQL, s.graph)
	if err != nil {
		return nil, errors.Database("list type definitions", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var (
			d                  Definition
			kind               string
			required, optional []byte
			example            []byte
		)
		if err := rows.Scan(&kind, &d.Label, &d.Description, &required, &optional, &example); err != nil {
			return nil, errors.Database("scan type definition", err)
		}
		d.Kind = graph.EntityKind(kind)
		if err := json.Unmarshal(required, &d.RequiredProperties); err != nil {
			return nil, errors.Internal("failed to decode required properties", err)
		}
		if err := json.Unmarshal(optional, &d.OptionalProperties); err != nil {
			return nil, errors.Internal("failed to decode optional properties", err)
		}
		if len(example) > 0 {
			if err := json.Unmarshal(example, &d.Example); err != nil {
				return nil, errors.Internal("failed to decode definition example", err)
			}
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func jsonArray(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, errors.Internal("failed to encode property list", err)
	}
	return data, nil
}
