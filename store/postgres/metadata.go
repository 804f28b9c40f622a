package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chaingraph/indexer/storelayout"
)

// trackTimeout bounds the metadata POST; table tracking is a best-effort
// post-step and must never stall schema creation.
const trackTimeout = 10 * time.Second

type trackArg struct {
	Type string      `json:"type"`
	Args interface{} `json:"args"`
}

type trackTableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

type trackRelationship struct {
	Table trackTableRef `json:"table"`
	Name  string        `json:"name"`
	Using struct {
		ForeignKeyConstraintOn []string `json:"foreign_key_constraint_on"`
	} `json:"using"`
}

// buildTrackDocument renders the bulk "track tables / track relationships"
// document for every table and reference column in layout.
func buildTrackDocument(schema string, layout *storelayout.Layout) map[string]interface{} {
	var args []trackArg
	for _, t := range layout.Tables {
		args = append(args, trackArg{
			Type: "pg_track_table",
			Args: map[string]interface{}{"table": trackTableRef{Schema: schema, Name: t.Name}},
		})
	}
	for _, t := range layout.Tables {
		for _, c := range t.Columns {
			if c.Kind != storelayout.ColReference || c.RefTable == "" {
				continue
			}
			rel := trackRelationship{
				Table: trackTableRef{Schema: schema, Name: t.Name},
				Name:  c.Name,
			}
			rel.Using.ForeignKeyConstraintOn = []string{c.Name, "block_range"}
			args = append(args, trackArg{Type: "pg_create_object_relationship", Args: rel})
		}
	}
	return map[string]interface{}{"type": "bulk", "args": args}
}

// TrackLayout posts the layout's track document to the GraphQL metadata
// service at url, exposing the deployment's tables and relationships to the
// query layer. Best effort: callers log failures and continue.
func TrackLayout(ctx context.Context, url, schema string, layout *storelayout.Layout) error {
	body, err := json.Marshal(buildTrackDocument(schema, layout))
	if err != nil {
		return fmt.Errorf("marshal track document: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, trackTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build track request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post track document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("track document rejected: %s", resp.Status)
	}
	return nil
}
