// Package airtable provides a client for the external tabular record store.
package airtable

import (
	"encoding/json"
	"fmt"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// ListOptions narrows a ListRecords call.
type ListOptions struct {
	Fields     []string
	Formula    string // filterByFormula predicate
	MaxRecords int
	PageSize   int
	Sort       []Sort
	View       string
}

// Sort orders ListRecords results by a field.
type Sort struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"` // asc or desc
}

// ListResponse is one page of GET /v0/{base}/{table}.
type ListResponse struct {
	Records []table.Record `json:"records"`
	Offset  string         `json:"offset,omitempty"`
}

// RecordRequest is the body of create and update calls.
type RecordRequest struct {
	Fields   map[string]any `json:"fields"`
	Typecast bool           `json:"typecast,omitempty"`
}

// DeleteResponse is the body of DELETE /v0/{base}/{table}/{id}.
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// TableInfo describes a table in GET /v0/meta/bases/{base}/tables.
type TableInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TablesResponse is the body of the schema endpoint.
type TablesResponse struct {
	Tables []TableInfo `json:"tables"`
}

// ErrorBody is the error detail the store returns.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse wraps ErrorBody. The store sends either an object or a bare string.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// UnmarshalJSON accepts {"error":"NOT_FOUND"} as well as {"error":{"type":...}}.
func (e *ErrorResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Error) == 0 {
		return fmt.Errorf("missing error field")
	}
	if raw.Error[0] == '"' {
		return json.Unmarshal(raw.Error, &e.Error.Type)
	}
	return json.Unmarshal(raw.Error, &e.Error)
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("table store error (status %d): %s - %s", e.StatusCode, e.Type, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("table store error (status %d): %s", e.StatusCode, e.Type)
	}
	return fmt.Sprintf("table store error (status %d)", e.StatusCode)
}

// HTTPStatus exposes the status code to retry classification.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// ModelNotFound is the error type the store returns when a table is missing or the
// token lacks access to it.
const ModelNotFound = "INVALID_PERMISSIONS_OR_MODEL_NOT_FOUND"
