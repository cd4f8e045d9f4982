package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

func TestWriteSuccessWritesPayloadUnwrapped(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"success": true, "message": "ok"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["success"] != true || body["message"] != "ok" {
		t.Fatalf("unexpected payload %v", body)
	}
	if _, wrapped := body["data"]; wrapped {
		t.Fatalf("payload should not be wrapped: %v", body)
	}
}

func TestWriteSuccessStatusCreated(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]bool{"success": true})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), nil, w, err)

	if got := w.Code; got != http.StatusBadRequest {
		t.Fatalf("expected status 400 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", body.Code)
	}
	if body.Error != "bad input" {
		t.Fatalf("unexpected message %q", body.Error)
	}
	if body.Details == nil {
		t.Fatalf("expected details in public payload")
	}
}

func TestWriteErrorStateConflictIsBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeStateConflict, "listing not found or already processed"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "listing not found or already processed" {
		t.Fatalf("unexpected message %q", body.Error)
	}
}

func TestWriteErrorRefundNotRecordedKeepsDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeRefundNotRecorded, errors.New("tx aborted"), "refund processed upstream but not recorded").
		WithDetails(map[string]any{"processor_refund_id": "re_123"})
	WriteError(context.Background(), nil, w, err)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	details, ok := body["details"].(map[string]any)
	if !ok || details["processor_refund_id"] != "re_123" {
		t.Fatalf("expected refund id in details, got %v", body)
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %s", body.Code)
	}
	if body.Error != "internal server error" {
		t.Fatalf("internal errors should use the public message, got %q", body.Error)
	}
	if body.Details != nil {
		t.Fatalf("details should be omitted for internal errors")
	}
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestWriteErrorLogsClientFaultsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeNotFound, "listing not found"))

	entry := decodeLogLine(t, &buf)
	if entry["level"] != "warn" || entry["message"] != "request.rejected" {
		t.Fatalf("unexpected log entry %v", entry)
	}
	if entry["status"] != float64(http.StatusNotFound) {
		t.Fatalf("expected status field, got %v", entry["status"])
	}
}

func TestWriteErrorLogsPostgresDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &buf})

	cause := fmt.Errorf("insert escrow: %w", &pgconn.PgError{Code: "23503", ConstraintName: "escrows_transaction_id_fkey", TableName: "escrows"})
	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "create escrow"))

	entry := decodeLogLine(t, &buf)
	if entry["level"] != "error" || entry["message"] != "request.error" {
		t.Fatalf("unexpected log entry %v", entry)
	}
	if entry["pg_code"] != "23503" || entry["pg_constraint"] != "escrows_transaction_id_fkey" || entry["pg_table"] != "escrows" {
		t.Fatalf("expected postgres diagnostics, got %v", entry)
	}
}
