package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	err := NewError("invalid_rating", "⚠️ Veuillez choisir une note entre 1 et 5.\n", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"reason": "invalid_rating"})
	WriteError(ctx, rec, err)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "invalid_rating" || body["reason"] != "invalid_rating" || body["trace_id"] != "trace-1" {
		t.Fatalf("unexpected payload %v", body)
	}
	if body["message"] != "⚠️ Veuillez choisir une note entre 1 et 5." {
		t.Fatalf("expected sanitised message, got %q", body["message"])
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("x", "y", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestWriteErrorKeepsReservedKeys(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, NotFound("piece_not_found", "piece not found").
		WithDetails(map[string]any{"status": 200, "pieceId": 9}))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusNotFound || body["status"] != float64(http.StatusNotFound) || body["pieceId"] != float64(9) {
		t.Fatalf("unexpected payload %v (code %d)", body, rec.Code)
	}
}

func TestCleanCutsOnRuneBoundary(t *testing.T) {
	got := clean("ééé", 3)
	if got != "é" {
		t.Fatalf("expected one rune, got %q", got)
	}
}
