package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"device-dispatch/internal/config"
	"device-dispatch/internal/model"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	cfg := &config.LoggingConfig{
		Level:  "debug",
		Format: "console",
		Output: filepath.Join(t.TempDir(), "logs", "dispatch.log"),
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hello")
	_ = CloseLogger(logger)

	if _, err := NewLogger(&config.LoggingConfig{Level: "loud", Output: "stdout"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{&model.ValidationError{Field: "pin", Message: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("encode: %w", &model.SerializationError{Reason: "x"}), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: ghost", model.ErrUnknownDevice), http.StatusNotFound},
		{model.ErrInvalidTransition, http.StatusConflict},
		{model.ErrQueueFull, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusForError(tt.err); got != tt.want {
			t.Errorf("StatusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorResponseCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "req-42")

	ErrorResponse(c, http.StatusUnprocessableEntity, "nope", errors.New("detail"))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	var body APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.RequestID != "req-42" {
		t.Errorf("body = %+v", body)
	}
	if body.Error == nil || body.Error.Code != "UNPROCESSABLE_ENTITY" || body.Error.Details != "detail" {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestCommandRejectedResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	result := model.NewValidationResult()
	result.AddError(`missing required parameter "pin"`)
	CommandRejectedResponse(c, result)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Error *APIError              `json:"error"`
		Data  model.ValidationResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.IsValid || len(body.Data.Errors) != 1 {
		t.Errorf("data = %+v", body.Data)
	}
	if body.Error.Details != `missing required parameter "pin"` {
		t.Errorf("details = %q", body.Error.Details)
	}
}

func TestValidationErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "req-7")

	ValidationErrorResponse(c, map[string]string{"type": "unknown command type TELEPORT"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Error     *APIError `json:"error"`
		RequestID string    `json:"request_id"`
		Data      struct {
			ValidationErrors map[string]string `json:"validation_errors"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != "VALIDATION_ERROR" || body.RequestID != "req-7" {
		t.Errorf("body = %+v", body)
	}
	if body.Data.ValidationErrors["type"] != "unknown command type TELEPORT" {
		t.Errorf("validation_errors = %v", body.Data.ValidationErrors)
	}
}

func TestLogErrorWithRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := LoggerWithRequestID(zap.New(core), "req-9")

	LogError(logger, "Command not queued", model.ErrQueueFull, zap.String("device_id", "uno"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.ErrorLevel || entry.Message != "Command not queued" {
		t.Errorf("entry = %v %q", entry.Level, entry.Message)
	}
	fields := entry.ContextMap()
	if fields["request_id"] != "req-9" || fields["device_id"] != "uno" {
		t.Errorf("fields = %v", fields)
	}
	if fields["error"] != model.ErrQueueFull.Error() {
		t.Errorf("error field = %v", fields["error"])
	}
}
