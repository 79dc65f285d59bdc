package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// logEntry はJSON構造化ログの1行を表す。
type logEntry struct {
	Level   string  `json:"level"`
	Msg     string  `json:"msg"`
	Method  string  `json:"method"`
	Path    string  `json:"path"`
	Status  int     `json:"status"`
	Dur     float64 `json:"duration_ms"`
	UserID  string  `json:"user_id"`
	ReqID   string  `json:"request_id"`
	RawBody string  `json:"-"`
}

func captureLog(t *testing.T, buf *bytes.Buffer) logEntry {
	t.Helper()
	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry %q: %v", buf.String(), err)
	}
	entry.RawBody = buf.String()
	return entry
}

// TestLoggingMiddleware_RecordsRequestAttributes はメソッド・パス・ステータスが
// ログに記録されることを検証する。
func TestLoggingMiddleware_RecordsRequestAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/add-user-profile", nil)
	w := httptest.NewRecorder()
	NewLoggingMiddleware(logger, newMockMetricsCollector())(next).ServeHTTP(w, req)

	entry := captureLog(t, &buf)
	if entry.Msg != "http_request" {
		t.Errorf("msg = %q, want http_request", entry.Msg)
	}
	if entry.Method != http.MethodPost {
		t.Errorf("method = %q, want POST", entry.Method)
	}
	if entry.Path != "/api/v1/auth/add-user-profile" {
		t.Errorf("path = %q, want /api/v1/auth/add-user-profile", entry.Path)
	}
	if entry.Status != http.StatusCreated {
		t.Errorf("status = %d, want %d", entry.Status, http.StatusCreated)
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %q, want INFO", entry.Level)
	}
}

// TestLoggingMiddleware_LevelByStatus はステータスコードに応じてログレベルが
// 変わることを検証する。
func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		NewLoggingMiddleware(logger, newMockMetricsCollector())(next).ServeHTTP(w, req)

		if entry := captureLog(t, &buf); entry.Level != tt.wantLevel {
			t.Errorf("status %d: level = %q, want %q", tt.status, entry.Level, tt.wantLevel)
		}
	}
}

// TestLoggingMiddleware_IncludesUserID は認証済みリクエストのuidがログに
// 含まれることを検証する。
func TestLoggingMiddleware_IncludesUserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithSubject("uid-0001")
	w := httptest.NewRecorder()
	NewLoggingMiddleware(logger, newMockMetricsCollector())(next).ServeHTTP(w, req)

	if entry := captureLog(t, &buf); entry.UserID != "uid-0001" {
		t.Errorf("user_id = %q, want uid-0001", entry.UserID)
	}
}

// TestLoggingMiddleware_NeverLogsAuthorizationHeader はトークンがログに
// 漏れないことを検証する。
func TestLoggingMiddleware_NeverLogsAuthorizationHeader(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer super-secret-token")
	w := httptest.NewRecorder()
	NewLoggingMiddleware(logger, newMockMetricsCollector())(next).ServeHTTP(w, req)

	if entry := captureLog(t, &buf); bytes.Contains([]byte(entry.RawBody), []byte("super-secret-token")) {
		t.Error("log must not contain the bearer token")
	}
}

// TestLoggingMiddleware_RecordsMetrics はステータスコードとレイテンシが
// メトリクスに記録されることを検証する。
func TestLoggingMiddleware_RecordsMetrics(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	collector := newMockMetricsCollector()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	NewLoggingMiddleware(logger, collector)(next).ServeHTTP(w, req)

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusNotFound {
		t.Errorf("statuses = %v, want [404]", collector.statuses)
	}
	if collector.latencyCount != 1 {
		t.Errorf("latencyCount = %d, want 1", collector.latencyCount)
	}
}

// TestRecoveryMiddleware_ConvertsPanicTo500 はpanicが500レスポンスに変換されることを検証する。
func TestRecoveryMiddleware_ConvertsPanicTo500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	NewRecoveryMiddleware()(next).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := decodeErrorBody(t, w); body.Code != "INTERNAL_SERVER_ERROR" {
		t.Errorf("code = %q, want INTERNAL_SERVER_ERROR", body.Code)
	}
}
