package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"moneynotes/internal/core"
	"moneynotes/internal/screen"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"id": "123", "name": "test", "amount": 42.5}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	if id := parser.Get("id"); id != "123" {
		t.Errorf("Get('id') = %q, want '123'", id)
	}

	if name := parser.Get("name"); name != "test" {
		t.Errorf("Get('name') = %q, want 'test'", name)
	}

	if amount := parser.Get("amount"); amount != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", amount)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "id=456&name=form+test&value=100"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}

	if id := parser.Get("id"); id != "456" {
		t.Errorf("Get('id') = %q, want '456'", id)
	}

	if name := parser.Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequireMethod(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		allowed []string
		wantErr bool
	}{
		{"POST allowed", http.MethodPost, []string{http.MethodPost}, false},
		{"DELETE allowed with multiple", http.MethodDelete, []string{http.MethodDelete, http.MethodPost}, false},
		{"GET not allowed", http.MethodGet, []string{http.MethodPost}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireMethod(req, tt.allowed...)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestRequirePOST(t *testing.T) {
	postReq := httptest.NewRequest(http.MethodPost, "/test", nil)
	if result := RequirePOST(postReq); result != nil {
		t.Error("RequirePOST should allow POST requests")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/test", nil)
	if result := RequirePOST(getReq); result == nil {
		t.Error("RequirePOST should reject GET requests")
	}
}

func TestRequireDeleteOrPOST(t *testing.T) {
	tests := []struct {
		method  string
		wantErr bool
	}{
		{http.MethodPost, false},
		{http.MethodDelete, false},
		{http.MethodGet, true},
		{http.MethodPut, true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireDeleteOrPOST(req)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestRequestBodyParser_GetTextKeepsWhitespace(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("category=+Food+&type=+expense+"))
	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := parser.GetText("category"); got != " Food " {
		t.Errorf("GetText('category') = %q, want ' Food '", got)
	}
	if got := parser.Get("type"); got != "expense" {
		t.Errorf("Get('type') = %q, want 'expense'", got)
	}
}

func TestRequestBodyParser_Form(t *testing.T) {
	tests := []struct {
		name string
		body string
		want screen.Form
	}{
		{"form", "type=Expense&category=Food&amount=12%2C5", screen.Form{Type: core.Expense, Category: "Food", Amount: "12,5"}},
		{"json", `{"type":"income","category":"Gift","amount":10}`, screen.Form{Type: core.Income, Category: "Gift", Amount: "10"}},
		{"missing type defaults to income", "category=X&amount=1", screen.Form{Type: core.Income, Category: "X", Amount: "1"}},
		{"empty body", "", screen.NewForm()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(tt.body))
			parser := NewRequestBodyParser(req)
			if err := parser.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := parser.Form(); got != tt.want {
				t.Errorf("Form() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"id":`))
	req.Header.Set("Content-Type", "application/json")
	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	if parser.IsJSON() {
		t.Error("IsJSON() must be false after a failed parse")
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr error
	}{
		{"0", 0, nil},
		{"3", 3, nil},
		{"-1", -1, nil},
		{"", 0, errMissingPosition},
		{"two", 0, errInvalidPosition},
		{"1.5", 0, errInvalidPosition},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePosition(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParsePosition(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePosition(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTransactionID(t *testing.T) {
	id := uuid.New()
	got, err := ParseTransactionID(" " + id.String() + " ")
	if err != nil || got != id {
		t.Fatalf("ParseTransactionID() = %v, %v", got, err)
	}
	if _, err := ParseTransactionID("42"); !errors.Is(err, errInvalidID) {
		t.Fatalf("expected errInvalidID, got %v", err)
	}
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"plain form", map[string]string{"Content-Type": "application/x-www-form-urlencoded"}, false},
		{"json body", map[string]string{"Content-Type": "application/json"}, true},
		{"accept json", map[string]string{"Accept": "application/json"}, true},
		{"htmx wins", map[string]string{"Accept": "application/json", "HX-Request": "true"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := WantsJSON(req); got != tt.want {
				t.Errorf("WantsJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Food", "Food"},
		{"  Food  ", "  Food  "},
		{"Fo\x00od\x7f", "Food"},
		{"a\tb", "a\tb"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
