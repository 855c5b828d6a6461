package logger

import (
	"errors"
	"testing"
)

func TestSanitizer_Sanitize(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "host key",
			input:    "sync prefs hkey=abcdef123456",
			expected: "sync prefs hkey=***",
		},
		{
			name:     "password",
			input:    "login with password=secret123",
			expected: "login with password=***",
		},
		{
			name:     "bearer token",
			input:    "Authorization: Bearer eyJhbGc...",
			expected: "Authorization: bearer ***",
		},
		{
			name:     "windows user path",
			input:    "data in C:\\Users\\john\\AnkiDroid\\collection.anki2",
			expected: "data in ***:\\Users\\***\\AnkiDroid\\collection.anki2",
		},
		{
			name:     "unix home path",
			input:    "moving /home/john/AnkiDroid/collection.media",
			expected: "moving /home/***/AnkiDroid/collection.media",
		},
		{
			name:     "email partial mask",
			input:    "ankiweb user john.doe@example.com",
			expected: "ankiweb user joh***@example.com",
		},
		{
			name:     "android storage untouched",
			input:    "source /storage/emulated/0/AnkiDroid",
			expected: "source /storage/emulated/0/AnkiDroid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := s.Sanitize(tt.input); result != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSanitizer_SanitizeArgs(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    []any
		expected []any
	}{
		{
			name:     "host key value masked",
			input:    []any{"file", "prefs.db", "hkey", "abcdef123456"},
			expected: []any{"file", "prefs.db", "hkey", "a***6"},
		},
		{
			name:     "path value sanitized",
			input:    []any{"source", "/home/john/AnkiDroid"},
			expected: []any{"source", "/home/***/AnkiDroid"},
		},
		{
			name:     "error value sanitized",
			input:    []any{"error", errors.New("open /home/john/x: permission denied")},
			expected: []any{"error", "open /home/***/x: permission denied"},
		},
		{
			name:     "non-string values untouched",
			input:    []any{"bytes", int64(1024), "passes", 2},
			expected: []any{"bytes", int64(1024), "passes", 2},
		},
		{
			name:     "odd trailing arg kept",
			input:    []any{"user", "x", "dangling"},
			expected: []any{"user", "x", "dangling"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.SanitizeArgs(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("SanitizeArgs() length = %d, want %d", len(result), len(tt.expected))
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("SanitizeArgs()[%d] = %v, want %v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestSanitizer_SanitizeArgs_DoesNotModifyInput(t *testing.T) {
	s := NewSanitizer()
	input := []any{"password", "secret123"}

	s.SanitizeArgs(input)

	if input[1] != "secret123" {
		t.Errorf("input was modified: %v", input)
	}
}

func TestSanitizer_AddRule(t *testing.T) {
	s := NewSanitizer()

	if err := s.AddRule(`deck=\d+`, "deck=***"); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	input := "opened deck=1234567890"
	expected := "opened deck=***"
	if result := s.Sanitize(input); result != expected {
		t.Errorf("Expected %q, got %q", expected, result)
	}

	if err := s.AddRule(`(`, "x"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ab", "***"},
		{"abc", "a***"},
		{"abcdefgh", "a***"},
		{"abcdefghi", "a***i"},
		{"verylongpassword", "v***d"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := maskValue(tt.input); result != tt.expected {
				t.Errorf("maskValue(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"hkey", true},
		{"HKEY", true},
		{"ankiweb_username", true},
		{"password", true},
		{"token", true},
		{"file", false},
		{"source", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := isSensitiveKey(tt.input); result != tt.expected {
				t.Errorf("isSensitiveKey(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
