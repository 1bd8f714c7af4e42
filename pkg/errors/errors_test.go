package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CategoryProtocol, SeverityMedium, "test error")
	if err == nil {
		t.Fatal("New returned nil")
	}
	if err.Category != CategoryProtocol {
		t.Errorf("Expected category %s, got %s", CategoryProtocol, err.Category)
	}
	if err.Severity != SeverityMedium {
		t.Errorf("Expected severity %s, got %s", SeverityMedium, err.Severity)
	}
	if err.Message != "test error" {
		t.Errorf("Expected message 'test error', got '%s'", err.Message)
	}
	if err.Retryable {
		t.Error("Expected non-retryable error")
	}
}

func TestWrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := Wrap(CategoryCodec, SeverityHigh, "wrapped error", underlying)

	if err.Underlying == nil {
		t.Error("Expected underlying error to be set")
	}
	if !errors.Is(err, underlying) {
		t.Error("Wrapped error should unwrap to underlying error")
	}
}

func TestNewRetryable(t *testing.T) {
	err := NewRetryable(CategoryTimeout, SeverityMedium, "timeout error")
	if !err.Retryable {
		t.Error("Expected retryable error")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      *DCNetError
		contains string
	}{
		{
			name:     "simple error",
			err:      New(CategoryGroup, SeverityLow, "encoding failed"),
			contains: "[group:low] encoding failed",
		},
		{
			name:     "wrapped error",
			err:      Wrap(CategoryCodec, SeverityHigh, "codec error", fmt.Errorf("underlying")),
			contains: "[codec:high] codec error: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			if errStr != tt.contains {
				t.Errorf("Expected error string to contain '%s', got '%s'", tt.contains, errStr)
			}
		})
	}
}

func TestWithContext(t *testing.T) {
	err := New(CategoryProtocol, SeverityMedium, "test")
	err.WithContext("slot", 3)
	err.WithContext("interval", 7)

	if err.Context == nil {
		t.Fatal("Context not initialized")
	}
	if err.Context["slot"] != 3 {
		t.Error("Context 'slot' not set correctly")
	}
	if err.Context["interval"] != 7 {
		t.Error("Context 'interval' not set correctly")
	}
}

func TestIs(t *testing.T) {
	err1 := New(CategoryProtocol, SeverityMedium, "error1")
	err2 := New(CategoryProtocol, SeverityHigh, "error2")
	err3 := New(CategoryCodec, SeverityMedium, "error3")

	if !errors.Is(err1, err2) {
		t.Error("Errors with same category should match with Is")
	}
	if errors.Is(err1, err3) {
		t.Error("Errors with different categories should not match")
	}
}

func TestGroupError(t *testing.T) {
	underlying := fmt.Errorf("no quadratic residue found")
	err := GroupError("encode failed", underlying)

	if err.Category != CategoryGroup {
		t.Errorf("Expected category %s, got %s", CategoryGroup, err.Category)
	}
	if err.Retryable {
		t.Error("Group errors should not be retryable")
	}
}

func TestCodecError(t *testing.T) {
	err := CodecError("payload exceeds cell capacity", nil)
	if err.Category != CategoryCodec {
		t.Errorf("Expected category %s, got %s", CategoryCodec, err.Category)
	}
	if err.Retryable {
		t.Error("Codec errors should not be retryable")
	}
}

func TestProtocolError(t *testing.T) {
	err := ProtocolError("invalid cell", nil)
	if err.Category != CategoryProtocol {
		t.Errorf("Expected category %s, got %s", CategoryProtocol, err.Category)
	}
	if err.Retryable {
		t.Error("Protocol errors should not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable error",
			err:      NewRetryable(CategoryTimeout, SeverityMedium, "timeout"),
			expected: true,
		},
		{
			name:     "non-retryable error",
			err:      New(CategoryProtocol, SeverityHigh, "protocol error"),
			expected: false,
		},
		{
			name:     "standard error",
			err:      fmt.Errorf("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("Expected IsRetryable to return %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetCategory(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{
			name:     "dcnet error",
			err:      New(CategoryCodec, SeverityMedium, "test"),
			expected: CategoryCodec,
		},
		{
			name:     "standard error",
			err:      fmt.Errorf("standard error"),
			expected: CategoryInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetCategory(tt.err)
			if result != tt.expected {
				t.Errorf("Expected category %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Severity
	}{
		{
			name:     "dcnet error",
			err:      New(CategoryCodec, SeverityCritical, "test"),
			expected: SeverityCritical,
		},
		{
			name:     "standard error",
			err:      fmt.Errorf("standard error"),
			expected: SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetSeverity(tt.err)
			if result != tt.expected {
				t.Errorf("Expected severity %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestIsCategory(t *testing.T) {
	err := New(CategoryProtocol, SeverityMedium, "test")

	if !IsCategory(err, CategoryProtocol) {
		t.Error("Expected IsCategory to return true for matching category")
	}
	if IsCategory(err, CategoryCodec) {
		t.Error("Expected IsCategory to return false for non-matching category")
	}

	stdErr := fmt.Errorf("standard error")
	if IsCategory(stdErr, CategoryProtocol) {
		t.Error("Expected IsCategory to return false for standard error")
	}
}

func TestAllErrorConstructors(t *testing.T) {
	tests := []struct {
		name        string
		constructor func() *DCNetError
		category    ErrorCategory
		shouldRetry bool
	}{
		{
			name:        "GroupError",
			constructor: func() *DCNetError { return GroupError("test", nil) },
			category:    CategoryGroup,
			shouldRetry: false,
		},
		{
			name:        "CodecError",
			constructor: func() *DCNetError { return CodecError("test", nil) },
			category:    CategoryCodec,
			shouldRetry: false,
		},
		{
			name:        "VerdictError",
			constructor: func() *DCNetError { return VerdictError("test", nil) },
			category:    CategoryVerdict,
			shouldRetry: false,
		},
		{
			name:        "ProtocolError",
			constructor: func() *DCNetError { return ProtocolError("test", nil) },
			category:    CategoryProtocol,
			shouldRetry: false,
		},
		{
			name:        "CryptoError",
			constructor: func() *DCNetError { return CryptoError("test", nil) },
			category:    CategoryCrypto,
			shouldRetry: false,
		},
		{
			name:        "ConfigurationError",
			constructor: func() *DCNetError { return ConfigurationError("test", nil) },
			category:    CategoryConfiguration,
			shouldRetry: false,
		},
		{
			name:        "TimeoutError",
			constructor: func() *DCNetError { return TimeoutError("test", nil) },
			category:    CategoryTimeout,
			shouldRetry: true,
		},
		{
			name:        "NetworkError",
			constructor: func() *DCNetError { return NetworkError("test", nil) },
			category:    CategoryNetwork,
			shouldRetry: true,
		},
		{
			name:        "InternalError",
			constructor: func() *DCNetError { return InternalError("test", nil) },
			category:    CategoryInternal,
			shouldRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor()
			if err.Category != tt.category {
				t.Errorf("Expected category %s, got %s", tt.category, err.Category)
			}
			if err.Retryable != tt.shouldRetry {
				t.Errorf("Expected retryable=%v, got %v", tt.shouldRetry, err.Retryable)
			}
		})
	}
}
