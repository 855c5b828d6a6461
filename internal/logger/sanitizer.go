package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer 負責過濾日誌中的敏感資訊
//
// Preferences and paths end up in log lines: the AnkiWeb host key and
// username live next to the directory settings, and data directories sit
// under the user's home. Values are masked when their key looks sensitive;
// messages are rewritten with the pattern rules.
//
// 限制說明：sensitive data inside the value of a non-sensitive key is only
// caught if a pattern rule matches it.
type Sanitizer struct {
	mu       sync.RWMutex
	patterns []SanitizeRule
}

// SanitizeRule 單一過濾規則
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

var sensitiveKeys = []string{
	"hkey", "password", "passwd", "token", "secret", "username", "email",
}

// NewSanitizer 建立預設 sanitizer
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultSanitizeRules(),
	}
}

func defaultSanitizeRules() []SanitizeRule {
	return []SanitizeRule{
		// AnkiWeb 認證
		{regexp.MustCompile(`(?i)\bhkey=\S+`), "hkey=***"},
		{regexp.MustCompile(`(?i)\b(password|passwd)=\S+`), "$1=***"},
		{regexp.MustCompile(`(?i)\btoken=\S+`), "token=***"},
		{regexp.MustCompile(`(?i)bearer\s+\S+`), "bearer ***"},

		// 使用者目錄
		{regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\]+`), "***:\\Users\\***"},
		{regexp.MustCompile(`/home/[^/\s]+`), "/home/***"},
		{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/***"},

		// AnkiWeb usernames are email addresses
		{regexp.MustCompile(`([a-zA-Z0-9._%+-]{1,3})[a-zA-Z0-9._%+-]*@`), "$1***@"},
	}
}

// Sanitize applies every pattern rule to input
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.patterns {
		input = rule.Pattern.ReplaceAllString(input, rule.Replacement)
	}
	return input
}

// SanitizeArgs masks the values of sensitive keys and runs string and error
// values of other keys through the pattern rules. args is not modified.
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 0; i < len(result)-1; i += 2 {
		key, ok := result[i].(string)
		if !ok {
			continue
		}

		var value string
		switch v := result[i+1].(type) {
		case string:
			value = v
		case error:
			value = v.Error()
		case fmt.Stringer:
			value = v.String()
		default:
			continue
		}

		if isSensitiveKey(key) {
			result[i+1] = maskValue(value)
		} else {
			result[i+1] = s.Sanitize(value)
		}
	}

	return result
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lowerKey, sk) {
			return true
		}
	}
	return false
}

// maskValue 遮蔽值（保留前後各1字元）
func maskValue(value string) string {
	switch {
	case len(value) <= 2:
		return "***"
	case len(value) <= 8:
		return value[:1] + "***"
	default:
		return value[:1] + "***" + value[len(value)-1:]
	}
}

// AddRule 新增自訂過濾規則
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, SanitizeRule{Pattern: re, Replacement: replacement})
	return nil
}
