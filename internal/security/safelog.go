// Package security masks provider credentials before they reach logs or
// error output.
package security

import (
	"net/url"
	"regexp"
	"strings"
)

// sensitivePattern matches key=value pairs as they appear in query strings
// and log lines.
var sensitivePattern = regexp.MustCompile(`(?i)\b(api[_-]?key|api[_-]?token|access[_-]?token|token|secret|password)=([^&\s"']+)`)

// MaskCredential keeps at most the first and last four characters of value.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks the values of sensitive key=value pairs in s.
func Redact(s string) string {
	return sensitivePattern.ReplaceAllStringFunc(s, func(match string) string {
		key, value, _ := strings.Cut(match, "=")
		return key + "=" + MaskCredential(value)
	})
}

// RedactError returns err with credentials in its message masked. A
// transport error keeps its cause, so timeouts still match with errors.Is.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	if ue, ok := err.(*url.Error); ok {
		return &url.Error{Op: ue.Op, URL: Redact(ue.URL), Err: ue.Err}
	}
	msg := err.Error()
	if masked := Redact(msg); masked != msg {
		return &redactedError{msg: masked, err: err}
	}
	return err
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
