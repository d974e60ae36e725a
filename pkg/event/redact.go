// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"regexp"
	"strings"
)

// sensitiveKeyFragments are object-key substrings (lowercased) that mark
// a value as sensitive regardless of its own shape.
var sensitiveKeyFragments = []string{
	"secret", "key", "token", "password", "credential", "authorization",
}

// sensitiveValuePatterns match sensitive-shaped strings independent of
// their key name.
var sensitiveValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{10,}\b`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{10,}`),
	regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`),
	regexp.MustCompile(`(?i)(api_key|secret|token|password)\s*[:=]\s*\S{20,}`),
}

// ScanSensitive reports whether v (recursively, if a map/slice) contains
// any value that matches a sensitive indicator.
func ScanSensitive(v any) bool {
	return scan(v, "")
}

func scan(v any, keyHint string) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if keyIsSensitive(k) {
				return true
			}
			if scan(val, k) {
				return true
			}
		}
		return false
	case Payload:
		return scan(map[string]any(t), keyHint)
	case []any:
		for _, item := range t {
			if scan(item, keyHint) {
				return true
			}
		}
		return false
	case string:
		return stringIsSensitive(t)
	default:
		return false
	}
}

func keyIsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

func stringIsSensitive(s string) bool {
	for _, re := range sensitiveValuePatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Redact returns a deep copy of v with sensitive values masked according
// to level. Non-sensitive structure is preserved unchanged.
func Redact(v any, level RedactionLevel) any {
	return redactValue(v, "", level)
}

func redactValue(v any, keyHint string, level RedactionLevel) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if keyIsSensitive(k) {
				out[k] = maskString(stringify(val), level)
				continue
			}
			out[k] = redactValue(val, k, level)
		}
		return out
	case Payload:
		r := redactValue(map[string]any(t), keyHint, level)
		return Payload(r.(map[string]any))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = redactValue(item, keyHint, level)
		}
		return out
	case string:
		if stringIsSensitive(t) {
			return maskString(t, level)
		}
		return t
	default:
		return v
	}
}

func maskString(s string, level RedactionLevel) string {
	switch level {
	case RedactionStrict:
		return "[REDACTED]"
	case RedactionPartial:
		if len(s) <= 4 {
			return s + "***"
		}
		return s[:4] + "***"
	default:
		return s
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "[REDACTED]"
}

// ResolveLevel implements the escalation rule from the redaction policy:
// if the payload contains a sensitive indicator and the caller did not
// explicitly request strict, the level is escalated to strict. A
// requested "none" only short-circuits when the scan found nothing.
func ResolveLevel(payload Payload, requested RedactionLevel) RedactionLevel {
	sensitive := ScanSensitive(payload)
	if sensitive {
		return RedactionStrict
	}
	if requested == "" {
		return RedactionNone
	}
	return requested
}
