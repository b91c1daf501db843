package logger

import (
	"net/url"
	"reflect"
	"strings"
)

// DefaultMaskValue replaces sensitive values in log output.
const DefaultMaskValue = "***"

// maxFilterDepth bounds recursion into nested maps and slices.
const maxFilterDepth = 8

// FilterConfig defines which field names are masked in log output.
type FilterConfig struct {
	// SensitiveFields are matched case-insensitively as substrings of field names.
	SensitiveFields []string
	MaskValue       string
}

// DefaultFilterConfig masks credentials and patient identifiers.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "secret", "api_key",
			"token", "authorization", "credential",
			"broker_url", "database_url",
			"birthdate", "ssn", "fhir_resource_id",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks values whose field names look sensitive.
type SensitiveDataFilter struct {
	fields []string
	mask   string
}

// NewSensitiveDataFilter creates a filter; nil config means DefaultFilterConfig.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	mask := config.MaskValue
	if mask == "" {
		mask = DefaultMaskValue
	}
	fields := make([]string, 0, len(config.SensitiveFields))
	for _, f := range config.SensitiveFields {
		fields = append(fields, strings.ToLower(f))
	}
	return &SensitiveDataFilter{fields: fields, mask: mask}
}

// FilterString masks value when key is sensitive. URLs keep their structure with the password masked.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if value == "" || !f.isSensitive(key) {
		return value
	}
	if masked, ok := f.maskURL(value); ok {
		return masked
	}
	return f.mask
}

// FilterValue masks value when key is sensitive and walks maps and slices for nested keys.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filter(key, value, maxFilterDepth)
}

// FilterFields filters every entry of fields.
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for k, v := range fields {
		filtered[k] = f.FilterValue(k, v)
	}
	return filtered
}

func (f *SensitiveDataFilter) filter(key string, value any, depth int) any {
	if f.isSensitive(key) {
		if s, ok := value.(string); ok {
			return f.FilterString(key, s)
		}
		return f.mask
	}
	if value == nil || depth <= 0 {
		return value
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = f.filter(k, inner, depth-1)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, inner := range v {
			out[k] = f.FilterString(k, inner)
		}
		return out
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return value
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		out[i] = f.filter(key, rv.Index(i).Interface(), depth-1)
	}
	return out
}

func (f *SensitiveDataFilter) isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range f.fields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func (f *SensitiveDataFilter) maskURL(value string) (string, bool) {
	if !strings.Contains(value, "://") {
		return "", false
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.User == nil {
		return value, true
	}
	if _, has := u.User.Password(); !has {
		return value, true
	}
	u.User = url.UserPassword(u.User.Username(), f.mask)
	// url.String escapes the mask; keep it readable.
	return strings.Replace(u.String(), url.QueryEscape(f.mask), f.mask, 1), true
}
