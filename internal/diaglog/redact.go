package diaglog

import "strings"

// sensitiveKeys are payload keys whose values never reach the log.
var sensitiveKeys = map[string]bool{
	"authentication": true,
	"password":       true,
	"obs_password":   true,
	"secret":         true,
	"challenge":      true,
	"salt":           true,
	"token":          true,
	"authorization":  true,
}

// Redact returns a copy of v with the values of sensitive keys replaced by
// "[REDACTED]", descending into nested maps and slices. Key matching ignores
// case. Other types are returned as is.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = Redact(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = Redact(child)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = child
		}
		return out
	default:
		return v
	}
}
