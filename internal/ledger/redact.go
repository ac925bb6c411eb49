package ledger

// RedactionMarker replaces sensitive values before an entry is persisted.
// Redaction is irreversible: the original value never reaches storage.
const RedactionMarker = "[REDACTED]"

// sensitiveFields is the fixed set of field names whose values are redacted
// from ledger details. Contact identifiers and personal dates only; the set
// is compiled in, not configurable, so a misconfigured deployment cannot
// accidentally log them.
var sensitiveFields = map[string]bool{
	"email":            true,
	"phone":            true,
	"birthday":         true,
	"anniversary":      true,
	"birth_date":       true,
	"anniversary_date": true,
	"occur_on":         true,
}

// redactDetails returns a deep copy of details with every sensitive field
// replaced by RedactionMarker. Recurses into nested maps, including the
// "changes" sub-map written by update actions. The input is not modified.
func redactDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if sensitiveFields[k] {
			out[k] = RedactionMarker
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = redactDetails(nested)
		case []any:
			out[k] = redactSlice(nested)
		default:
			out[k] = v
		}
	}
	return out
}

func redactSlice(items []any) []any {
	out := make([]any, len(items))
	for i, v := range items {
		switch nested := v.(type) {
		case map[string]any:
			out[i] = redactDetails(nested)
		case []any:
			out[i] = redactSlice(nested)
		default:
			out[i] = v
		}
	}
	return out
}
