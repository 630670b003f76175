package models

// Record is a single log event: a mapping of field name to value.
// Records have arbitrary shape; the delimited encoder only cares about
// the configured payload field, everything else rides along untouched.
type Record map[string]interface{}

// String returns the record field as a string if present and of string type.
func (r Record) String(field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
