package strategy

import (
	"encoding/json"
	"fmt"
)

const (
	defaultTableType = "unknown"
	defaultRowID     = "0"
)

// StrategyID derives the registry key "<table_type>_<row_id>" from a
// request's data map. Missing or null fields fall back to "unknown" and 0,
// and a nil map (what `"data": null` parses to) is treated as empty. So
// {"data":null} keys as "unknown_0" and {"table_type":"fx","row_id":null}
// as "fx_0"; neither is rejected and a null never renders as text.
func StrategyID(data map[string]any) string {
	return fieldText(data, "table_type", defaultTableType) + "_" + fieldText(data, "row_id", defaultRowID)
}

// fieldText renders a JSON value the way it appeared on the wire: strings
// unquoted, numbers with their literal text, anything else as compact JSON.
func fieldText(data map[string]any, key, def string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return def
	}

	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}

	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}
