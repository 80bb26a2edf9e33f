package graph

import (
	"encoding/json"

	"kartograph-backend/internal/errors"
)

// Properties is an open map of property name to value. Values are the JSON
// variants: string, float64, bool, nil, []any, map[string]any.
type Properties map[string]any

// WithID returns a copy of p carrying the logical id under the "id" key.
// Every persisted node and edge row owns its logical id inside properties;
// the copy keeps the caller's map unmodified.
func (p Properties) WithID(id string) Properties {
	merged := make(Properties, len(p)+1)
	for k, v := range p {
		merged[k] = v
	}
	merged["id"] = id
	return merged
}

// CanonicalJSON renders the map with sorted keys, the encoding the copy
// stream and the staging tables carry. encoding/json already emits map keys
// in sorted order.
func (p Properties) CanonicalJSON() (string, error) {
	if p == nil {
		p = Properties{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Internal("failed to encode properties", err)
	}
	return string(data), nil
}
