package ha

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HistoryEntry is one state sample from the history API.
type HistoryEntry struct {
	State       string         `json:"state"`
	LastChanged string         `json:"last_changed"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// ParseHistoryResponse decodes a history API response. The function is pure:
// it depends only on its arguments, so identical inputs always produce
// identical outputs. The history API nests entries one array per entity;
// entries of all requested entities are flattened in order.
func ParseHistoryResponse(status int, contentType string, body []byte) ([]HistoryEntry, error) {
	if status != 200 {
		return nil, fmt.Errorf("Home Assistant request failed: HTTP %d", status)
	}
	if contentType != "" && !strings.Contains(contentType, "application/json") {
		return nil, fmt.Errorf("unexpected history content type %q", contentType)
	}

	var nested [][]HistoryEntry
	if err := json.Unmarshal(body, &nested); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}

	entries := []HistoryEntry{}
	for _, group := range nested {
		entries = append(entries, group...)
	}
	return entries, nil
}
