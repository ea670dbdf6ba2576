package models

// WorkItem is one unit of work discovered in the holding area. Items are
// immutable once enumerated; ID must be unique and stable across passes so
// the ledger can recognize an item it has already classified.
type WorkItem struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Path locates the payload for lazy loading; the engine never reads it
	// itself, the extractor does.
	Path string `json:"path,omitempty"`
	Size int64  `json:"size,omitempty"`
	// ModTS is the payload's last-modified timestamp (ns)
	ModTS int64 `json:"mod_ts,omitempty"`
}

// Record is the extracted, structured form of a work item, ready for the
// warehouse. Row contents are opaque to the engine.
type Record struct {
	ItemID      string           `json:"item_id"`
	ItemName    string           `json:"item_name,omitempty"`
	Rows        []map[string]any `json:"rows"`
	ExtractedTS int64            `json:"extracted_ts"`
}
