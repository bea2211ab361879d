package model

import "time"

// ExtractedContent is the normalized text and light metadata pulled from one
// fetched page. It is never mutated after creation.
type ExtractedContent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MainText    string `json:"main_text"`
	FullText    string `json:"full_text"`

	// Markdown renders the matched regions for prompt context. It does not
	// participate in hashing or diffing.
	Markdown string `json:"markdown,omitempty"`

	Keywords  []string `json:"keywords"`
	Length    int      `json:"length"`
	WordCount int      `json:"word_count"`

	// Degraded is set when the content selector matched nothing and the
	// whole document was used instead.
	Degraded bool `json:"degraded,omitempty"`
}

// Snapshot is one observed, extracted and hashed state of a URL.
type Snapshot struct {
	URL         string           `json:"url" bson:"url"`
	TakenAt     time.Time        `json:"taken_at" bson:"taken_at"`
	ContentHash string           `json:"content_hash" bson:"content_hash"`
	Extracted   ExtractedContent `json:"extracted" bson:"extracted"`
}
