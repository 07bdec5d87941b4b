package types

import "time"

// Record is a piece of the patient's own documented history.
type Record struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	RecordType   string    `json:"record_type"`
	ProviderName string    `json:"provider_name,omitempty"`
	RecordDate   time.Time `json:"record_date"`
	// Similarity is set by semantic search only.
	Similarity float64 `json:"similarity,omitempty"`
}

type Appointment struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ProviderName string    `json:"provider_name,omitempty"`
	Location     string    `json:"location,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
}
