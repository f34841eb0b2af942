package model

import "time"

// ScrapeRunStatus is the outcome recorded for one (source, city) batch.
type ScrapeRunStatus string

const (
	ScrapeRunCompleted ScrapeRunStatus = "completed"
	ScrapeRunPartial   ScrapeRunStatus = "partial"
	ScrapeRunFailed    ScrapeRunStatus = "failed"
)

// ScrapeRun is the write-once audit record for one (source, city) batch.
type ScrapeRun struct {
	ID          string          `json:"id"`
	State       string          `json:"state"`
	City        string          `json:"city"`
	Source      string          `json:"source"`
	Status      ScrapeRunStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Error       string          `json:"error,omitempty"`
}

// CapturePayload is the raw extractor output kept for replay.
type CapturePayload struct {
	Venues   []ExtractedVenue `json:"restaurants"`
	Markdown string           `json:"markdown,omitempty"`
}

// RawCapture is one persisted extractor payload for a URL.
type RawCapture struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	City      string         `json:"city"`
	State     string         `json:"state"`
	ScrapedAt time.Time      `json:"scraped_at"`
	Payload   CapturePayload `json:"payload"`
}

// ProcessResult counts what happened to the items extracted from one URL.
type ProcessResult struct {
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Published  int `json:"published"`
	Pending    int `json:"pending"`
	Normalized int `json:"normalized"`
	Scored     int `json:"scored"`
	Validated  int `json:"validated"`
}

// Add accumulates o into r.
func (r *ProcessResult) Add(o ProcessResult) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Published += o.Published
	r.Pending += o.Pending
	r.Normalized += o.Normalized
	r.Scored += o.Scored
	r.Validated += o.Validated
}

// URLDebug is the per-URL diagnostic breakdown of a run.
type URLDebug struct {
	URL        string `json:"url"`
	Extracted  int    `json:"extracted"`
	Normalized int    `json:"normalized"`
	Scored     int    `json:"scored"`
	Validated  int    `json:"validated"`
	Error      string `json:"error,omitempty"`
}

// RunStats is the aggregate result returned to whoever triggered a run.
type RunStats struct {
	OK        bool       `json:"ok"`
	Source    string     `json:"source,omitempty"`
	Inserted  int        `json:"inserted"`
	Updated   int        `json:"updated"`
	Published int        `json:"published"`
	Pending   int        `json:"pending"`
	Debug     []URLDebug `json:"debug,omitempty"`
}
