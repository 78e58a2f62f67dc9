package remote

import "time"

// JobOutput holds the output locations a job status or history record may
// expose once the job is done.
type JobOutput struct {
	MeshLocation      string `json:"mesh_location,omitempty"`
	ThumbnailLocation string `json:"thumbnail_location,omitempty"`
	GenerationInfo    string `json:"generation_info,omitempty"`
}

// JobStatus is the live status of a single job.
type JobStatus struct {
	JobID           string     `json:"job_id"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ProcessingTime  *float64   `json:"processing_time,omitempty"`
	ModelPreference string     `json:"model_preference,omitempty"`
	InputImageURL   string     `json:"input_image_url,omitempty"`
	Result          *JobOutput `json:"result,omitempty"`
}

// ResultInfo is the secondary, best-effort download descriptor for a
// completed job.
type ResultInfo struct {
	DownloadableURL string `json:"downloadable_url"`
	FileSize        int64  `json:"file_size"`
	FileExtension   string `json:"file_extension"`
}

// HistoryRecord is one entry of the authoritative job history. Unlike a live
// status it carries the feature tag that produced the job.
type HistoryRecord struct {
	JobID           string     `json:"job_id"`
	Feature         string     `json:"feature"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ProcessingTime  *float64   `json:"processing_time,omitempty"`
	ModelPreference string     `json:"model_preference,omitempty"`
	Result          *JobOutput `json:"result,omitempty"`
}

// HistoryFilter narrows a history query. Zero values mean "unset".
type HistoryFilter struct {
	Status  string
	Feature string
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}
