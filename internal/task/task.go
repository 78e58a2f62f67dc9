package task

import (
	"strings"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is an absorbing state: a completed or failed
// task is never polled again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var statusRank = map[Status]int{
	StatusQueued:     0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// CanAdvance reports whether the transition from -> to is legal. Status only
// moves forward (queued -> processing -> completed/failed, with the direct
// queued -> completed/failed shortcut for fast jobs); the one legal backward
// move is terminal -> queued, used by manual retry.
func CanAdvance(from, to Status) bool {
	if from.Terminal() {
		return to == StatusQueued
	}
	return statusRank[to] > statusRank[from]
}

// Type identifies which feature panel produced a task.
type Type string

const (
	TypeTextToMesh        Type = "text_to_mesh"
	TypeImageToMesh       Type = "image_to_mesh"
	TypeTextureGeneration Type = "texture_generation"
	TypeMeshSegmentation  Type = "mesh_segmentation"
	TypeAutoRigging       Type = "auto_rigging"
)

var typeLabels = map[Type]string{
	TypeTextToMesh:        "Text to Mesh",
	TypeImageToMesh:       "Image to Mesh",
	TypeTextureGeneration: "Texture Generation",
	TypeMeshSegmentation:  "Mesh Segmentation",
	TypeAutoRigging:       "Auto Rigging",
}

// TypeFromFeature maps a remote feature tag to a task type. Unknown tags fall
// back to TypeTextToMesh so history records never fail conversion.
func TypeFromFeature(tag string) Type {
	t := Type(strings.ToLower(strings.TrimSpace(tag)))
	if _, ok := typeLabels[t]; ok {
		return t
	}
	return TypeTextToMesh
}

func (t Type) Label() string {
	if label, ok := typeLabels[t]; ok {
		return label
	}
	return typeLabels[TypeTextToMesh]
}

// Result holds the output references of a completed task.
type Result struct {
	OutputPath      string `json:"output_path,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
	DownloadURL     string `json:"download_url,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
	FileFormat      string `json:"file_format,omitempty"`
}

// Task is one tracked unit of remote mesh-generation work. InputData is the
// opaque submission snapshot (files, prompts, parameters) captured at
// creation; the remote history does not retain it, so it must never be
// rebuilt from remote state.
type Task struct {
	ID              string         `json:"id"`
	JobID           string         `json:"job_id,omitempty"`
	Type            Type           `json:"type"`
	Name            string         `json:"name,omitempty"`
	Status          Status         `json:"status"`
	Progress        int            `json:"progress"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ProcessingTime  *float64       `json:"processing_time,omitempty"`
	InputData       map[string]any `json:"input_data,omitempty"`
	Result          *Result        `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	InputImageURL   string         `json:"input_image_url,omitempty"`
	ModelPreference string         `json:"model_preference,omitempty"`
}

// Pollable reports whether the task should be included in a poll cycle: it
// needs a remote job id and must not have reached a terminal status.
func (t *Task) Pollable() bool {
	return t.JobID != "" && !t.Status.Terminal()
}

// Clone returns a copy that shares no pointers or maps with t.
func (t Task) Clone() Task {
	c := t
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.ProcessingTime != nil {
		v := *t.ProcessingTime
		c.ProcessingTime = &v
	}
	if t.Result != nil {
		v := *t.Result
		c.Result = &v
	}
	if t.InputData != nil {
		c.InputData = make(map[string]any, len(t.InputData))
		for k, v := range t.InputData {
			c.InputData[k] = v
		}
	}
	return c
}
