package harvest

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

type ResultStatus string

const (
	ResultRunning ResultStatus = "running"
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
	ResultSkipped ResultStatus = "skipped"
)

// PendingPlatform labels a placeholder result before its strategy reports back.
const PendingPlatform = "Pending..."

type Job struct {
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	Platform    string     `json:"platform,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	AgeText     string     `json:"age_text,omitempty"`
}

// Merge overwrites j with every non-empty field of in. Empty fields on in
// mean "no change", so a later batch can fill a description without
// clearing the title sent earlier.
func (j *Job) Merge(in Job) {
	if in.Title != "" {
		j.Title = in.Title
	}
	if in.Company != "" {
		j.Company = in.Company
	}
	if in.Location != "" {
		j.Location = in.Location
	}
	if in.Link != "" {
		j.Link = in.Link
	}
	if in.Description != "" {
		j.Description = in.Description
	}
	if in.Platform != "" {
		j.Platform = in.Platform
	}
	if in.PostedAt != nil {
		t := *in.PostedAt
		j.PostedAt = &t
	}
	if in.AgeText != "" {
		j.AgeText = in.AgeText
	}
}

func (j Job) Key() string {
	return strings.TrimSpace(j.Link)
}

type Result struct {
	URL           string         `json:"url"`
	Status        ResultStatus   `json:"status"`
	Platform      string         `json:"platform"`
	Jobs          []Job          `json:"jobs"`
	TotalFound    int            `json:"total_found"`
	FilteredCount int            `json:"filtered_count,omitempty"`
	Stats         map[string]any `json:"stats,omitempty"`
	Error         string         `json:"error,omitempty"`
}

func (r Result) Clone() Result {
	out := r
	if r.Jobs != nil {
		out.Jobs = make([]Job, len(r.Jobs))
		copy(out.Jobs, r.Jobs)
	}
	if r.Stats != nil {
		out.Stats = make(map[string]any, len(r.Stats))
		for k, v := range r.Stats {
			out.Stats[k] = v
		}
	}
	return out
}

type Task struct {
	ID               string     `json:"task_id"`
	Status           TaskStatus `json:"status"`
	Progress         int        `json:"progress"`
	Total            int        `json:"total"`
	Logs             []string   `json:"logs"`
	Results          []Result   `json:"results"`
	AwaitingApproval bool       `json:"awaiting_approval"`
	NextURL          string     `json:"next_url"`
	ApproveAll       bool       `json:"approve_all"`
	SkipNext         bool       `json:"skip_next"`
	CreatedAt        time.Time  `json:"created_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a copy that shares no slices or maps with t.
func (t Task) Clone() Task {
	out := t
	out.Logs = make([]string, len(t.Logs))
	copy(out.Logs, t.Logs)
	out.Results = make([]Result, len(t.Results))
	for i, r := range t.Results {
		out.Results[i] = r.Clone()
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		out.FinishedAt = &f
	}
	return out
}

// Controls is the slice of task state the approval gate polls.
type Controls struct {
	Status           TaskStatus
	AwaitingApproval bool
	ApproveAll       bool
	SkipNext         bool
}
