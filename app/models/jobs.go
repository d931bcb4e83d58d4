package models

// SignalJob is the queue message asking a worker to derive a Signal from an Analysis.
type SignalJob struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email,omitempty"`
	Analysis Analysis `json:"analysis"`
}
