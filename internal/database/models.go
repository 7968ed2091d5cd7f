// internal/database/models.go
package database

// Thread is an independently resumable conversation. Times are unix
// milliseconds.
type Thread struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
	ParentThreadID string `json:"parentThreadId,omitempty"`
}
