package types

import "time"

// BugType distinguishes defect reports from feature requests. Both move
// through the same status lifecycle.
type BugType string

const (
	BugTypeBug     BugType = "bug"
	BugTypeFeature BugType = "feature"
)

// Valid reports whether the type is a recognized bug type.
func (t BugType) Valid() bool {
	return t == BugTypeBug || t == BugTypeFeature
}

// BugStatus is a state in the bug lifecycle. Bugs start in StatusNew and
// end in StatusClosed; the allowed edges between states are enforced by
// the bug service.
type BugStatus string

const (
	// StatusNew is the initial state of every bug.
	StatusNew BugStatus = "new"

	// StatusStarted means a developer has picked the bug up.
	StatusStarted BugStatus = "started"

	// StatusPostedToQA means the developer considers the work done and
	// has handed the bug to QA for verification.
	StatusPostedToQA BugStatus = "posted_to_qa"

	// StatusDoneFromQA means QA has verified the fix.
	StatusDoneFromQA BugStatus = "done_from_qa"

	// StatusClosed is the terminal state.
	StatusClosed BugStatus = "closed"
)

// Valid reports whether the status is a member of the lifecycle.
func (s BugStatus) Valid() bool {
	switch s {
	case StatusNew, StatusStarted, StatusPostedToQA, StatusDoneFromQA, StatusClosed:
		return true
	}
	return false
}

// Bug represents a defect or feature tracked within a project.
type Bug struct {
	// ID is the unique identifier of the bug.
	ID int `json:"id" db:"id"`

	// ProjectID identifies the owning project.
	ProjectID int `json:"project_id" db:"project_id"`

	// Title is the bug's summary, unique within the project.
	Title string `json:"title" db:"title"`

	// Description is the bug's free-form body.
	Description string `json:"description" db:"description"`

	// Deadline, when set, is the expected resolution date.
	Deadline *time.Time `json:"deadline,omitempty" db:"deadline"`

	// Image is the object key of an attached screenshot, if any.
	Image string `json:"image,omitempty" db:"image"`

	// Type is either "bug" or "feature".
	Type BugType `json:"type" db:"type"`

	// Status is the bug's current lifecycle state.
	Status BugStatus `json:"status" db:"status"`

	// Locked freezes developer-initiated status progression. It is
	// orthogonal to Status and controlled by QA and managers.
	Locked bool `json:"locked" db:"locked"`

	// AssignedTo, when set, identifies the developer working the bug.
	// The assignee must be a developer member of the owning project.
	AssignedTo *int `json:"assigned_to,omitempty" db:"assigned_to"`

	// CreatedBy identifies the QA account that reported the bug.
	CreatedBy int `json:"created_by" db:"created_by"`

	// CreatedAt is the timestamp when the bug was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the bug.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
