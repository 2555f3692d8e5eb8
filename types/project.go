package types

import "time"

// Project groups bugs under one manager with assigned developer and QA
// members. The membership sets drive authorization decisions.
type Project struct {
	// ID is the unique identifier of the project.
	ID int `json:"id" db:"id"`

	// Name is the project's display name.
	Name string `json:"name" db:"name"`

	// ManagerID identifies the single manager who owns the project.
	ManagerID int `json:"manager_id" db:"manager_id"`

	// DeveloperIDs lists the accounts assigned to the project as developers.
	DeveloperIDs []int `json:"developer_ids" db:"developer_ids"`

	// QAIDs lists the accounts assigned to the project as QA.
	QAIDs []int `json:"qa_ids" db:"qa_ids"`

	// CreatedAt is the timestamp when the project was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent membership update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
