package project

import "time"

const (
	maxProjectNameLength        = 80
	maxProjectDescriptionLength = 500
	maxTaskTitleLength          = 120
	maxTaskDescriptionLength    = 1000
	maxAssigneeLength           = 120
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

type TaskStatus string

const (
	TaskTodo  TaskStatus = "TODO"
	TaskDoing TaskStatus = "DOING"
	TaskDone  TaskStatus = "DONE"
)

func ParseTaskStatus(value string) (TaskStatus, bool) {
	switch TaskStatus(value) {
	case TaskTodo, TaskDoing, TaskDone:
		return TaskStatus(value), true
	default:
		return "", false
	}
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

func ParseTaskPriority(value string) (TaskPriority, bool) {
	switch TaskPriority(value) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return TaskPriority(value), true
	default:
		return "", false
	}
}

type Project struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"groupId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Task struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"projectId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	AssigneeID  string       `json:"assigneeId,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"dueDate"`
	CreatedBy   string       `json:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type CreateProjectInput struct {
	GroupID     string `json:"groupId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateTaskInput struct {
	ProjectID   string     `json:"projectId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssigneeID  string     `json:"assigneeId"`
	DueDate     *time.Time `json:"dueDate"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
}
