package app

import "time"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Classroom is the shared configuration scope a teacher owns: student
// sessions created under its code inherit the system instruction and the
// API credential. The code is immutable after creation; edits replace the
// whole record via ClassroomRegistry.Upsert.
type Classroom struct {
	Code              string    `json:"code"`
	TeacherName       string    `json:"teacher_name"`
	APIKey            string    `json:"api_key"`
	SystemInstruction string    `json:"system_instruction"`
	CreatedAt         time.Time `json:"created_at"`
}

// Session is one conversation thread owned by a single user. Mutations are
// always a full-record replace through SessionLedger.Save; messages keep
// insertion order.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ClassCode string    `json:"class_code,omitempty"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	ModelID   string    `json:"model_id"`
}

// Message is immutable once appended, except Feedback which a reviewer may
// set later.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user|model
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// Attachment holds a base64-encoded image payload when the message
	// carries a generated image.
	Attachment string `json:"attachment,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
}

// User is the last-logged-in snapshot persisted so a relaunch can restore
// the previous identity without re-prompting.
type User struct {
	Name      string `json:"name"`
	Role      string `json:"role"` // teacher|student
	ClassCode string `json:"class_code,omitempty"`
}
