package models

// Lab door states an instructor can record.
const (
	LabUnlocked = "unlocked"
	LabLocked   = "locked"
)

// LabLog is one lock or unlock event. Time is "HH:MM" and Day the English
// weekday name, the same shapes subjects use for their windows.
type LabLog struct {
	UserID ID     `json:"user_id"`
	Status string `json:"status"`
	Time   string `json:"time"`
	Day    string `json:"day"`
}

// Post is a lab guideline published for students.
type Post struct {
	ID       ID     `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body,omitempty"`
	Image    string `json:"image,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// RosterEntry is a student enrolled in a subject.
type RosterEntry struct {
	ID            ID     `json:"id"`
	Name          string `json:"name,omitempty"`
	StudentNumber string `json:"student_number,omitempty"`
	Email         string `json:"email,omitempty"`
}

// SubjectRoster lists the students enrolled in one subject.
type SubjectRoster struct {
	Subject  Subject       `json:"subject"`
	Students []RosterEntry `json:"students"`
}

// InstructorDetail is an instructor with the subjects linked to them.
type InstructorDetail struct {
	Instructor
	Subjects []Subject `json:"subjects"`
}
