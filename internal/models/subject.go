package models

// UnknownInstructor is shown when a subject has no resolvable instructor.
const UnknownInstructor = "Unknown Instructor"

// Subject is a lab session with a recurring weekly window.
type Subject struct {
	ID         ID     `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	Day        string `json:"day"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Section    string `json:"section"`
	SchoolYear string `json:"school_year"`
	Semester   string `json:"semester"`
	SecretKey  string `json:"secret_key,omitempty"`
	// QR is the legacy field name for the enrolment key.
	QR string `json:"qr,omitempty"`
}

// EnrollmentKey returns the key gating enrolment, preferring secret_key.
func (s Subject) EnrollmentKey() string {
	if s.SecretKey != "" {
		return s.SecretKey
	}
	return s.QR
}

// Public strips the enrolment key so the subject can be shared with other readers.
func (s Subject) Public() Subject {
	s.SecretKey = ""
	s.QR = ""
	return s
}

// OccupantSubject is a subject merged with the name of the instructor occupying it.
type OccupantSubject struct {
	Subject
	InstructorName string `json:"instructorName"`
}

// Instructor is a lab instructor account.
type Instructor struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Link assigns an instructor to a subject.
type Link struct {
	SubjectID ID `json:"subject_id"`
	UserID    ID `json:"user_id"`
}

// Enrollment is a student's claim on a subject.
type Enrollment struct {
	StudentID ID `json:"student_id" validate:"required"`
	SubjectID ID `json:"subject_id" validate:"required"`
}

// StudentWithSubjects is one row of the student enrolment collection.
type StudentWithSubjects struct {
	ID            ID        `json:"id"`
	Name          string    `json:"name,omitempty"`
	StudentNumber string    `json:"student_number,omitempty"`
	Email         string    `json:"email,omitempty"`
	Subjects      []Subject `json:"subjects"`
}

// SubjectIDs returns the ids of the embedded subjects.
func (s StudentWithSubjects) SubjectIDs() []ID {
	ids := make([]ID, 0, len(s.Subjects))
	for _, subject := range s.Subjects {
		ids = append(ids, subject.ID)
	}
	return ids
}
