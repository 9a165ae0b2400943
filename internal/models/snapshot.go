package models

import "time"

// ScheduleHeader carries the term labels shown above the lab schedule.
type ScheduleHeader struct {
	SchoolYear string `json:"school_year,omitempty"`
	Semester   string `json:"semester,omitempty"`
}

// InstructorSchedule is one instructor's subjects in discovery order.
type InstructorSchedule struct {
	InstructorID   ID        `json:"instructor_id"`
	InstructorName string    `json:"instructor_name"`
	Subjects       []Subject `json:"subjects"`
}

// CollectionStatus reports how one collection fared in a sync cycle.
type CollectionStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

// Snapshot is the published outcome of one sync cycle.
type Snapshot struct {
	Sequence    uint64                 `json:"sequence"`
	EvaluatedAt time.Time              `json:"evaluated_at"`
	Header      ScheduleHeader         `json:"header"`
	Subjects    []Subject              `json:"-"`
	Instructors []Instructor           `json:"-"`
	Links       []Link                 `json:"-"`
	Students    []StudentWithSubjects  `json:"-"`
	Occupants   map[ID]OccupantSubject `json:"-"`
	Schedule    []InstructorSchedule   `json:"schedule"`
	Occupancy   []OccupantSubject      `json:"occupancy"`
	Collections []CollectionStatus     `json:"collections"`
}

// SyncSummary is returned by manual refreshes.
type SyncSummary struct {
	Sequence    uint64             `json:"sequence"`
	Committed   bool               `json:"committed"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
	Occupied    int                `json:"occupied"`
	Visible     int                `json:"visible"`
	Collections []CollectionStatus `json:"collections"`
}
