package service

import "github.com/noah-isme/maclab-sync/internal/models"

// DerivedMaps is the relational view joined from the raw collections.
type DerivedMaps struct {
	// Occupants maps subject id to the subject merged with its first linked instructor.
	Occupants map[models.ID]models.OccupantSubject
	// ByInstructor maps instructor id to linked subjects in discovery order.
	ByInstructor map[models.ID][]models.Subject
	// InstructorOrder lists instructor ids in the order they were first linked.
	InstructorOrder []models.ID

	instructorNames map[models.ID]string
}

// BuildDerivedMaps joins subjects and instructors through links. The first
// link seen for a subject decides its occupant; every resolvable link appends
// the subject to its instructor's schedule, duplicates included. Links naming
// an unknown subject or instructor are skipped.
func BuildDerivedMaps(subjects []models.Subject, instructors []models.Instructor, links []models.Link) DerivedMaps {
	subjectByID := make(map[models.ID]models.Subject, len(subjects))
	for _, subject := range subjects {
		if _, exists := subjectByID[subject.ID]; !exists {
			subjectByID[subject.ID] = subject
		}
	}
	instructorByID := make(map[models.ID]models.Instructor, len(instructors))
	for _, instructor := range instructors {
		if _, exists := instructorByID[instructor.ID]; !exists {
			instructorByID[instructor.ID] = instructor
		}
	}

	derived := DerivedMaps{
		Occupants:       make(map[models.ID]models.OccupantSubject),
		ByInstructor:    make(map[models.ID][]models.Subject),
		instructorNames: make(map[models.ID]string),
	}

	for _, link := range links {
		subject, ok := subjectByID[link.SubjectID]
		if !ok {
			continue
		}
		instructor, ok := instructorByID[link.UserID]
		if !ok {
			continue
		}

		if _, exists := derived.Occupants[subject.ID]; !exists {
			derived.Occupants[subject.ID] = models.OccupantSubject{Subject: subject, InstructorName: instructor.Username}
		}

		if _, exists := derived.ByInstructor[instructor.ID]; !exists {
			derived.InstructorOrder = append(derived.InstructorOrder, instructor.ID)
			derived.instructorNames[instructor.ID] = instructor.Username
		}
		derived.ByInstructor[instructor.ID] = append(derived.ByInstructor[instructor.ID], subject)
	}

	return derived
}

// InstructorName resolves the occupant name for a subject.
func (d DerivedMaps) InstructorName(subjectID models.ID) string {
	if occupant, ok := d.Occupants[subjectID]; ok && occupant.InstructorName != "" {
		return occupant.InstructorName
	}
	return models.UnknownInstructor
}

// Merge attaches occupant instructor names to subjects.
func (d DerivedMaps) Merge(subjects []models.Subject) []models.OccupantSubject {
	merged := make([]models.OccupantSubject, 0, len(subjects))
	for _, subject := range subjects {
		merged = append(merged, models.OccupantSubject{Subject: subject, InstructorName: d.InstructorName(subject.ID)})
	}
	return merged
}

// Schedule lists each instructor's subjects in discovery order.
func (d DerivedMaps) Schedule() []models.InstructorSchedule {
	schedule := make([]models.InstructorSchedule, 0, len(d.InstructorOrder))
	for _, id := range d.InstructorOrder {
		name := d.instructorNames[id]
		if name == "" {
			name = models.UnknownInstructor
		}
		subjects := make([]models.Subject, 0, len(d.ByInstructor[id]))
		for _, subject := range d.ByInstructor[id] {
			subjects = append(subjects, subject.Public())
		}
		schedule = append(schedule, models.InstructorSchedule{
			InstructorID:   id,
			InstructorName: name,
			Subjects:       subjects,
		})
	}
	return schedule
}

// HeaderFor takes the term labels from the first subject of the collection.
func HeaderFor(subjects []models.Subject) models.ScheduleHeader {
	if len(subjects) == 0 {
		return models.ScheduleHeader{}
	}
	return models.ScheduleHeader{SchoolYear: subjects[0].SchoolYear, Semester: subjects[0].Semester}
}
