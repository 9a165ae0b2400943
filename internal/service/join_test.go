package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maclab-sync/internal/models"
)

func TestBuildDerivedMapsFirstLinkWins(t *testing.T) {
	derived := BuildDerivedMaps(labSubjects(), labInstructors(), labLinks())

	require.Len(t, derived.Occupants, 2)
	assert.Equal(t, "Ana Cruz", derived.Occupants["1"].InstructorName)
	assert.Equal(t, "Ben Reyes", derived.Occupants["2"].InstructorName)
	_, linked := derived.Occupants["3"]
	assert.False(t, linked, "unlinked subject must not have an occupant")

	assert.Equal(t, []models.ID{"10", "11"}, derived.InstructorOrder)
	require.Len(t, derived.ByInstructor["11"], 2)
	assert.Equal(t, models.ID("2"), derived.ByInstructor["11"][0].ID)
	assert.Equal(t, models.ID("1"), derived.ByInstructor["11"][1].ID)
}

func TestBuildDerivedMapsKeepsDuplicateScheduleEntries(t *testing.T) {
	links := []models.Link{{SubjectID: "1", UserID: "10"}, {SubjectID: "1", UserID: "10"}}
	derived := BuildDerivedMaps(labSubjects(), labInstructors(), links)

	assert.Len(t, derived.ByInstructor["10"], 2)
	assert.Len(t, derived.Occupants, 1)
}

func TestBuildDerivedMapsSkipsUnresolvedLinks(t *testing.T) {
	links := []models.Link{
		{SubjectID: "99", UserID: "10"},
		{SubjectID: "1", UserID: "99"},
		{SubjectID: "3", UserID: "11"},
	}
	derived := BuildDerivedMaps(labSubjects(), labInstructors(), links)

	require.Len(t, derived.Occupants, 1)
	assert.Equal(t, "Ben Reyes", derived.Occupants["3"].InstructorName)
	assert.Equal(t, []models.ID{"11"}, derived.InstructorOrder)
}

func TestBuildDerivedMapsEmptyCollections(t *testing.T) {
	derived := BuildDerivedMaps(nil, nil, nil)
	assert.Empty(t, derived.Occupants)
	assert.Empty(t, derived.ByInstructor)
	assert.Empty(t, derived.Schedule())
}

func TestBuildDerivedMapsIsIdempotent(t *testing.T) {
	first := BuildDerivedMaps(labSubjects(), labInstructors(), labLinks())
	second := BuildDerivedMaps(labSubjects(), labInstructors(), labLinks())
	assert.Equal(t, first, second)
}

func TestDerivedMapsMergeFallsBackToUnknown(t *testing.T) {
	derived := BuildDerivedMaps(labSubjects(), labInstructors(), labLinks())
	merged := derived.Merge(labSubjects())

	require.Len(t, merged, 3)
	assert.Equal(t, "Ana Cruz", merged[0].InstructorName)
	assert.Equal(t, models.UnknownInstructor, merged[2].InstructorName)
}

func TestDerivedMapsScheduleStripsKeys(t *testing.T) {
	derived := BuildDerivedMaps(labSubjects(), labInstructors(), labLinks())
	schedule := derived.Schedule()

	require.Len(t, schedule, 2)
	assert.Equal(t, "Ana Cruz", schedule[0].InstructorName)
	for _, group := range schedule {
		for _, subject := range group.Subjects {
			assert.Empty(t, subject.EnrollmentKey())
		}
	}
}

func TestHeaderForUsesFirstSubject(t *testing.T) {
	header := HeaderFor(labSubjects())
	assert.Equal(t, "2024-2025", header.SchoolYear)
	assert.Equal(t, "1st", header.Semester)
	assert.Equal(t, models.ScheduleHeader{}, HeaderFor(nil))
}
