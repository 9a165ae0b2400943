package models

// Collection names used for logging and metrics.
const (
	CollectionSubjects    = "subjects"
	CollectionInstructors = "instructors"
	CollectionLinks       = "links"
	CollectionEnrollments = "student_enrollments"
	CollectionPosts       = "posts"
)

// CollectionKind tags the outcome of a collection fetch.
type CollectionKind int

const (
	// CollectionOk carries records (possibly zero of them).
	CollectionOk CollectionKind = iota
	// CollectionEmpty means the server answered with a "no results" message.
	CollectionEmpty
	// CollectionErr means the fetch failed; Err says how.
	CollectionErr
)

func (k CollectionKind) String() string {
	switch k {
	case CollectionOk:
		return "ok"
	case CollectionEmpty:
		return "empty"
	default:
		return "error"
	}
}

// CollectionResult is the tagged outcome of fetching one remote collection.
type CollectionResult[T any] struct {
	Kind    CollectionKind
	Records []T
	Reason  string
	Err     error
}

// Ok wraps fetched records.
func Ok[T any](records []T) CollectionResult[T] {
	return CollectionResult[T]{Kind: CollectionOk, Records: records}
}

// Empty records a "no results" answer.
func Empty[T any](reason string) CollectionResult[T] {
	return CollectionResult[T]{Kind: CollectionEmpty, Reason: reason}
}

// Failed records a fetch failure.
func Failed[T any](err error) CollectionResult[T] {
	return CollectionResult[T]{Kind: CollectionErr, Err: err}
}

// Items returns the records to derive from. Empty and failed results
// contribute nothing.
func (r CollectionResult[T]) Items() []T {
	if r.Kind != CollectionOk {
		return nil
	}
	return r.Records
}
