package domain

// Runner identifies which execution backend a Job runs on.
type Runner string

const (
	RunnerUnspecified  Runner = ""
	RunnerStreamEngine Runner = "STREAM_ENGINE"
	RunnerTest         Runner = "TEST"
)

// JobStatus is the lifecycle state of a Job as observed through the runner
// adapter.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobAborting  JobStatus = "ABORTING"
	JobAborted   JobStatus = "ABORTED"
	JobError     JobStatus = "ERROR"
	JobCompleted JobStatus = "COMPLETED"
)

// terminalStatuses holds the statuses with no forward transition: once a
// job lands in one of these it never leaves it.
var terminalStatuses = map[JobStatus]bool{
	JobAborted:   true,
	JobError:     true,
	JobCompleted: true,
}

// IsTerminal reports whether s is a terminal status.
func (s JobStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// JobKey is the business key used to deduplicate jobs: (source type,
// source config, store name).
type JobKey struct {
	SourceType   SourceType
	SourceConfig string
	StoreName    string
}

// Job is a backend execution handle bound to a (Source, Store) pair and the
// set of feature sets it ingests for that store.
type Job struct {
	ID         string
	ExtID      string
	Runner     Runner
	Source     Source
	Store      Store
	Status     JobStatus
	FeatureSet []string // project/name references attached, mirrors FeatureSet.Jobs for traversal

	// UpdatedSeq is a repository-assigned monotonic counter used to break
	// ties when resolving the most-recently-updated non-terminal job for a
	// business key. It has no meaning outside the repository that assigned
	// it.
	UpdatedSeq int64
}

// Key returns the (source, store) business key for j.
func (j Job) Key() JobKey {
	return JobKey{
		SourceType:   j.Source.Type,
		SourceConfig: canonicalizeConfig(j.Source.Config),
		StoreName:    j.Store.Name,
	}
}

// MatchesFeatureSetReferences reports whether j is already attached to
// exactly the set of feature-set references in refs, regardless of order.
// Used by the reconciler to decide whether an existing non-terminal job can
// be reused unchanged for a desired group.
func (j Job) MatchesFeatureSetReferences(refs []string) bool {
	if len(j.FeatureSet) != len(refs) {
		return false
	}
	want := make(map[string]bool, len(refs))
	for _, r := range refs {
		want[r] = true
	}
	for _, r := range j.FeatureSet {
		if !want[r] {
			return false
		}
		delete(want, r)
	}
	return len(want) == 0
}
