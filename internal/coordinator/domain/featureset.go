package domain

import "fmt"

// FeatureSetStatus is the lifecycle state of a FeatureSet as seen by the
// spec-propagation protocol.
type FeatureSetStatus string

const (
	FeatureSetPending FeatureSetStatus = "PENDING"
	FeatureSetReady   FeatureSetStatus = "READY"
)

// DeliveryStatus records whether the version most recently published to a
// job has been acknowledged by that job.
type DeliveryStatus string

const (
	DeliveryInProgress DeliveryStatus = "IN_PROGRESS"
	DeliveryDelivered  DeliveryStatus = "DELIVERED"
)

// FeatureSetJobStatus is the many-to-many link between a FeatureSet and a
// Job. It is owned by the FeatureSet; the Job holds only a mirror reference
// for traversal. The link holds the job by ID, not by containment, so the
// two sides can be updated independently without cyclic ownership.
type FeatureSetJobStatus struct {
	JobID          string
	Version        int64
	DeliveryStatus DeliveryStatus
}

// FeatureSpec describes a single feature within a FeatureSet's spec.
type FeatureSpec struct {
	Name      string
	ValueType string
}

// FeatureSetSpec is the payload published on the spec channel when a
// FeatureSet's version changes. It stands in for the platform's canonical
// protocol-buffer encoding of the feature set schema; framing of that
// encoding is outside the coordinator's responsibility (see registry and
// bus adapters).
type FeatureSetSpec struct {
	Project  string
	Name     string
	Version  int64
	Entities []string
	Features []FeatureSpec
}

// FeatureSet is a named, versioned schema describing a group of features
// ingested together. Project/Name is the primary key; Reference is the
// derived "project/name" string used on the message bus. Source is the
// upstream stream this feature set is ingested from; the reconciler
// canonicalizes it against the repository before grouping so that in-memory
// duplicates sharing a business key collapse to one job.
type FeatureSet struct {
	Project string
	Name    string
	Version int64
	Status  FeatureSetStatus
	Source  Source
	Spec    FeatureSetSpec
	Jobs    []FeatureSetJobStatus
}

// Reference returns the "<project>/<name>" string identifying this feature
// set on the message bus.
func (f FeatureSet) Reference() string {
	return fmt.Sprintf("%s/%s", f.Project, f.Name)
}

// JobStatusFor returns a pointer to the link for jobID, or nil if F has no
// link to that job. Returning a pointer into the slice lets callers mutate
// the link in place.
func (f *FeatureSet) JobStatusFor(jobID string) *FeatureSetJobStatus {
	for i := range f.Jobs {
		if f.Jobs[i].JobID == jobID {
			return &f.Jobs[i]
		}
	}
	return nil
}

// ParseReference splits a "<project>/<name>" reference. It returns false if
// the reference is malformed (missing separator, or an empty project or
// name).
func ParseReference(ref string) (project, name string, ok bool) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			project, name = ref[:i], ref[i+1:]
			if project == "" || name == "" {
				return "", "", false
			}
			return project, name, true
		}
	}
	return "", "", false
}
