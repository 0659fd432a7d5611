package domain

import (
	"fmt"
	"sort"
)

// SourceType identifies the kind of upstream stream a Source reads from.
type SourceType string

const (
	SourceTypeUnspecified SourceType = ""
	SourceKafka           SourceType = "KAFKA"
	SourceKinesis         SourceType = "KINESIS"
	SourceFile            SourceType = "FILE"
)

// Source is an immutable-by-business-key descriptor of an upstream stream.
// Config carries the type-specific tuple (e.g. bootstrap servers + topic);
// it is deliberately a flat string map so that equality by value is trivial
// and every source type can be represented without a type switch here.
type Source struct {
	ID     string
	Type   SourceType
	Config map[string]string
}

// SourceKey is the business key used for coordination equality: two Source
// records with the same (type, config) must be treated as the same source
// regardless of their surrogate ID.
type SourceKey struct {
	Type   SourceType
	Config string
}

// Key returns the canonicalization key for s. Config is serialized
// deterministically so that two maps with identical contents always hash to
// the same key regardless of insertion order.
func (s Source) Key() SourceKey {
	return SourceKey{Type: s.Type, Config: canonicalizeConfig(s.Config)}
}

func (k SourceKey) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.Config)
}

// canonicalizeConfig produces a stable string representation of a config
// map so it can participate in a comparable struct key.
func canonicalizeConfig(config map[string]string) string {
	if len(config) == 0 {
		return ""
	}
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]byte, 0, 64)
	for i, k := range keys {
		if i > 0 {
			out = append(out, '&')
		}
		out = append(out, k...)
		out = append(out, '=')
		out = append(out, config[k]...)
	}
	return string(out)
}
