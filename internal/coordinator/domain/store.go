package domain

import (
	"regexp"
	"strings"
	"sync"
)

// Subscription expresses "ingest every feature set whose project matches
// ProjectGlob and name matches NameGlob". Either field may be the wildcard
// "*", which matches any non-empty string.
type Subscription struct {
	ProjectGlob string
	NameGlob    string
}

// Store is an addressable sink that consumes ingested feature data.
type Store struct {
	Name          string
	Config        map[string]string
	Subscriptions []Subscription
}

// Matches reports whether project/name satisfy the subscription's glob
// predicates.
func (s Subscription) Matches(project, name string) bool {
	return globMatch(s.ProjectGlob, project) && globMatch(s.NameGlob, name)
}

var (
	globCacheMu sync.Mutex
	globCache   = make(map[string]*regexp.Regexp)
)

// globMatch matches value against a pattern that may contain "*" wildcards,
// each standing for one-or-more characters. This is the in-process
// equivalent of the repository layer's translation of the same pattern
// into a SQL "LIKE" predicate with "%" substituted for "*".
func globMatch(pattern, value string) bool {
	if value == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	return compileGlob(pattern).MatchString(value)
}

func compileGlob(pattern string) *regexp.Regexp {
	globCacheMu.Lock()
	defer globCacheMu.Unlock()

	if re, ok := globCache[pattern]; ok {
		return re
	}

	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re := regexp.MustCompile("^" + strings.Join(parts, ".+") + "$")
	globCache[pattern] = re
	return re
}
