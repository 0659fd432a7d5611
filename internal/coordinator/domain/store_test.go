package domain

import "testing"

func TestSubscriptionMatches(t *testing.T) {
	tests := []struct {
		name    string
		sub     Subscription
		project string
		fsName  string
		want    bool
	}{
		{"wildcard both", Subscription{"*", "*"}, "project1", "features1", true},
		{"exact project wildcard name", Subscription{"project1", "*"}, "project1", "features1", true},
		{"exact project mismatch", Subscription{"project1", "*"}, "project2", "features1", false},
		{"wildcard project exact name", Subscription{"*", "features1"}, "project9", "features1", true},
		{"exact name mismatch", Subscription{"*", "features1"}, "project9", "features2", false},
		{"empty value never matches", Subscription{"*", "*"}, "", "features1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.sub.Matches(tt.project, tt.fsName)
			if got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.project, tt.fsName, got, tt.want)
			}
		})
	}
}
