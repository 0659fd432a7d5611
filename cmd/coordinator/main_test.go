package main

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestRootCmdFlags(t *testing.T) {
	root := newRootCmd()

	var found bool
	root.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			found = true
			if f.Shorthand != "c" {
				t.Errorf("config flag shorthand = %q, want c", f.Shorthand)
			}
		}
	})
	if !found {
		t.Fatalf("expected a --config persistent flag")
	}
}

func TestVersionSubcommandRegistered(t *testing.T) {
	root := newRootCmd()

	cmd, _, err := root.Find([]string{"version"})
	if err != nil {
		t.Fatalf("Find(version) error = %v", err)
	}
	if cmd.Use != "version" {
		t.Fatalf("Find(version) = %q, want the version subcommand", cmd.Use)
	}
}
