package main

import (
	"strings"
	"testing"
)

func TestRootHelp_ListsOnlyEligibleStatuses(t *testing.T) {
	if strings.Contains(rootCmd.Long, "pending") {
		t.Fatalf("pending is never marked no_show: %q", rootCmd.Long)
	}
	if !strings.Contains(rootCmd.Long, "confirmed/skipped") {
		t.Fatalf("help should name the eligible statuses: %q", rootCmd.Long)
	}
}
