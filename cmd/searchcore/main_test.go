package main

import (
	"context"
	"testing"

	"github.com/ehr/searchcore/internal/config"
)

func TestLoadDirectory_FallsBackWithoutDatabase(t *testing.T) {
	directory, cleanup, err := loadDirectory(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if !directory.KnownResourceType("Patient") {
		t.Error("built-in directory does not know Patient")
	}
	if _, err := directory.Lookup("Patient", "_id"); err != nil {
		t.Errorf("built-in directory does not resolve _id: %v", err)
	}
}
