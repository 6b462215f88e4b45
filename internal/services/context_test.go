package services_test

import (
	"context"
	"testing"

	"misrgrid/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-42")
	ctx = services.WithInputFile(ctx, "/data/swath.json")
	ctx = services.WithStage(ctx, "reprojection")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-42" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if path, ok := services.InputFileFromContext(ctx); !ok || path != "/data/swath.json" {
		t.Fatalf("unexpected input file: %v %v", path, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "reprojection" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
