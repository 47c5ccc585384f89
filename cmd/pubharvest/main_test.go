package main

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// --- Roster Import Tests ---

func TestReadRosterFileCSV(t *testing.T) {
	input := `name,profile_url,source
"Rahma, Siti",https://sinta.example/authors/profile/7,sinta-scopus
Budi Santoso,https://scholar.example/citations?user=B,
`
	rows, err := readRosterFile(strings.NewReader(input), false, true, types.SourceScholar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Name != "Rahma, Siti" || rows[0].Source != types.SourceSintaScopus || rows[0].Line != 2 {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].Source != types.SourceScholar {
		t.Errorf("expected fallback source, got %q", rows[1].Source)
	}
}

func TestReadRosterFileTSV(t *testing.T) {
	input := "Budi\thttps://sinta.example/authors/profile/9\tsinta-garuda\n"
	rows, err := readRosterFile(strings.NewReader(input), true, false, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Source != types.SourceSintaGaruda {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestReadRosterFileErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing url", "Budi\n"},
		{"unknown source", "Budi,https://x.example,orcid\n"},
		{"no source", "Budi,https://x.example\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readRosterFile(strings.NewReader(tt.input), false, false, ""); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// --- Override Tests ---

func TestApplyRunOverrides(t *testing.T) {
	defer func() {
		runSource, runFromBeginning, runMaxPages, runTargetCount, runBaseURL = "", false, 0, 0, ""
	}()

	cfg := config.DefaultConfig()
	applyRunOverrides(cfg)
	if cfg.Run.Source != "scholar" || cfg.Run.MaxPages != 50 {
		t.Errorf("zero flags should keep config, got %+v", cfg.Run)
	}

	runSource = "sinta-scopus"
	runFromBeginning = true
	runMaxPages = 3
	runTargetCount = 10
	runBaseURL = "http://mirror.example"
	applyRunOverrides(cfg)
	if cfg.Run.Source != "sinta-scopus" || !cfg.Run.FromBeginning || cfg.Run.MaxPages != 3 ||
		cfg.Run.TargetCount != 10 || cfg.Run.BaseURL != "http://mirror.example" {
		t.Errorf("overrides not applied: %+v", cfg.Run)
	}
}

// --- Logger Tests ---

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
