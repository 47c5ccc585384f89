package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/pubharvest/internal/store"
	"github.com/IshaanNene/pubharvest/internal/types"
)

var (
	rosterSource string
	rosterHeader bool
)

// rosterCmd creates the "roster" subcommand group.
func rosterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Manage the authors to harvest",
	}
	cmd.PersistentFlags().StringVarP(&rosterSource, "source", "s", "", "source of the entries")

	add := &cobra.Command{
		Use:   "add <name> <profile-url>",
		Short: "Add one author",
		Args:  cobra.ExactArgs(2),
		RunE:  runRosterAdd,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List roster entries in processing order",
		Args:  cobra.NoArgs,
		RunE:  runRosterList,
	}

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Import authors from a CSV or TSV file",
		Long: `Import authors from a delimited file with columns name, profile_url and an
optional source. Rows without a source use --source. Files ending in .tsv are
tab-separated.`,
		Args: cobra.ExactArgs(1),
		RunE: runRosterImport,
	}
	imp.Flags().BoolVar(&rosterHeader, "header", false, "skip the first row")

	cmd.AddCommand(add, list, imp)
	return cmd
}

func runRosterAdd(cmd *cobra.Command, args []string) error {
	if rosterSource == "" {
		return errors.New("--source is required")
	}
	src, err := types.ParseSource(rosterSource)
	if err != nil {
		return fmt.Errorf("%w: %q", err, rosterSource)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	entry, err := store.NewRoster(repo).Add(context.Background(), args[0], args[1], src)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s (%s) as #%d\n", entry.Name, entry.Source, entry.ID)
	return nil
}

func runRosterList(cmd *cobra.Command, args []string) error {
	var src types.Source
	if rosterSource != "" {
		parsed, err := types.ParseSource(rosterSource)
		if err != nil {
			return fmt.Errorf("%w: %q", err, rosterSource)
		}
		src = parsed
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	entries, err := store.NewRoster(repo).List(context.Background(), src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := string(e.Status)
		if e.ErrorMessage != "" {
			status += ": " + e.ErrorMessage
		}
		fmt.Printf("%5d  %-14s %-30s %s  [%s]\n", e.ID, e.Source, e.Name, e.ProfileURL, status)
	}
	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	var fallback types.Source
	if rosterSource != "" {
		parsed, err := types.ParseSource(rosterSource)
		if err != nil {
			return fmt.Errorf("%w: %q", err, rosterSource)
		}
		fallback = parsed
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open roster file: %w", err)
	}
	defer f.Close()

	rows, err := readRosterFile(f, strings.EqualFold(filepath.Ext(args[0]), ".tsv"), rosterHeader, fallback)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	roster := store.NewRoster(repo)
	var added, failed int
	for _, r := range rows {
		if _, err := roster.Add(context.Background(), r.Name, r.ProfileURL, r.Source); err != nil {
			logger.Warn("roster row skipped", "line", r.Line, "name", r.Name, "error", err)
			failed++
			continue
		}
		added++
	}
	fmt.Printf("Imported %d authors, %d skipped\n", added, failed)
	return nil
}

// rosterRow is one parsed line of an import file.
type rosterRow struct {
	Line       int
	Name       string
	ProfileURL string
	Source     types.Source
}

// readRosterFile parses name, profile_url and optional source columns. Rows that cannot
// be resolved to a source fail the whole import before anything is written.
func readRosterFile(r io.Reader, tabs, header bool, fallback types.Source) ([]rosterRow, error) {
	reader := csv.NewReader(r)
	if tabs {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []rosterRow
	line := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster file: %w", err)
		}
		line++
		if header && line == 1 {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected name and profile_url", line)
		}

		src := fallback
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			parsed, err := types.ParseSource(rec[2])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w: %q", line, err, rec[2])
			}
			src = parsed
		}
		if src == "" {
			return nil, fmt.Errorf("line %d: no source (set a third column or --source)", line)
		}

		rows = append(rows, rosterRow{
			Line:       line,
			Name:       strings.TrimSpace(rec[0]),
			ProfileURL: strings.TrimSpace(rec[1]),
			Source:     src,
		})
	}
	return rows, nil
}
