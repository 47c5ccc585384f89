package store

import (
	"context"
	"errors"
	"strings"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Roster is the work queue of authors to scrape.
type Roster struct {
	repo Repository
}

// NewRoster creates a roster over repo.
func NewRoster(repo Repository) *Roster {
	return &Roster{repo: repo}
}

// Add enqueues an author as pending.
func (r *Roster) Add(ctx context.Context, name, profileURL string, source types.Source) (types.RosterEntry, error) {
	name = strings.TrimSpace(name)
	profileURL = strings.TrimSpace(profileURL)
	if name == "" || profileURL == "" {
		return types.RosterEntry{}, errors.New("roster entry needs a name and a profile url")
	}
	status := string(types.StatusPending)
	row := &RosterRow{
		Name:       name,
		ProfileURL: profileURL,
		Source:     string(source),
		Status:     &status,
	}
	if err := r.repo.AddRoster(ctx, row); err != nil {
		return types.RosterEntry{}, err
	}
	return toEntry(*row), nil
}

// Queue returns the entries a run should process: processing first, then error,
// then pending. Completed entries are only included, last, when fromBeginning is set.
func (r *Roster) Queue(ctx context.Context, source types.Source, fromBeginning bool) ([]types.RosterEntry, error) {
	rows, err := r.repo.ListRoster(ctx, string(source), fromBeginning)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// List returns every entry for source, or for all sources when source is empty.
func (r *Roster) List(ctx context.Context, source types.Source) ([]types.RosterEntry, error) {
	rows, err := r.repo.ListRoster(ctx, string(source), true)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func (r *Roster) MarkProcessing(ctx context.Context, id uint) error {
	return r.repo.UpdateRosterStatus(ctx, id, types.StatusProcessing, nil)
}

func (r *Roster) MarkCompleted(ctx context.Context, id uint) error {
	return r.repo.UpdateRosterStatus(ctx, id, types.StatusCompleted, nil)
}

// MarkError records the failure message, truncated to fit the column.
func (r *Roster) MarkError(ctx context.Context, id uint, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = truncateMessage(cause.Error())
	}
	return r.repo.UpdateRosterStatus(ctx, id, types.StatusError, &msg)
}

func toEntries(rows []RosterRow) []types.RosterEntry {
	entries := make([]types.RosterEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	return entries
}

func toEntry(row RosterRow) types.RosterEntry {
	entry := types.RosterEntry{
		ID:         row.ID,
		Name:       row.Name,
		ProfileURL: row.ProfileURL,
		Source:     types.Source(row.Source),
		Status:     rowStatus(row),
		UpdatedAt:  row.UpdatedAt,
	}
	if row.ErrorMessage != nil {
		entry.ErrorMessage = *row.ErrorMessage
	}
	return entry
}
