package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/pubharvest/internal/classify"
)

var (
	classifyJournal    string
	classifyConference string
	classifyPublisher  string
)

// classifyCmd creates the "classify" subcommand.
func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [title]",
		Short: "Show the category a publication would be filed under",
		Long: `Run the publication classifier on ad-hoc strings and print the category along
with the rule that decided it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var title string
			if len(args) == 1 {
				title = args[0]
			}
			if title == "" && classifyJournal == "" && classifyConference == "" && classifyPublisher == "" {
				return errors.New("nothing to classify: give a title or --journal/--conference/--publisher")
			}

			cat, rule := classify.ClassifyRule(classifyJournal, classifyConference, classifyPublisher, title)
			fmt.Printf("Category: %s\n", cat)
			fmt.Printf("Rule:     %s\n", rule)
			return nil
		},
	}

	cmd.Flags().StringVar(&classifyJournal, "journal", "", "journal field")
	cmd.Flags().StringVar(&classifyConference, "conference", "", "conference field")
	cmd.Flags().StringVar(&classifyPublisher, "publisher", "", "publisher field")

	return cmd
}
