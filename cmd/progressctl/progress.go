package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"acadium-backend/internal/catalog"
	"acadium-backend/internal/client"
	"acadium-backend/internal/progress"
)

type session struct {
	cat      *catalog.Catalog
	client   *client.Client
	identity *client.TokenIdentity
}

func newSession() (*session, error) {
	if apiToken == "" {
		return nil, fmt.Errorf("--token or ACADIUM_TOKEN is required")
	}
	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	identity, err := client.NewTokenIdentity(apiToken)
	if err != nil {
		return nil, err
	}
	return &session{cat: cat, client: client.New(apiURL, apiToken), identity: identity}, nil
}

func (s *session) tool(toolID string) (*catalog.ToolPath, error) {
	tool, ok := s.cat.Tool(toolID)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q (known: %s)", toolID, strings.Join(s.cat.ToolIDs(), ", "))
	}
	return tool, nil
}

func newStepsCommand() *cobra.Command {
	var toolID string
	command := &cobra.Command{
		Use:   "steps",
		Short: "Show the completion state of every step of a tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			tool, err := s.tool(toolID)
			if err != nil {
				return err
			}

			store := progress.NewStore(s.client, s.identity, nil, log)
			if err := store.Load(cmd.Context(), tool.ID); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			done := 0
			for _, section := range tool.Sections {
				fmt.Fprintf(out, "%s\n", section.Title)
				for _, step := range section.Steps {
					mark := " "
					if store.IsStepCompleted(step.ID) {
						mark = "x"
						done++
					}
					fmt.Fprintf(out, "  [%s] %s  %s\n", mark, step.ID, step.Title)
				}
			}
			fmt.Fprintf(out, "%d/%d completed\n", done, tool.TotalSteps())
			return nil
		},
	}
	command.Flags().StringVar(&toolID, "tool", "", "tool id")
	_ = command.MarkFlagRequired("tool")
	return command
}

func newCompleteCommand() *cobra.Command {
	return newMarkCommand("complete", "Mark steps as completed", true)
}

func newIncompleteCommand() *cobra.Command {
	return newMarkCommand("incomplete", "Mark steps as not completed", false)
}

func newMarkCommand(use, short string, completed bool) *cobra.Command {
	var toolID string
	command := &cobra.Command{
		Use:   use + " STEP_ID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			tool, err := s.tool(toolID)
			if err != nil {
				return err
			}
			for _, stepID := range args {
				if !tool.HasStep(stepID) {
					return fmt.Errorf("tool %s has no step %q", tool.ID, stepID)
				}
			}

			ctx := cmd.Context()
			store := progress.NewStore(s.client, s.identity, nil, log)
			if err := store.Load(ctx, tool.ID); err != nil {
				return err
			}
			for _, stepID := range args {
				if completed {
					store.MarkStepComplete(ctx, stepID)
				} else {
					store.MarkStepIncomplete(ctx, stepID)
				}
			}
			store.Wait()

			if failed := store.FailedSteps(); len(failed) > 0 {
				for _, stepID := range failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", stepID, store.WriteError(stepID))
				}
				return fmt.Errorf("%d of %d step(s) were not saved", len(failed), len(args))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d step(s) marked %s\n", tool.ID, len(args), use)
			return nil
		},
	}
	command.Flags().StringVar(&toolID, "tool", "", "tool id")
	_ = command.MarkFlagRequired("tool")
	return command
}

func newSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show completion per tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}

			agg := progress.NewAggregator(s.client, s.identity, s.cat, log)
			if err := agg.RefreshAll(cmd.Context()); err != nil {
				return err
			}

			summaries := agg.Summaries()
			ids := s.cat.ToolIDs()
			sort.SliceStable(ids, func(i, j int) bool {
				return summaries[ids[i]].Percent() > summaries[ids[j]].Percent()
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tDONE\tPROGRESS")
			for _, id := range ids {
				sum := summaries[id]
				fmt.Fprintf(w, "%s\t%d/%d\t%d%%\n", id, sum.Completed, sum.Total, sum.Percent())
			}
			return w.Flush()
		},
	}
}
