package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/resonance/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List archived sessions",
		Long: `Without arguments, list archived sessions, newest first. With a session id,
show that session's per-generation fitness and campaign copy.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if f := cmd.Flags(); f.Changed("store") {
				cfg.Store.Backend, _ = f.GetString("store")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			archive, err := openArchive(ctx, cfg)
			if err != nil {
				return err
			}
			defer archive.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				sessions, err := archive.ListSessions(ctx, limit)
				if err != nil {
					return fmt.Errorf("listing sessions: %w", err)
				}
				if jsonOut {
					return writeJSON(out, map[string]any{"sessions": sessions, "count": len(sessions)})
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No archived sessions.")
					return nil
				}
				fmt.Fprintf(out, "%-36s  %-19s  %-10s  %4s  %7s  %s\n", "ID", "CREATED", "STATUS", "GENS", "BEST", "CAMPAIGN")
				for _, s := range sessions {
					fmt.Fprintf(out, "%-36s  %-19s  %-10s  %4d  %7.3f  %s\n",
						s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), statusOrRunning(s.Status),
						s.Generations, s.BestFitness, oneLine(s.Campaign.Content))
				}
				return nil
			}

			sess, err := findSession(ctx, archive, args[0])
			if err != nil {
				return err
			}
			gens, err := archive.GetGenerations(ctx, sess.ID)
			if err != nil {
				return fmt.Errorf("loading generations: %w", err)
			}
			if jsonOut {
				return writeJSON(out, map[string]any{"session": sess, "generations": gens})
			}
			printSessionDetail(cmd, sess, gens)
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum sessions to list (0 for all)")
	cmd.Flags().String("store", "", "Archive backend: sqlite or mongo")

	return cmd
}

func statusOrRunning(status string) string {
	if status == "" {
		return "running"
	}
	return status
}

func printSessionDetail(cmd *cobra.Command, sess store.Session, gens []store.Generation) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s\n", sess.ID)
	fmt.Fprintf(out, "  created:     %s\n", sess.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  status:      %s\n", statusOrRunning(sess.Status))
	fmt.Fprintf(out, "  seed:        %d\n", sess.RandomSeed)
	fmt.Fprintf(out, "  goal:        %s\n", sess.Campaign.Goal)
	fmt.Fprintf(out, "  audience:    %s\n", sess.Campaign.TargetAudience)
	fmt.Fprintf(out, "  population:  %d personas, %d edges\n", sess.Personas, sess.Edges)
	fmt.Fprintln(out)

	for _, g := range gens {
		r := g.Result
		fmt.Fprintf(out, "Generation %d  fitness %.3f  reach %d  likes %d  comments %d  shares %d  mocks %d\n",
			g.Number, g.Fitness, r.Reach, r.Likes, r.Comments, r.Shares, r.Mocks)
		fmt.Fprintf(out, "  %s\n", oneLine(r.Seed.Content))
		if g.Rewrite != nil && g.Rewrite.Analysis != "" {
			fmt.Fprintf(out, "  analysis: %s\n", oneLine(g.Rewrite.Analysis))
		}
	}
}
