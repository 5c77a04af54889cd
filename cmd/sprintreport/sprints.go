package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tuannvm/sprint-report/internal/jira"
	log "github.com/tuannvm/sprint-report/internal/logging"
)

var sprintsCmd = &cobra.Command{
	Use:   "sprints",
	Short: "List recent sprints of a board",
	RunE:  runSprints,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and the Jira connection",
	RunE:  runCheck,
}

var (
	sprintsBoard int
	sprintsLimit int
)

func init() {
	sprintsCmd.Flags().IntVar(&sprintsBoard, "board", 0, "Board ID (default jira.board_id)")
	sprintsCmd.Flags().IntVarP(&sprintsLimit, "limit", "n", 0, "Maximum sprints to list (default jira.sprint_limit)")
	rootCmd.AddCommand(sprintsCmd, checkCmd)
}

func runSprints(cmd *cobra.Command, _ []string) error {
	board := sprintsBoard
	if board == 0 {
		board = cfg.JiraBoardID
	}
	if board <= 0 {
		return fmt.Errorf("no board: pass --board or set jira.board_id")
	}
	limit := sprintsLimit
	if limit <= 0 {
		limit = cfg.JiraSprintLimit
	}

	src, err := jira.NewSprintClient(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	sprints, err := src.ListSprints(cmd.Context(), board, limit)
	if err != nil {
		return err
	}
	if len(sprints) == 0 {
		fmt.Printf("No sprints found on board %d\n", board)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tSTART\tEND")
	for _, s := range sprints {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.State, s.StartDate, s.EndDate)
	}
	return w.Flush()
}

func runCheck(cmd *cobra.Command, _ []string) error {
	if err := requireValidConfig(); err != nil {
		return err
	}
	fmt.Println("Configuration: ok")

	src, err := jira.NewSprintClient(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	ok, err := src.CheckConnection(cmd.Context())
	if err != nil {
		log.Debugf("Connection check error: %v", err)
	}
	if !ok {
		return fmt.Errorf("jira connection: failed (%s via %s)", cfg.JiraBaseURL, cfg.JiraMCPImage)
	}
	fmt.Printf("Jira connection: ok (%s)\n", cfg.JiraBaseURL)
	return nil
}
