package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/checkpoint/internal/constants"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/ledger"
)

var visitsCmd = &cobra.Command{
	Use:   "visits",
	Short: "Print the newest visits of a section",
	Long: `Print the visit ledger of a section, newest first.
With --query only visits whose subject name or student id contains the
query (ignoring case and diacritics) are shown.`,
	RunE: runVisits,
}

func init() {
	rootCmd.AddCommand(visitsCmd)

	visitsCmd.Flags().String("section", "", "Section id (required)")
	visitsCmd.Flags().Int("limit", constants.DefaultRecentVisits, "Number of visits to show")
	visitsCmd.Flags().String("query", "", "Filter by subject name or student id")
	visitsCmd.Flags().Bool("today", false, "Also print today's totals")
	visitsCmd.Flags().Bool("json", false, "Output as JSON")
	_ = visitsCmd.MarkFlagRequired("section")
}

func runVisits(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	sec, err := catalog.Lookup(mustGetString(cmd, "section"))
	if err != nil {
		return err
	}

	b, err := openBackends(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx := context.Background()
	store, err := database.GetVisitWriter(ctx)
	if err != nil {
		return err
	}
	l := ledger.New(store, log, nil)

	visits, err := l.SearchRecent(ctx, sec.ID, mustGetInt(cmd, "limit"), mustGetString(cmd, "query"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(visits)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTIME\tSTUDENT ID\tNAME\t%s\n", sec.AttributeLabel)
	for _, v := range visits {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			v.ID, v.CreatedAt.Local().Format(time.DateTime), v.StudentID, v.SubjectName, sec.CategoryLabel(v.Category))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(visits) == 0 {
		fmt.Println("No visits.")
	}

	if mustGetBool(cmd, "today") {
		totals, err := l.Totals(ctx, sec.ID, ledger.StartOfDay(time.Now()))
		if err != nil {
			return err
		}
		fmt.Printf("\nToday at %s: %d visits (%s: %d, %s: %d)\n", sec.Name, totals.Total,
			sec.PositiveLabel, totals.WithAttribute, sec.NegativeLabel, totals.WithoutAttribute)
	}
	return nil
}
