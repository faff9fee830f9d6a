package cmd

import (
	"fmt"
	"os"

	"leadscout/lib/util/serviceutil"
	"leadscout/services/audit"
	"leadscout/services/discovery"
	"leadscout/services/leads"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	exportRun string
	exportCSV string
)

func init() {
	exportCmd.Flags().StringVar(&exportRun, "run", "", "run id to export; omit to list recorded runs")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "write the run's leads to this CSV file")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "List recorded runs or export one run's leads to CSV.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()
		flush := initTelemetry(ctx)
		defer flush()
		config := readConfig()

		database := openLeadsDB(config.DatabaseFile)
		defer database.Close()
		service := leads.NewService(database)

		if exportRun == "" {
			runs, err := service.Runs(ctx)
			if err != nil {
				serviceutil.Fatal("failed to list runs", err)
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Run", "Query", "Location", "Started", "Leads"})
			for _, run := range runs {
				t.AppendRow(table.Row{
					run.ID, run.Query, run.Location,
					run.StartedAt.Format("2006-01-02 15:04"), run.LeadCount,
				})
			}
			t.Render()
			return
		}

		stored, err := service.LeadsForRun(ctx, exportRun)
		if err != nil {
			serviceutil.Fatal("failed to read run", err)
		}
		if len(stored) == 0 {
			fmt.Fprintln(os.Stderr, "no leads recorded for run", exportRun)
			os.Exit(1)
		}

		results := make([]discovery.Lead, len(stored))
		for i, l := range stored {
			lead := discovery.Lead{
				Listing: discovery.Listing{
					Name:    l.Name,
					Address: l.Address,
					Phone:   l.Phone,
					Rating:  l.Rating,
					Website: l.Website,
				},
				Qualified: l.Qualified,
			}
			if l.Score != nil {
				lead.Evaluation = &audit.Result{Score: *l.Score, Issues: l.Issues}
			}
			results[i] = lead
		}

		out := os.Stdout
		if exportCSV != "" {
			file, err := os.Create(exportCSV)
			if err != nil {
				serviceutil.Fatal("failed to create CSV file", err)
			}
			defer file.Close()
			out = file
		}
		err = leads.WriteCSV(out, results)
		if err != nil {
			serviceutil.Fatal("failed to write CSV", err)
		}
	},
}
