package cmd

import (
	"fmt"
	"os"
	"time"

	"leadscout/lib/feeds/gmaps"
	"leadscout/lib/util/serviceutil"
	"leadscout/services/audit"
	"leadscout/services/discovery"
	"leadscout/services/leads"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	discoverQuery     string
	discoverLocation  string
	discoverMax       int
	discoverThreshold int
	discoverCSV       string
)

func init() {
	discoverCmd.Flags().StringVarP(&discoverQuery, "query", "q", "", "business category to search for")
	discoverCmd.Flags().StringVarP(&discoverLocation, "location", "l", "", "location to search in")
	discoverCmd.Flags().IntVarP(&discoverMax, "max", "m", 20, "maximum listings to collect")
	discoverCmd.Flags().IntVarP(&discoverThreshold, "threshold", "t", 60, "scores at or below this qualify a lead")
	discoverCmd.Flags().StringVar(&discoverCSV, "csv", "", "also write results to this CSV file")
	discoverCmd.MarkFlagRequired("query")
	discoverCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery session and score every discovered website.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()
		flush := initTelemetry(ctx)
		defer flush()
		config := readConfig()

		feed, err := gmaps.NewClient(gmaps.ClientOptions{
			BaseURL:   config.Feed.BaseURL,
			Query:     discoverQuery,
			Location:  discoverLocation,
			PageSize:  config.Feed.PageSize,
			PageDelay: time.Duration(config.Feed.PageDelayMs) * time.Millisecond,
		})
		if err != nil {
			serviceutil.Fatal("failed to create feed client", err)
		}

		loader, err := audit.NewLoader(audit.LoaderOptions{
			Timeout: time.Duration(config.LoadTimeoutSeconds) * time.Second,
		})
		if err != nil {
			serviceutil.Fatal("failed to create page loader", err)
		}

		engine := discovery.NewEngine(feed, audit.NewEvaluator(loader))

		started := time.Now()
		results, err := engine.Discover(ctx, discovery.Request{
			Query:            discoverQuery,
			Location:         discoverLocation,
			MaxItems:         discoverMax,
			QualityThreshold: discoverThreshold,
		})
		if err != nil {
			serviceutil.Fatal("discovery failed", err)
		}

		runID, err := leads.NewRunID()
		if err != nil {
			serviceutil.Fatal("failed to generate run id", err)
		}
		run := leads.Run{
			ID:         runID,
			Query:      discoverQuery,
			Location:   discoverLocation,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Leads:      results,
		}

		database := openLeadsDB(config.DatabaseFile)
		defer database.Close()

		err = leads.NewService(database).RecordRun(ctx, run)
		if err != nil {
			serviceutil.Fatal("failed to record run", err)
		}

		if discoverCSV != "" {
			file, err := os.Create(discoverCSV)
			if err != nil {
				serviceutil.Fatal("failed to create CSV file", err)
			}
			err = leads.WriteCSV(file, results)
			file.Close()
			if err != nil {
				serviceutil.Fatal("failed to write CSV", err)
			}
		}

		if config.SummaryEmail != "" {
			err = leads.SendRunSummary(ctx, config.Smtp, config.SummaryEmail, run)
			if err != nil {
				// the run is already recorded, delivery failure is not fatal
				fmt.Fprintln(os.Stderr, "warning: failed to send summary email:", err)
			}
		}

		printResults(run)
	},
}

func printResults(run leads.Run) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Website", "Score", "Qualified", "Issues"})

	for _, lead := range run.Leads {
		website := "-"
		if lead.Listing.Website != nil {
			website = *lead.Listing.Website
		}
		score := "-"
		issues := 0
		if lead.Evaluation != nil {
			score = fmt.Sprintf("%d", lead.Evaluation.Score)
			issues = len(lead.Evaluation.Issues)
		}
		t.AppendRow(table.Row{lead.Listing.Name, website, score, lead.Qualified, issues})
	}

	t.Render()
	fmt.Printf("run %s: %d listings collected\n", run.ID, len(run.Leads))
}
