package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/workflow"
)

// Runs the drift audit from the command line: recompute every invoice and
// customer from source rows, report drifted caches, optionally repair them,
// optionally export the findings as a spreadsheet.
func main() {
	repair := flag.Bool("repair", false, "Rewrite drifted derived caches (source rows are never touched)")
	exportPath := flag.String("export", "", "Optional: write the report to an .xlsx file")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	report, err := workflow.RunDriftAudit(context.Background(), *repair)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	if *exportPath != "" {
		f, err := workflow.BuildAuditReportExcel(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := f.SaveAs(*exportPath); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("report written to %s\n", *exportPath)
	}

	if !report.Clean() && !*repair {
		// Nonzero exit lets cron/CI alert on unrepaired drift.
		os.Exit(2)
	}
}
