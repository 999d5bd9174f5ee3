// Command maintenance runs the weekly persistent-state retention policy
// and vacuums the high-churn tables. Intended to run from a scheduled
// job (cron, k8s CronJob) rather than stay resident.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yusuke746/trading-system/internal/config"
	"github.com/yusuke746/trading-system/internal/db"
)

func main() {
	skipVacuum := flag.Bool("skip-vacuum", false, "Run retention only, skip VACUUM")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall deadline for the maintenance run")
	flag.Parse()

	config.InitLogger("info", "json")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	database, err := db.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.RunRetention(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "retention run failed: %v\n", err)
		os.Exit(1)
	}

	if *skipVacuum {
		return
	}

	if err := database.Vacuum(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vacuum failed: %v\n", err)
		os.Exit(1)
	}
}
