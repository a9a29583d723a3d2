package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/transitwatch/transitwatch/internal/config"
	"github.com/transitwatch/transitwatch/internal/geo"
	"github.com/transitwatch/transitwatch/internal/report"
)

var (
	enqueueUserName     string
	enqueueUserLat      float64
	enqueueUserLon      float64
	enqueueLocationName string
	enqueueLocationLat  float64
	enqueueLocationLon  float64
	enqueueReportType   string
	enqueueDelayMinutes float64
	enqueueHasDelay     bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Publish a single report message to the queue, for debugging",
	Long:  "Publish a single report message to the queue, for debugging.\nWith the memory backend this only reaches a consumer running in the same process — use the kafka backend to talk to a separately running serve/consume.",
	RunE:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueUserName, "user", "", "Reporting user's username (required)")
	enqueueCmd.Flags().Float64Var(&enqueueUserLat, "user-lat", 0, "Reporter's latitude")
	enqueueCmd.Flags().Float64Var(&enqueueUserLon, "user-lon", 0, "Reporter's longitude")
	enqueueCmd.Flags().StringVar(&enqueueLocationName, "location", "", "Location name, e.g. trip42@stop7 (required)")
	enqueueCmd.Flags().Float64Var(&enqueueLocationLat, "location-lat", 0, "Location latitude")
	enqueueCmd.Flags().Float64Var(&enqueueLocationLon, "location-lon", 0, "Location longitude")
	enqueueCmd.Flags().StringVar(&enqueueReportType, "type", string(report.TypeDelay), "Report type (Delay, Maintenance, Accident, Solved, Other)")
	enqueueCmd.Flags().Float64Var(&enqueueDelayMinutes, "delay-minutes", 0, "Reported delay in minutes")
	enqueueCmd.Flags().BoolVar(&enqueueHasDelay, "has-delay", false, "Set to include --delay-minutes in the message")
	enqueueCmd.MarkFlagRequired("user")
	enqueueCmd.MarkFlagRequired("location")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	reportType := report.Type(enqueueReportType)
	if !reportType.Valid() {
		return fmt.Errorf("invalid report type %q, must be one of %v", enqueueReportType, report.Types())
	}

	msg := report.Message{
		UserName:     enqueueUserName,
		UserLocation: geo.Point{Lat: enqueueUserLat, Lon: enqueueUserLon},
		LocationName: enqueueLocationName,
		LocationPos:  geo.Point{Lat: enqueueLocationLat, Lon: enqueueLocationLon},
		ReportType:   reportType,
	}
	if enqueueHasDelay {
		msg.DelayMinutes = &enqueueDelayMinutes
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	q, err := openQueue(cfg.Queue)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Push(ctx, raw); err != nil {
		return fmt.Errorf("push to queue: %w", err)
	}

	fmt.Printf("enqueued: %s\n", raw)
	return nil
}
