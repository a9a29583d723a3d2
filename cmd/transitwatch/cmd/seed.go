package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/transitwatch/transitwatch/internal/config"
	"github.com/transitwatch/transitwatch/internal/report"
	"github.com/transitwatch/transitwatch/internal/store"
)

var (
	seedDemoUsername string
	seedDemoEmail    string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the closed set of report types, and optionally a demo user",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedDemoUsername, "demo-user", "", "Also create a demo user with this username")
	seedCmd.Flags().StringVar(&seedDemoEmail, "demo-email", "", "Email for --demo-user (required if --demo-user is set)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	printHeader("transitwatch seed")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	s, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	if err := s.SeedReportTypes(report.TypeNames()); err != nil {
		return fmt.Errorf("seed report types: %w", err)
	}
	fmt.Printf("seeded report types: %v\n", report.TypeNames())

	if seedDemoUsername == "" {
		return nil
	}
	if seedDemoEmail == "" {
		return fmt.Errorf("--demo-email is required when --demo-user is set")
	}

	user, err := s.CreateUser(seedDemoUsername, seedDemoEmail)
	if err != nil {
		return fmt.Errorf("create demo user: %w", err)
	}
	fmt.Printf("created demo user: id=%d username=%s trust_score=%.2f\n", user.ID, user.Username, user.TrustScore)
	return nil
}
