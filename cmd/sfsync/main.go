package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jsc-health/sfsync/internal/config"
	"github.com/jsc-health/sfsync/internal/domain/etl"
	"github.com/jsc-health/sfsync/internal/platform/ehr"
	"github.com/jsc-health/sfsync/internal/platform/salesforce"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sfsync",
		Short: "Batch sync of EHR scheduling data into Salesforce Field Service",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one full extract-transform-load pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			src, crm, err := buildClients(cfg, logger)
			if err != nil {
				return err
			}

			pipeline := etl.NewPipeline(src, crm, etl.TransformConfig{
				OperatingHoursID:  cfg.OperatingHoursID,
				ProfileIDs:        cfg.ProfileIDs,
				ResourceAccountID: cfg.ResourceAccountID,
			}, logger)

			report, err := pipeline.Run(context.Background(), cfg.FHIROrgID)
			if err != nil {
				logger.Error().Err(err).Msg("pipeline aborted")
				return err
			}

			printSummary(report)
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and connectivity to both systems",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			src, crm, err := buildClients(cfg, logger)
			if err != nil {
				return err
			}

			ctx := context.Background()
			if _, err := src.FetchByID(ctx, "Organization", cfg.FHIROrgID); err != nil {
				return fmt.Errorf("FHIR check failed: %w", err)
			}
			logger.Info().Str("org_id", cfg.FHIROrgID).Msg("FHIR organization reachable")

			if _, err := crm.QueryAll(ctx, "SELECT Id FROM User LIMIT 1"); err != nil {
				return fmt.Errorf("salesforce check failed: %w", err)
			}
			logger.Info().Msg("salesforce authenticated")
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func buildClients(cfg *config.Config, logger zerolog.Logger) (*ehr.Client, *salesforce.Client, error) {
	key, err := loadPrivateKey(cfg.SFPrivateKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load salesforce private key: %w", err)
	}

	src := ehr.NewClient(cfg.FHIRBaseURL, cfg.RateLimitRPS, logger)
	tokens := salesforce.NewJWTBearerSource(cfg.SFLoginURL, cfg.SFClientID, cfg.SFUsername, key)
	crm := salesforce.NewClient(cfg.SFInstanceURL, cfg.SFAPIVersion, tokens, cfg.RateLimitRPS, logger)
	return src, crm, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: not an RSA private key", path)
	}
	return key, nil
}

func printSummary(report *etl.RunReport) {
	fmt.Printf("Run %s\n", report.RunID)
	fmt.Printf("%-20s %-10s %-10s\n", "OBJECT", "CREATED", "FAILED")
	for _, r := range []etl.LoadResult{
		report.Territories, report.Users, report.Accounts,
		report.WorkTypes, report.Resources, report.Appointments,
	} {
		fmt.Printf("%-20s %-10d %-10d\n", r.Object, r.SuccessCount, r.FailureCount)
	}
	if report.ResourcesDropped > 0 {
		fmt.Printf("service resources dropped (no user mapping): %d\n", report.ResourcesDropped)
	}
	if report.AppointmentsInvalid > 0 {
		fmt.Printf("appointments skipped (validation): %d\n", report.AppointmentsInvalid)
	}
	if report.AppointmentsDropped > 0 {
		fmt.Printf("appointments dropped (missing mappings): %d\n", report.AppointmentsDropped)
	}
}
