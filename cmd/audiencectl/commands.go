package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/dtroode/audience-server/internal/app"
	"github.com/dtroode/audience-server/internal/config"
	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/model"
	"github.com/dtroode/audience-server/internal/token"
)

const cliClientID = "audiencectl"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "audiencectl",
		Short:         "Operate the audience identity store",
		Long:          "audiencectl loads bulk user files and issues ingestion tokens. Settings are read from the same environment as the server.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newLoadCmd(), newTokenCmd())
	return rootCmd
}

func newLoadCmd() *cobra.Command {
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Resolve a CSV file of user records into the configured store",
		Example: `  audiencectl load --file users.csv
  audiencectl load --object uploads/2f1c-users.csv
  audiencectl load --prefix uploads/`,
		Args: cobra.NoArgs,
		RunE: runLoad,
	}
	loadCmd.Flags().String("file", "", "Local CSV file")
	loadCmd.Flags().String("object", "", "Object key in the upload bucket")
	loadCmd.Flags().String("prefix", "", "Load every object under this key prefix")
	loadCmd.Flags().String("client", cliClientID, "Client ID recorded with raw events")
	loadCmd.MarkFlagsMutuallyExclusive("file", "object", "prefix")
	loadCmd.MarkFlagsOneRequired("file", "object", "prefix")

	return loadCmd
}

func runLoad(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	file, _ := cmd.Flags().GetString("file")
	object, _ := cmd.Flags().GetString("object")
	prefix, _ := cmd.Flags().GetString("prefix")
	clientID, _ := cmd.Flags().GetString("client")

	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	lg := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	stores, err := app.OpenStores(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer stores.Close()

	var objects model.Storage
	if object != "" || prefix != "" {
		if !cfg.Storage.Enabled {
			return fmt.Errorf("--object and --prefix need MINIO_ENABLED=true: %w", model.ErrStorageDisabled)
		}
		if objects, err = app.OpenStorage(ctx, cfg.Storage); err != nil {
			return err
		}
	}

	services, err := app.NewServices(cfg, stores, objects, lg)
	if err != nil {
		return err
	}

	var reports []model.LoadReport
	switch {
	case file != "":
		var report model.LoadReport
		report, err = loadFile(cmd, services, file, clientID)
		reports = append(reports, report)
	case object != "":
		var report model.LoadReport
		report, err = services.Bulk.LoadObject(ctx, object, clientID)
		reports = append(reports, report)
	default:
		reports, err = services.Bulk.LoadPrefix(ctx, prefix, clientID)
	}

	if printErr := printJSON(cmd.OutOrStdout(), reports); printErr != nil {
		return errors.Join(err, printErr)
	}
	return err
}

func loadFile(cmd *cobra.Command, services *app.Services, path, clientID string) (model.LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.LoadReport{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return services.Bulk.Load(cmd.Context(), path, f, clientID)
}

func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage ingestion client tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Print a signed access token for an ingestion client",
		Args:  cobra.NoArgs,
		RunE:  runTokenIssue,
	}
	issueCmd.Flags().String("client", "", "Client ID carried in the token subject")
	issueCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to JWT_TTL)")
	_ = issueCmd.MarkFlagRequired("client")

	tokenCmd.AddCommand(issueCmd)
	return tokenCmd
}

func runTokenIssue(cmd *cobra.Command, _ []string) error {
	clientID, _ := cmd.Flags().GetString("client")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.JWT.TTL
	}

	signed, err := token.NewJWT(cfg.JWT.Secret, ttl).GenerateAccessToken(clientID)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
	return err
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

