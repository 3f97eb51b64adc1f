package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"hr-portal/core"
)

var (
	// Flags
	configFile   string
	outputFormat string
	username     string
	password     string
	auditLimit   int64
	timeout      time.Duration

	// Resolved in PersistentPreRunE
	cfg    core.Config
	logger *zap.Logger
)

// errFailedVerdict makes the process exit non-zero without cobra printing usage.
var errFailedVerdict = errors.New("login rejected")

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Operator tooling for the portal login service",
	Long: `portalctl runs the portal's login validation from a terminal against the
configured credential source (Google Sheets or Postgres).

Configuration comes from the same environment variables and optional
CONFIG_FILE as the API server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = core.Load(configFile)
		if err != nil {
			return err
		}
		logger = core.NewCLILogger(cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// verifyCmd checks one credential pair
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a username/password pair",
	Long: `Fetches the credential grid once and reports the verdict the API would give.
Exit status is 1 when the pair is rejected.`,
	RunE: runVerify,
}

// columnsCmd shows how the header row resolves
var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "Show the resolved login name and password columns",
	RunE:  runColumns,
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration with secrets masked",
	RunE:  runConfig,
}

// auditCmd lists recent verdicts from the audit trail
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent login verdicts from the Redis audit trail",
	RunE:  runAudit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "overall command timeout")

	verifyCmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	verifyCmd.Flags().StringVarP(&password, "password", "p", "", "password (default $PORTAL_PASSWORD)")
	_ = verifyCmd.MarkFlagRequired("username")

	auditCmd.Flags().Int64VarP(&auditLimit, "limit", "n", 20, "number of entries to show")

	rootCmd.AddCommand(verifyCmd, columnsCmd, configCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailedVerdict) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func newValidator(ctx context.Context) (*core.LoginValidator, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	source, closeSource, err := core.NewGridSource(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return core.NewLoginValidator(source, cfg.SourceSettings()), closeSource, nil
}

// verifyResult is the printable form of a verdict.
type verifyResult struct {
	Success bool       `yaml:"success"`
	Kind    string     `yaml:"kind"`
	User    *core.User `yaml:"user,omitempty"`
	Error   string     `yaml:"error,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	if password == "" {
		password = os.Getenv("PORTAL_PASSWORD")
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	validator, closeSource, err := newValidator(ctx)
	if err != nil {
		return err
	}
	defer closeSource()

	user, verr := validator.Validate(ctx, core.LoginRequest{Username: username, Password: password})
	res := verifyResult{Success: verr == nil, Kind: string(core.KindOf(verr))}
	if verr == nil {
		res.User = &user
	} else {
		res.Error = verr.Error()
		logger.Debug("verify failed", zap.Error(verr))
	}

	if err := writeVerify(cmd.OutOrStdout(), outputFormat, res); err != nil {
		return err
	}
	if !res.Success {
		return errFailedVerdict
	}
	return nil
}

func writeVerify(w io.Writer, format string, res verifyResult) error {
	if format == "yaml" {
		return writeYAML(w, res)
	}
	if res.Success {
		_, err := fmt.Fprintf(w, "OK   %s logged in at %s\n", res.User.Username, res.User.LoginTime)
		return err
	}
	_, err := fmt.Fprintf(w, "FAIL %s: %s\n", res.Kind, res.Error)
	return err
}

func runColumns(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	validator, closeSource, err := newValidator(ctx)
	if err != nil {
		return err
	}
	defer closeSource()

	summary, err := validator.Inspect(ctx)
	if err != nil && core.KindOf(err) != core.KindSchemaError {
		return err
	}

	w := cmd.OutOrStdout()
	if outputFormat == "yaml" {
		if werr := writeYAML(w, summary); werr != nil {
			return werr
		}
		return err
	}
	fmt.Fprintf(w, "headers:    %q\n", summary.Headers)
	fmt.Fprintf(w, "login name: %s\n", columnLabel(summary.Headers, summary.Columns.LoginName))
	fmt.Fprintf(w, "password:   %s\n", columnLabel(summary.Headers, summary.Columns.Password))
	fmt.Fprintf(w, "data rows:  %d\n", summary.DataRows)
	return err
}

func columnLabel(headers []string, i int) string {
	if i < 0 || i >= len(headers) {
		return "(not found)"
	}
	return fmt.Sprintf("%d (%q)", i, headers[i])
}

func runConfig(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if err := writeYAML(w, cfg.Redacted()); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(w, "# invalid: %v\n", err)
	}
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	if cfg.AuditRedisURL == "" {
		return errors.New("audit trail disabled: AUDIT_REDIS_URL is empty")
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, err := core.NewRedisClient(cfg.AuditRedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := core.NewRedisAuditSink(client, cfg.AuditListKey, cfg.AuditMaxEntries).Recent(ctx, auditLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outputFormat == "yaml" {
		return writeYAML(w, entries)
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-20s %-20s %s\n", e.At.Format(time.RFC3339), e.Kind, e.Username, e.RequestID)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
