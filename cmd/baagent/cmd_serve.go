package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"baagent/internal/approval"
	"baagent/internal/config"
	"baagent/internal/diagram"
	"baagent/internal/extract"
	"baagent/internal/logging"
	"baagent/internal/notify"
	"baagent/internal/server"
	"baagent/internal/tracker"
	"baagent/internal/usage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP backend",
	Long: `Starts the HTTP API used by the web front end: generation, document
library, semantic search, diagram rendering, DOCX export and the approval flow.

Approval emails are sent only when ACS_CONNECTION_STRING, ACS_SENDER_ADDRESS and
APPROVAL_RECIPIENT_EMAIL are set. Work items are created only when the
ADO_ORGANIZATION_URL, ADO_PROJECT_NAME and ADO_PERSONAL_ACCESS_TOKEN are set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tokens := usage.NewTracker(usagePath(cfg))
	defer func() {
		if err := tokens.Save(); err != nil {
			logging.BootWarn("failed to save usage: %v", err)
		}
	}()

	gen, err := newOrchestrator(ctx, cfg, db, tokens)
	if err != nil {
		return err
	}

	machine, err := newApprovalMachine(cfg, db.Approvals())
	if err != nil {
		return err
	}
	// Deferred after db.Close, so the janitor stops before the store closes.
	defer startJanitor(ctx, machine, cfg.GetSweepInterval())()

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		RequestTimeout: cfg.GetRequestTimeout(),
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		UploadDir:      cfg.Server.UploadDir,
	}, server.Deps{
		Generator: gen,
		Extractor: extract.New(),
		Library:   db,
		Approvals: machine,
		Renderer:  diagram.NewRenderer(cfg.Integrations.Kroki.BaseURL, cfg.GetKrokiTimeout()),
		Usage:     tokens,
		Health:    db,
	})

	logging.Boot("Database: %s", cfg.Storage.DatabasePath)
	return srv.Run(ctx)
}

// newApprovalMachine wires email delivery and work item creation. Missing
// credentials are logged, not fatal: requests still get recorded.
func newApprovalMachine(c *config.Config, st approval.Store) (*approval.Machine, error) {
	notifier, err := notify.NewEmailNotifier(notify.EmailConfig{
		ConnectionString: c.Integrations.Email.ConnectionString,
		SenderAddress:    c.Integrations.Email.SenderAddress,
		RecipientAddress: c.Integrations.Email.RecipientAddress,
		Subject:          c.Integrations.Email.Subject,
		BaseURL:          c.Server.BaseURL,
		Timeout:          c.GetEmailTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid email configuration: %w", err)
	}
	if !notifier.Configured() {
		logging.BootWarn("Approval email is not configured; requests will report a notification error")
	}

	ado := tracker.NewADOClient(tracker.ADOConfig{
		OrganizationURL:     c.Integrations.Tracker.OrganizationURL,
		Project:             c.Integrations.Tracker.Project,
		PersonalAccessToken: c.Integrations.Tracker.PersonalAccessToken,
		APIVersion:          c.Integrations.Tracker.APIVersion,
		Timeout:             c.GetTrackerTimeout(),
	})
	if !ado.Configured() {
		logging.BootWarn("Azure DevOps is not configured; approvals will end as ado_failed")
	}

	return approval.New(approval.Config{
		Store:    st,
		Notifier: notifier,
		Builder:  tracker.NewHierarchyBuilder(ado),
		TTL:      c.GetRecordTTL(),
	})
}
