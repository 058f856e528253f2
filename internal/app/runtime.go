package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dwizi/wa-assistant/internal/calendar"
	"github.com/dwizi/wa-assistant/internal/config"
	"github.com/dwizi/wa-assistant/internal/delivery"
	"github.com/dwizi/wa-assistant/internal/gateway"
	"github.com/dwizi/wa-assistant/internal/meeting"
	"github.com/dwizi/wa-assistant/internal/orchestrator"
	"github.com/dwizi/wa-assistant/internal/roles"
	"github.com/dwizi/wa-assistant/internal/scheduler"
	"github.com/dwizi/wa-assistant/internal/scripts"
	"github.com/dwizi/wa-assistant/internal/state"
	"github.com/dwizi/wa-assistant/internal/store"
	"github.com/dwizi/wa-assistant/internal/transcript"
	"github.com/dwizi/wa-assistant/internal/urgency"
	"github.com/dwizi/wa-assistant/internal/watcher"
)

func New(cfg config.Config, logger *slog.Logger, options Options) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OwnerNumber == "" {
		logger.Warn("owner number not configured; owner alerts and commands are disabled")
	}

	docs, err := openDocuments(cfg)
	if err != nil {
		return nil, err
	}
	catalog, err := scripts.Load(cfg.ScriptsFile)
	if err != nil {
		docs.Close()
		return nil, err
	}
	writer, err := calendar.NewICSWriter(cfg.CalendarDir)
	if err != nil {
		docs.Close()
		return nil, err
	}

	location := cfg.Location()
	contacts := state.New(docs, logger)
	registry := urgency.NewRegistry(docs, nil)
	urgencyMachine := urgency.NewMachine(docs, registry, writer, catalog, location, logger)
	meetingMachine := meeting.NewMachine(docs, writer, calendar.NewDocumentQueue(docs), catalog, location, logger)
	service := gateway.New(gateway.Options{
		Validator:  roles.NewValidator(cfg.OwnerNumber, cfg.VIPNumber),
		State:      contacts,
		Urgency:    urgencyMachine,
		Meeting:    meetingMachine,
		UrgencyLog: registry,
		Scripts:    catalog,
		Logger:     logger,
	})

	output := options.Output
	if output == nil {
		output = os.Stdout
	}
	transcripts := transcript.New(cfg.TranscriptDir)
	var sender delivery.Sender = delivery.NewJSONLineSender(output)
	if transcripts.Enabled() {
		sender = transcript.NewRecordingSender(sender, transcripts)
	}
	delayer := scheduler.NewDelayer(sender, cfg.MaxDelay(), logger)
	dispatcher := delivery.NewDispatcher(sender, delayer, cfg.OwnerNumber, logger)

	runtime := &Runtime{
		cfg:        cfg,
		logger:     logger,
		docs:       docs,
		scripts:    catalog,
		gateway:    service,
		dispatcher: dispatcher,
		transcript: transcripts,
		delayer:    delayer,
		input:      options.Input,
		exitOnEOF:  options.ExitOnEOF,
		inbound:    newInboundDedup(cfg.InboundDedupWindow()),
	}
	runtime.engine = orchestrator.New(cfg.Workers, orchestrator.HandlerFunc(runtime.handleJob), logger)

	if cfg.DigestEnabled {
		digest, err := scheduler.NewDigest(cfg.DigestCron, location, contacts, dispatcher, logger)
		if err != nil {
			docs.Close()
			return nil, err
		}
		runtime.digest = digest
	}
	if cfg.WatchScripts && catalog.Path() != "" && dirExists(filepath.Dir(catalog.Path())) {
		watchService, err := watcher.New([]string{catalog.Path()}, logger, func(ctx context.Context, path string) {
			if err := catalog.Reload(); err != nil {
				logger.Error("scripts reload failed", "path", path, "error", err)
				return
			}
			logger.Info("scripts reloaded", "path", path)
		})
		if err != nil {
			docs.Close()
			return nil, err
		}
		runtime.watcher = watchService
	}
	return runtime, nil
}

func openDocuments(cfg config.Config) (store.DocumentStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendFile:
		fileStore, err := store.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		return fileStore, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		sqlStore, err := store.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := sqlStore.AutoMigrate(context.Background()); err != nil {
			sqlStore.Close()
			return nil, err
		}
		return sqlStore, nil
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Route runs one message through the router without delivering anything.
func (r *Runtime) Route(ctx context.Context, sender, text string) (gateway.Decision, error) {
	return r.gateway.Route(ctx, sender, text)
}

func (r *Runtime) Status(ctx context.Context) (string, error) {
	return r.gateway.Status(ctx)
}

func (r *Runtime) handleJob(ctx context.Context, job orchestrator.Job) error {
	decision, err := r.gateway.Route(ctx, job.Sender, job.Text)
	if err != nil {
		return fmt.Errorf("route message: %w", err)
	}
	r.logger.Info("message routed", "job_id", job.ID, "phone", job.Sender, "policy", string(decision.Policy()))
	if err := r.transcript.Append(transcript.Entry{
		Phone:     job.Sender,
		Direction: transcript.DirectionInbound,
		Text:      job.Text,
		Policy:    string(decision.Policy()),
		At:        job.ReceivedAt,
	}); err != nil {
		r.logger.Warn("transcript append failed", "phone", job.Sender, "error", err)
	}
	if err := r.dispatcher.Dispatch(ctx, decision); err != nil {
		return fmt.Errorf("dispatch decision: %w", err)
	}
	return nil
}

func (r *Runtime) Close() error {
	if r.docs == nil {
		return nil
	}
	return r.docs.Close()
}
