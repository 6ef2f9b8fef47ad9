package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alephprint/gsprintd/audit"
	"github.com/alephprint/gsprintd/config"
	"github.com/alephprint/gsprintd/converter"
	"github.com/alephprint/gsprintd/engine"
	"github.com/alephprint/gsprintd/events"
	"github.com/alephprint/gsprintd/intake"
	"github.com/alephprint/gsprintd/job"
	"github.com/alephprint/gsprintd/logging"
	"github.com/alephprint/gsprintd/printer"
	"github.com/alephprint/gsprintd/queue"
	"github.com/alephprint/gsprintd/server"
	"github.com/alephprint/gsprintd/supervisor"
	"github.com/alephprint/gsprintd/wsapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configFiles, helpRequested, err := parseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if helpRequested {
		return nil
	}

	cfg, err := config.Load(configFiles)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	if err := os.MkdirAll(cfg.FilesDir, 0o755); err != nil {
		return fmt.Errorf("creating files directory %s: %w", cfg.FilesDir, err)
	}

	ws := wsapi.NewManager(log)
	ws.Start()

	var ledger *audit.Ledger
	if cfg.AuditEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ledger, err = audit.Open(ctx, cfg.AuditDSN, log)
		if err != nil {
			return fmt.Errorf("connecting audit ledger: %w", err)
		}
		defer ledger.Close()
	}

	notify := func(ev events.JobEvent) {
		ws.Broadcast(ev)
		if ledger != nil && job.IsTerminal(job.Status(ev.Status)) {
			go ledger.Record(ev)
		}
	}

	qc := queue.New(cfg.QueueCapacity)
	qs := queue.New(cfg.QueueCapacity)

	senders := make([]*printer.Sender, cfg.SenderWorkers)
	for i := range senders {
		senders[i] = printer.New(
			fmt.Sprintf("sender-%d", i+1),
			qs,
			printer.Config{
				DequeueTimeout: cfg.QueueDequeueTimeout,
				Readonly:       cfg.Readonly,
				Disposal:       cfg.Disposal,
				ConnectTimeout: cfg.SenderConnectTimeout,
				IOTimeout:      cfg.SenderIOTimeout,
				SoftTimeout:    cfg.SenderSoftTimeout,
			},
			notify,
			log,
		)
	}

	eng := engine.New()
	converters := make([]*converter.Converter, cfg.ConverterWorkers)
	for i := range converters {
		converters[i] = converter.New(
			fmt.Sprintf("converter-%d", i+1),
			qc, qs,
			eng,
			cfg.QueueDequeueTimeout,
			notify,
			log,
		)
	}

	intakeHandler := intake.New(qc, cfg.FilesDir, notify, log)
	httpServer := server.New(cfg.HTTPAddress, intakeHandler, ws, log)

	sv := supervisor.New(qc, qs, converters, senders, httpServer, supervisor.ShutdownPolicy{
		Grace:             cfg.ShutdownGrace,
		DrainConvertQueue: cfg.ShutdownDrainConvertQ,
		DrainSendQueue:    cfg.ShutdownDrainSendQ,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", cfg.HTTPAddress).Str("files_dir", cfg.FilesDir).Msg("gsprintd starting")
	return sv.Run(ctx)
}

func parseArgs(args []string) (configFiles []string, helpRequested bool, err error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-h", "--help":
			fmt.Println("Usage: gsprintd [--config-file <path>]...")
			fmt.Println("  --config-file can be repeated; later files override earlier ones.")
			return nil, true, nil
		case "--config-file":
			if i+1 >= len(args) {
				return nil, false, fmt.Errorf("--config-file requires a path argument")
			}
			i++
			configFiles = append(configFiles, args[i])
		default:
			return nil, false, fmt.Errorf("unrecognized argument: %s", args[i])
		}
	}
	return configFiles, false, nil
}
