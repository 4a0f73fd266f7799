package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
	"github.com/noah-isme/olympiad-registration-api/internal/registration"
	"github.com/noah-isme/olympiad-registration-api/internal/repository"
	"github.com/noah-isme/olympiad-registration-api/internal/service"
	"github.com/noah-isme/olympiad-registration-api/pkg/config"
	"github.com/noah-isme/olympiad-registration-api/pkg/database"
	"github.com/noah-isme/olympiad-registration-api/pkg/logger"
)

func main() {
	var (
		inPath      string
		outPath     string
		defaultCall string
		persist     bool
		useDB       bool
	)

	flag.StringVar(&inPath, "in", "-", "Storage dump to import, - for stdin")
	flag.StringVar(&outPath, "out", "-", "Where to write the reconciliation result, - for stdout")
	flag.StringVar(&defaultCall, "default-call", "", "Call receiving legacy per-student selections (defaults to DEFAULT_CALL_ID)")
	flag.BoolVar(&persist, "persist", false, "Write students and registrations to the database")
	flag.BoolVar(&useDB, "use-db", false, "Resolve calls and areas from the database without persisting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if defaultCall == "" {
		defaultCall = cfg.Registration.DefaultCallID
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := openInput(inPath)
	if err != nil {
		logr.Fatal("failed to open dump", zap.String("path", inPath), zap.Error(err))
	}
	defer in.Close()

	reconciler := reconcile.New(reconcile.Options{
		Orders: registration.OrderPolicy{
			IndividualTTL: cfg.Registration.IndividualOrderTTL,
			GroupTTL:      cfg.Registration.GroupOrderTTL,
		},
		Logger: logr,
	})

	var svc *service.LegacyImportService
	if persist || useDB {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect database", zap.Error(err))
		}
		defer db.Close()
		svc = service.NewLegacyImportService(
			repository.NewCallRepository(db),
			repository.NewStudentRepository(db),
			repository.NewRegistrationRepository(db),
			reconciler,
			logr,
		)
	} else {
		svc = service.NewLegacyImportService(nil, nil, nil, reconciler, logr)
	}

	result, err := svc.Import(ctx, in, service.LegacyImportOptions{DefaultCallID: defaultCall, Persist: persist})
	if err != nil {
		logr.Fatal("import failed", zap.Error(err))
	}

	if err := writeResult(outPath, result); err != nil {
		logr.Fatal("failed to write result", zap.Error(err))
	}
	logr.Info("legacy import finished",
		zap.Bool("persisted", persist),
		zap.Int("registrations", result.Report.Output),
		zap.Int("dropped", result.Report.Dropped),
		zap.Int("merged", result.Report.Merged),
		zap.Int("migrated", result.Report.Migrated),
	)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func writeResult(path string, result *reconcile.Result) error {
	out := io.Writer(os.Stdout)
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
