package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thomaskien/kienzlefax/internal/config"
	"github.com/thomaskien/kienzlefax/internal/hylafax"
	"github.com/thomaskien/kienzlefax/internal/lockfile"
	"github.com/thomaskien/kienzlefax/internal/report"
	"github.com/thomaskien/kienzlefax/internal/store"
	"github.com/thomaskien/kienzlefax/internal/supervisor"
)

var (
	runConfigPath string
	runBaseDir    string
	runVerbose    bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to worker config YAML")
	runCmd.Flags().StringVar(&runBaseDir, "base", "", "Base directory (overrides config)")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Enable debug logging")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fax worker daemon",
	Long:  "Polls the queue, submits jobs to the fax backend, handles cancel intents, and archives transmission reports. A single instance per base directory is enforced via an advisory lock.",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.Load(runConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if runBaseDir != "" {
		cfg.BaseDir = runBaseDir
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if runVerbose {
		log.SetLevel(logrus.DebugLevel)
	}

	layout := store.Layout{Base: cfg.BaseDir}
	if err := layout.Ensure(); err != nil {
		return err
	}

	lock, err := lockfile.Acquire(layout.LockFile())
	if err != nil {
		return fmt.Errorf("single-instance check: %w", err)
	}
	defer func() { _ = lock.Release() }()

	backend := &hylafax.Client{
		Host:          cfg.FaxHost,
		User:          cfg.FaxUser,
		SendfaxBin:    cfg.SendfaxBin,
		FaxrmBin:      cfg.FaxrmBin,
		FaxstatBin:    cfg.FaxstatBin,
		DoneqDir:      cfg.DoneqDir,
		SendTimeout:   cfg.SendTimeout(),
		CancelTimeout: cfg.FaxrmTimeout(),
		StatusTimeout: cfg.FaxstatTimeout(),
	}
	render := &report.Builder{
		QpdfBin:       cfg.QpdfBin,
		HeaderScript:  cfg.HeaderScript,
		HeaderTimeout: cfg.HeaderTimeout(),
		Version:       version,
		Log:           log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("stopped by user")
		cancel()
	}()

	sup := supervisor.New(cfg, layout, backend, render, log)
	return sup.Run(ctx)
}
