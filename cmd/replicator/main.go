// Command replicator is the thin CLI shell around the core engine: it
// parses flags and an optional YAML config file, wires the configured
// Checkpoint Store backend and Sinks, and runs the Supervisor until
// signalled to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin"
	"github.com/pkg/errors"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/checkpoint"
	"github.com/percona/mongo-shard-replicator/pbm/log"
	"github.com/percona/mongo-shard-replicator/pbm/oplog"
	"github.com/percona/mongo-shard-replicator/pbm/supervisor"
)

var (
	app = kingpin.New("replicator", "Continuously replicates a MongoDB cluster's oplog into configured sinks.")

	configPath = app.Flag("config", "Path to a YAML config file").Short('c').String()

	mainAddress      = app.Flag("main-address", "host:port of the router or a replica-set member").String()
	checkpointPath   = app.Flag("checkpoint-path", "Checkpoint file path").String()
	namespaceSet     = app.Flag("namespace-set", "Comma list of namespaces to replicate; empty means all non-system").String()
	destNamespaceSet = app.Flag("dest-namespace-set", "Comma list of destination namespaces, same length as namespace-set").String()
	uniqueKey        = app.Flag("unique-key", "Name of the id field").String()
	authUsername     = app.Flag("auth-username", "Username to authenticate to the source cluster with").String()
	password         = app.Flag("password", "Password to authenticate to the source cluster with").String()
	passwordFile     = app.Flag("password-file", "File containing the source cluster password").String()
	docManagers      = app.Flag("doc-managers", "Comma list of sink module names (simulator, mongo-mirror)").String()
	targetURLs       = app.Flag("target-urls", "Comma list of per-sink target URLs").String()
	noDump           = app.Flag("no-dump", "Disable the initial bulk copy").Bool()
	batchSize        = app.Flag("batch-size", "Checkpoint publish cadence, in log entries").Int()
	fields           = app.Flag("fields", "Comma list projection allow-list").String()
	continueOnError  = app.Flag("continue-on-error", "Downgrade dump write errors to warnings").Bool()
	verbose          = app.Flag("verbose", "Enable debug-level logging").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "replicator:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadFileConfig(*configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(&cfg)

	if err := cfg.resolvePassword(); err != nil {
		return err
	}

	log.SetVerbose(cfg.Verbose)
	lg := log.New("replicator", "")

	namespaces, err := pbm.NewNamespaceFilter(cfg.NamespaceSet, cfg.DestNamespaceSet)
	if err != nil {
		return errors.Wrap(pbm.ErrConfiguration, err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildCheckpointStore(cfg, lg)
	if err != nil {
		return err
	}

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}

	updateFallback := oplog.FallbackReplace
	if cfg.UpdateFallback == "reject" {
		updateFallback = oplog.FallbackReject
	}

	sup := supervisor.New(supervisor.Config{
		MainAddress:     cfg.MainAddress,
		Username:        cfg.AuthUsername,
		Password:        cfg.Password,
		CheckpointStore: store,
		Progress:        checkpoint.NewMap(),
		Sinks:           sinks,
		Namespaces:      namespaces,
		Fields:          cfg.Fields,
		UniqueKey:       cfg.UniqueKey,
		BatchSize:       cfg.BatchSize,
		ContinueOnError: cfg.ContinueOnError,
		CollectionDump:  !cfg.NoDump,
		UpdateFallback:  updateFallback,
		CommitInterval:  cfg.commitInterval(),
		Log:             lg,
	})

	return sup.Run(ctx)
}
