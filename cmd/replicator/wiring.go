package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/checkpoint"
	"github.com/percona/mongo-shard-replicator/pbm/compress"
	"github.com/percona/mongo-shard-replicator/pbm/formatter"
	"github.com/percona/mongo-shard-replicator/pbm/log"
	"github.com/percona/mongo-shard-replicator/pbm/sink"
	"github.com/percona/mongo-shard-replicator/pbm/storage"
)

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyFlagOverrides layers CLI flag values over the file config, the
// way connector.py's argparse namespace wins over its config-file
// values: an unset (empty/zero) flag never overrides a configured one.
func applyFlagOverrides(cfg *fileConfig) {
	if *mainAddress != "" {
		cfg.MainAddress = *mainAddress
	}
	if *checkpointPath != "" {
		cfg.CheckpointPath = *checkpointPath
	}
	if *namespaceSet != "" {
		cfg.NamespaceSet = splitList(*namespaceSet)
	}
	if *destNamespaceSet != "" {
		cfg.DestNamespaceSet = splitList(*destNamespaceSet)
	}
	if *uniqueKey != "" {
		cfg.UniqueKey = *uniqueKey
	}
	if *authUsername != "" {
		cfg.AuthUsername = *authUsername
	}
	if *password != "" {
		cfg.Password = *password
	}
	if *passwordFile != "" {
		cfg.PasswordFile = *passwordFile
	}
	if *docManagers != "" {
		cfg.DocManagers = splitList(*docManagers)
	}
	if *targetURLs != "" {
		cfg.TargetURLs = splitList(*targetURLs)
	}
	if *noDump {
		cfg.NoDump = true
	}
	if *batchSize != 0 {
		cfg.BatchSize = *batchSize
	}
	if *fields != "" {
		cfg.Fields = splitList(*fields)
	}
	if *continueOnError {
		cfg.ContinueOnError = true
	}
	if *verbose {
		cfg.Verbose = true
	}
}

// buildCheckpointStore selects the Checkpoint Store backend named by
// cfg.CheckpointBackend, defaulting to the local file store (spec §4.2,
// generalized per SPEC_FULL.md to every teacher storage dependency).
func buildCheckpointStore(cfg fileConfig, lg *log.Event) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case "", "file":
		return checkpoint.NewFileStore(cfg.CheckpointPath, lg)

	case "s3":
		stg, err := storage.NewS3(storage.S3Config{
			Bucket:      cfg.CheckpointBucket,
			Prefix:      cfg.CheckpointPrefix,
			Region:      cfg.CheckpointRegion,
			Endpoint:    cfg.CheckpointEndpoint,
			AccessKeyID: cfg.S3AccessKeyID,
			SecretKey:   cfg.S3SecretKey,
		})
		if err != nil {
			return nil, errors.Wrap(err, "build s3 checkpoint backend")
		}
		return checkpoint.NewBlobStore(stg, checkpointKey(cfg), compressionType(cfg)), nil

	case "azure":
		stg, err := storage.NewAzure(storage.AzureConfig{
			ConnectionString: cfg.AzureConnString,
			Container:        cfg.AzureContainer,
			Prefix:           cfg.CheckpointPrefix,
		})
		if err != nil {
			return nil, errors.Wrap(err, "build azure checkpoint backend")
		}
		return checkpoint.NewBlobStore(stg, checkpointKey(cfg), compressionType(cfg)), nil

	case "minio":
		stg, err := storage.NewMinIO(storage.MinIOConfig{
			Endpoint:  cfg.CheckpointEndpoint,
			Bucket:    cfg.CheckpointBucket,
			Prefix:    cfg.CheckpointPrefix,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, errors.Wrap(err, "build minio checkpoint backend")
		}
		return checkpoint.NewBlobStore(stg, checkpointKey(cfg), compressionType(cfg)), nil

	default:
		return nil, errors.Wrapf(pbm.ErrConfiguration, "unknown checkpoint backend %q", cfg.CheckpointBackend)
	}
}

func checkpointKey(cfg fileConfig) string {
	if cfg.CheckpointKey != "" {
		return cfg.CheckpointKey
	}
	return "replicator.checkpoint"
}

func compressionType(cfg fileConfig) compress.CompressionType {
	switch cfg.CompressionType {
	case "", "s2":
		return compress.CompressionTypeS2
	case "snappy":
		return compress.CompressionTypeSnappy
	case "gzip":
		return compress.CompressionTypeGzip
	case "lz4":
		return compress.CompressionTypeLZ4
	case "none":
		return compress.CompressionTypeNone
	default:
		return compress.CompressionTypeS2
	}
}

// buildSinks constructs a FanOut over cfg.DocManagers, pairing each
// with the corresponding cfg.TargetURLs entry; target URLs beyond the
// doc-managers list share the last configured sink type, and doc
// managers beyond the URL list reuse the last URL. No doc-managers
// configured falls back to the built-in simulator, matching
// doc_manager_simulator.py's role as the zero-config default.
func buildSinks(ctx context.Context, cfg fileConfig) (*sink.FanOut, error) {
	lg := log.New("sink", "")

	names := cfg.DocManagers
	if len(names) == 0 {
		names = []string{"simulator"}
	}

	fmtr := formatter.Formatter(formatter.Default{})
	if cfg.Flatten {
		fmtr = formatter.Flattening{}
	}

	n := len(names)
	if len(cfg.TargetURLs) > n {
		n = len(cfg.TargetURLs)
	}
	sinks := make([]sink.Sink, 0, n)
	for i := 0; i < n; i++ {
		name := names[len(names)-1]
		if i < len(names) {
			name = names[i]
		}
		url := ""
		if i < len(cfg.TargetURLs) {
			url = cfg.TargetURLs[i]
		} else if len(cfg.TargetURLs) > 0 {
			url = cfg.TargetURLs[len(cfg.TargetURLs)-1]
		}

		s, err := buildSink(ctx, name, url, cfg.UniqueKey, fmtr)
		if err != nil {
			return nil, errors.Wrapf(err, "build sink %d (%s)", i, name)
		}
		sinks = append(sinks, s)
	}

	return sink.NewFanOut(sinks, cfg.ContinueOnError, 0, lg), nil
}

func buildSink(ctx context.Context, name, url, uniqueKey string, fmtr formatter.Formatter) (sink.Sink, error) {
	switch name {
	case "simulator", "":
		return sink.NewSimulator(uniqueKey), nil
	case "mongo-mirror":
		return sink.NewMongoMirror(ctx, url, uniqueKey, fmtr)
	default:
		return nil, errors.Wrapf(pbm.ErrConfiguration, "unknown sink module %q", name)
	}
}
