package main

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// fileConfig is the YAML config-file layer (spec §6's option table),
// overridden field-by-field by CLI flags. Grounded on
// original_source/mongo_connector/connector.py's option list: same
// names, same defaults, reshaped into a struct gopkg.in/yaml.v2 decodes
// directly rather than argparse's flat namespace.
type fileConfig struct {
	MainAddress string `yaml:"main-address"`

	CheckpointPath     string `yaml:"checkpoint-path"`
	CheckpointBackend  string `yaml:"checkpoint-backend"` // "file" (default), "s3", "azure", "minio"
	CheckpointBucket   string `yaml:"checkpoint-bucket"`
	CheckpointKey      string `yaml:"checkpoint-key"`
	CheckpointPrefix   string `yaml:"checkpoint-prefix"`
	CheckpointRegion   string `yaml:"checkpoint-region"`
	CheckpointEndpoint string `yaml:"checkpoint-endpoint"`
	S3AccessKeyID      string `yaml:"s3-access-key-id"`
	S3SecretKey        string `yaml:"s3-secret-key"`
	AzureConnString    string `yaml:"azure-connection-string"`
	AzureContainer     string `yaml:"azure-container"`
	MinIOAccessKey     string `yaml:"minio-access-key"`
	MinIOSecretKey     string `yaml:"minio-secret-key"`
	MinIOUseSSL        bool   `yaml:"minio-use-ssl"`
	CompressionType    string `yaml:"checkpoint-compression"`

	NamespaceSet     []string `yaml:"namespace-set"`
	DestNamespaceSet []string `yaml:"dest-namespace-set"`
	UniqueKey        string   `yaml:"unique-key"`

	AuthUsername string `yaml:"auth-username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password-file"`

	DocManagers []string `yaml:"doc-managers"`
	TargetURLs  []string `yaml:"target-urls"`
	Flatten     bool     `yaml:"flatten"`

	NoDump             bool     `yaml:"no-dump"`
	BatchSize          int      `yaml:"batch-size"`
	Fields             []string `yaml:"fields"`
	AutoCommitInterval *int     `yaml:"auto-commit-interval"`
	ContinueOnError    bool     `yaml:"continue-on-error"`
	UpdateFallback     string   `yaml:"update-fallback"` // "replace" (default) or "reject"

	Verbose bool   `yaml:"verbose"`
	Logfile string `yaml:"logfile"`
}

func loadFileConfig(path string) (fileConfig, error) {
	cfg := fileConfig{BatchSize: 1000, CheckpointPath: "replicator.checkpoint"}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}
	return cfg, nil
}

// resolvePassword applies connector.py's rule: a literal password and
// a password file are mutually exclusive, and the file's contents are
// whitespace-trimmed once at startup.
func (c *fileConfig) resolvePassword() error {
	if c.Password != "" && c.PasswordFile != "" {
		return errors.Wrap(pbm.ErrConfiguration, "password and password-file are mutually exclusive")
	}
	if c.PasswordFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.PasswordFile)
	if err != nil {
		return errors.Wrap(err, "read password file")
	}
	c.Password = strings.TrimSpace(string(data))
	return nil
}

func (c *fileConfig) commitInterval() *time.Duration {
	if c.AutoCommitInterval == nil {
		return nil
	}
	d := time.Duration(*c.AutoCommitInterval) * time.Second
	return &d
}
