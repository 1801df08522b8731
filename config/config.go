// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const (
	SolverAuto       = "auto"
	SolverExact      = "exact"
	SolverRandomized = "randomized"

	BackendPOSIX = "posix"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendAzure = "azure"
)

// Config is the configuration of the recommender.
type Config struct {
	Dataset       DatasetConfig       `mapstructure:"dataset"`
	Factorization FactorizationConfig `mapstructure:"factorization"`
	Recommend     RecommendConfig     `mapstructure:"recommend"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Server        ServerConfig        `mapstructure:"server"`
}

// DatasetConfig locates the dataset snapshot.
type DatasetConfig struct {
	MetadataPath   string `mapstructure:"metadata_path" validate:"required"`
	EmbeddingsPath string `mapstructure:"embeddings_path" validate:"required"`
	ClicksDir      string `mapstructure:"clicks_dir" validate:"required"`
}

type FactorizationConfig struct {
	Rank            int    `mapstructure:"rank" validate:"gte=1"`
	Solver          string `mapstructure:"solver" validate:"oneof=auto exact randomized"`
	Seed            int64  `mapstructure:"seed"`
	Oversamples     int    `mapstructure:"oversamples" validate:"gte=0"`
	PowerIterations int    `mapstructure:"power_iterations" validate:"gte=0"`
	Jobs            int    `mapstructure:"jobs" validate:"gte=1"`
}

type RecommendConfig struct {
	CandidateFactor   int           `mapstructure:"candidate_factor" validate:"gte=1"`
	PopularityCeiling float32       `mapstructure:"popularity_ceiling" validate:"gt=0"`
	ContentScale      float32       `mapstructure:"content_scale" validate:"gte=0"`
	CFScale           float32       `mapstructure:"cf_scale" validate:"gte=0"`
	PublisherBoost    float32       `mapstructure:"publisher_boost" validate:"gte=0"`
	CategoryBoost     float32       `mapstructure:"category_boost" validate:"gte=0"`
	RecencyDecay      float32       `mapstructure:"recency_decay" validate:"gte=0"`
	Sequential        bool          `mapstructure:"sequential"`
	CFTimeout         time.Duration `mapstructure:"cf_timeout" validate:"gte=0"`
	Jobs              int           `mapstructure:"jobs" validate:"gte=1"`
}

type StorageConfig struct {
	Backend string          `mapstructure:"backend" validate:"oneof=posix s3 gcs azure"`
	Dir     string          `mapstructure:"dir"`
	S3      S3Config        `mapstructure:"s3"`
	GCS     GCSConfig       `mapstructure:"gcs"`
	Azure   AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	DefaultN int    `mapstructure:"default_n" validate:"gte=1"`
	// RateLimit is the number of requests per second accepted by the REST server. 0 means unlimited.
	RateLimit int `mapstructure:"rate_limit" validate:"gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			MetadataPath:   "data/articles_metadata.csv",
			EmbeddingsPath: "data/articles_embeddings.npy",
			ClicksDir:      "data/clicks",
		},
		Factorization: FactorizationConfig{
			Rank:            400,
			Solver:          SolverAuto,
			Seed:            42,
			Oversamples:     10,
			PowerIterations: 5,
			Jobs:            runtime.NumCPU(),
		},
		Recommend: RecommendConfig{
			CandidateFactor:   5,
			PopularityCeiling: 6,
			ContentScale:      2,
			CFScale:           2,
			PublisherBoost:    1,
			CategoryBoost:     1,
			RecencyDecay:      30,
			Jobs:              runtime.NumCPU(),
		},
		Storage: StorageConfig{
			Backend: BackendPOSIX,
			Dir:     "cache",
		},
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8088,
			DefaultN: 10,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [dataset]
	v.SetDefault("dataset.metadata_path", defaultConfig.Dataset.MetadataPath)
	v.SetDefault("dataset.embeddings_path", defaultConfig.Dataset.EmbeddingsPath)
	v.SetDefault("dataset.clicks_dir", defaultConfig.Dataset.ClicksDir)
	// [factorization]
	v.SetDefault("factorization.rank", defaultConfig.Factorization.Rank)
	v.SetDefault("factorization.solver", defaultConfig.Factorization.Solver)
	v.SetDefault("factorization.seed", defaultConfig.Factorization.Seed)
	v.SetDefault("factorization.oversamples", defaultConfig.Factorization.Oversamples)
	v.SetDefault("factorization.power_iterations", defaultConfig.Factorization.PowerIterations)
	v.SetDefault("factorization.jobs", defaultConfig.Factorization.Jobs)
	// [recommend]
	v.SetDefault("recommend.candidate_factor", defaultConfig.Recommend.CandidateFactor)
	v.SetDefault("recommend.popularity_ceiling", defaultConfig.Recommend.PopularityCeiling)
	v.SetDefault("recommend.content_scale", defaultConfig.Recommend.ContentScale)
	v.SetDefault("recommend.cf_scale", defaultConfig.Recommend.CFScale)
	v.SetDefault("recommend.publisher_boost", defaultConfig.Recommend.PublisherBoost)
	v.SetDefault("recommend.category_boost", defaultConfig.Recommend.CategoryBoost)
	v.SetDefault("recommend.recency_decay", defaultConfig.Recommend.RecencyDecay)
	v.SetDefault("recommend.sequential", defaultConfig.Recommend.Sequential)
	v.SetDefault("recommend.cf_timeout", defaultConfig.Recommend.CFTimeout)
	v.SetDefault("recommend.jobs", defaultConfig.Recommend.Jobs)
	// [storage]
	v.SetDefault("storage.backend", defaultConfig.Storage.Backend)
	v.SetDefault("storage.dir", defaultConfig.Storage.Dir)
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.use_ssl", false)
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "")
	v.SetDefault("storage.gcs.credentials_file", "")
	v.SetDefault("storage.azure.connection_string", "")
	v.SetDefault("storage.azure.account_name", "")
	v.SetDefault("storage.azure.account_key", "")
	v.SetDefault("storage.azure.endpoint", "")
	v.SetDefault("storage.azure.container", "")
	v.SetDefault("storage.azure.prefix", "")
	// [server]
	v.SetDefault("server.host", defaultConfig.Server.Host)
	v.SetDefault("server.port", defaultConfig.Server.Port)
	v.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	v.SetDefault("server.rate_limit", defaultConfig.Server.RateLimit)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	setDefault(v)
	// NEWSREC_RECOMMEND_CF_TIMEOUT overrides recommend.cf_timeout
	v.SetEnvPrefix("NEWSREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// LoadConfig loads configuration from a TOML file. Missing keys take default values and environment variables
// prefixed by NEWSREC_ override both. An empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", path)
		}
	}
	return unmarshal(v)
}

// Validate checks value ranges and the settings required by the chosen storage backend.
func (config *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(validateStorage, StorageConfig{})
	trans, _ := ut.New(en.New()).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.Trace(err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, fieldError.Translate(trans))
	}
	return errors.NotValidf("config (%s)", strings.Join(messages, "; "))
}

func validateStorage(sl validator.StructLevel) {
	storage := sl.Current().Interface().(StorageConfig)
	switch storage.Backend {
	case BackendPOSIX:
		if storage.Dir == "" {
			sl.ReportError(storage.Dir, "Dir", "dir", "required", "")
		}
	case BackendS3:
		if storage.S3.Endpoint == "" {
			sl.ReportError(storage.S3.Endpoint, "S3.Endpoint", "Endpoint", "required", "")
		}
		if storage.S3.Bucket == "" {
			sl.ReportError(storage.S3.Bucket, "S3.Bucket", "Bucket", "required", "")
		}
	case BackendGCS:
		if storage.GCS.Bucket == "" {
			sl.ReportError(storage.GCS.Bucket, "GCS.Bucket", "Bucket", "required", "")
		}
	case BackendAzure:
		if storage.Azure.Container == "" {
			sl.ReportError(storage.Azure.Container, "Azure.Container", "Container", "required", "")
		}
		if storage.Azure.ConnectionString == "" && (storage.Azure.AccountName == "" || storage.Azure.AccountKey == "") {
			sl.ReportError(storage.Azure.AccountName, "Azure.AccountName", "AccountName", "required", "")
		}
	}
}
