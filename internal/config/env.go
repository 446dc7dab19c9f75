package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".promptlab/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"promptlab/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-2"`
}

type DocsEnv struct {
	BaseURL     string `envconfig:"DOCS_BASE_URL"`
	APIKey      string `envconfig:"DOCS_API_KEY"`
	CatalogPath string `envconfig:"TASK_CATALOG_PATH" default:"tasks.yaml"`
}

type CollectorEnv struct {
	EndpointURL string `envconfig:"COLLECTOR_ENDPOINT_URL"`
	APIKey      string `envconfig:"COLLECTOR_API_KEY"`
}

type TranslateEnv struct {
	WorkDir  string `envconfig:"TRANSLATE_WORK_DIR" default:".promptlab/translate"`
	MaxTurns int    `envconfig:"TRANSLATE_MAX_TURNS" default:"1"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@voithru.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	DocsEnv
	CollectorEnv
	TranslateEnv
	VAPIDEnv
}

const namespace = "PROMPTLAB"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
