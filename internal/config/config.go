// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
	BackendMemory    = "memory"
)

// Extraction backends. Any value other than BackendGoogle selects the
// custom HTTP service at DOCUMENT_AI_URL.
const (
	BackendGoogle = "google"
	BackendHTTP   = "http"
)

// Config is shared by every entry point. Each function checks the fields it
// needs when it starts.
type Config struct {
	ProjectID             string
	StoreBackend          string
	MongoURI              string
	MongoDatabase         string
	FirestoreDatabase     string
	StorageBucketName     string
	StorageServiceKey     string
	VertexAIRegion        string
	DocumentAIBackend     string
	DocumentAILocation    string
	DocumentAIURL         string
	DocumentAITimeout     time.Duration
	LockDuration          time.Duration
	SignedURLExpiry       time.Duration
	WorkflowID            string
	WorkflowLocation      string
	KeepUnknownAttributes bool
	RunCleaningFunctions  bool
}

type binding struct {
	key, env string
	def      any
}

var bindings = []binding{
	{"project_id", "PROJECT_ID", ""},
	{"store_backend", "STORE_BACKEND", BackendFirestore},
	{"mongo_uri", "MONGO_URI", ""},
	{"mongo_database", "MONGO_DATABASE", "ogrre"},
	{"firestore_database", "FIRESTORE_DATABASE", "(default)"},
	{"storage_bucket_name", "STORAGE_BUCKET_NAME", ""},
	{"storage_service_key", "STORAGE_SERVICE_KEY", ""},
	{"vertex_ai_region", "VERTEX_AI_REGION", "us-central1"},
	{"document_ai_backend", "DOCUMENT_AI_BACKEND", BackendGoogle},
	{"document_ai_location", "DOCUMENT_AI_LOCATION", "us"},
	{"document_ai_url", "DOCUMENT_AI_URL", ""},
	{"document_ai_timeout", "DOCUMENT_AI_TIMEOUT", "60s"},
	{"lock_duration", "LOCK_DURATION", "120s"},
	{"signed_url_expiry", "SIGNED_URL_EXPIRY", "15m"},
	{"workflow_id", "WORKFLOW_ID", ""},
	{"workflow_location", "WORKFLOW_LOCATION", "us-central1"},
	{"keep_unknown_attributes", "KEEP_UNKNOWN_ATTRIBUTES", true},
	{"run_cleaning_functions", "RUN_CLEANING_FUNCTIONS", true},
}

// Load reads the environment, applies defaults and validates the result.
// Durations accept Go syntax ("90s") or a bare number of seconds.
func Load() (*Config, error) {
	v := viper.New()
	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", b.env, err)
		}
		v.SetDefault(b.key, b.def)
	}

	cfg := &Config{
		ProjectID:             v.GetString("project_id"),
		StoreBackend:          strings.ToLower(v.GetString("store_backend")),
		MongoURI:              v.GetString("mongo_uri"),
		MongoDatabase:         v.GetString("mongo_database"),
		FirestoreDatabase:     v.GetString("firestore_database"),
		StorageBucketName:     v.GetString("storage_bucket_name"),
		StorageServiceKey:     v.GetString("storage_service_key"),
		VertexAIRegion:        v.GetString("vertex_ai_region"),
		DocumentAIBackend:     strings.ToLower(v.GetString("document_ai_backend")),
		DocumentAILocation:    v.GetString("document_ai_location"),
		DocumentAIURL:         v.GetString("document_ai_url"),
		WorkflowID:            v.GetString("workflow_id"),
		WorkflowLocation:      v.GetString("workflow_location"),
		KeepUnknownAttributes: v.GetBool("keep_unknown_attributes"),
		RunCleaningFunctions:  v.GetBool("run_cleaning_functions"),
	}

	var err error
	if cfg.DocumentAITimeout, err = duration(v, "document_ai_timeout"); err != nil {
		return nil, err
	}
	if cfg.LockDuration, err = duration(v, "lock_duration"); err != nil {
		return nil, err
	}
	if cfg.SignedURLExpiry, err = duration(v, "signed_url_expiry"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if secs := v.GetFloat64(key); secs > 0 {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid duration for %s: %q", strings.ToUpper(key), raw)
}

// Validate checks values that every entry point depends on.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID must be set for the firestore store backend")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI must be set for the mongo store backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.DocumentAIBackend != BackendGoogle && c.DocumentAIURL == "" {
		return fmt.Errorf("DOCUMENT_AI_URL is required when DOCUMENT_AI_BACKEND is %q", c.DocumentAIBackend)
	}
	if c.LockDuration <= 0 {
		return fmt.Errorf("LOCK_DURATION must be positive")
	}
	return nil
}
