package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Name         string `mapstructure:"name"`
		Env          string `mapstructure:"env"`
		Port         string `mapstructure:"port"`
		BaseURL      string `mapstructure:"base_url"`
		StaticURL    string `mapstructure:"static_url"`
		SupportEmail string `mapstructure:"support_email"`
		LogFile      string `mapstructure:"log_file"`
	} `mapstructure:"app"`
	DB struct {
		DSN            string `mapstructure:"dsn"`
		MigrationsPath string `mapstructure:"migrations_path"`
		AutoMigrate    bool   `mapstructure:"auto_migrate"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		GroupID string   `mapstructure:"group_id"`
	} `mapstructure:"kafka"`
	Auth struct {
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenLifespan time.Duration `mapstructure:"token_lifespan"`
		Issuer        string        `mapstructure:"issuer"`
	} `mapstructure:"auth"`
	Jaeger struct {
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"jaeger"`
	AWS struct {
		Region          string `mapstructure:"region"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
	} `mapstructure:"aws"`
	Storage struct {
		SourceBucket     string        `mapstructure:"source_bucket"`
		TranscodeBucket  string        `mapstructure:"transcode_bucket"`
		ThumbnailBucket  string        `mapstructure:"thumbnail_bucket"`
		SubtitleBucket   string        `mapstructure:"subtitle_bucket"`
		WatchBucket      string        `mapstructure:"watch_bucket"`
		SignedURLTTL     time.Duration `mapstructure:"signed_url_ttl"`
		UploadPartSizeMB int64         `mapstructure:"upload_part_size_mb"`
	} `mapstructure:"storage"`
	CDN struct {
		Distribution string        `mapstructure:"distribution"`
		KeyID        string        `mapstructure:"key_id"`
		PrivateKey   string        `mapstructure:"private_key"`
		SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`
	} `mapstructure:"cdn"`
	Transcoder struct {
		PipelineID      string            `mapstructure:"pipeline_id"`
		Presets         []string          `mapstructure:"presets"`
		PresetEncodings map[string]string `mapstructure:"preset_encodings"`
		SegmentDuration string            `mapstructure:"segment_duration"`
		Timeout         time.Duration     `mapstructure:"timeout"`
	} `mapstructure:"transcoder"`
	YouTube struct {
		ClientID     string        `mapstructure:"client_id"`
		ClientSecret string        `mapstructure:"client_secret"`
		RefreshToken string        `mapstructure:"refresh_token"`
		ChunkSizeMB  int           `mapstructure:"chunk_size_mb"`
		MaxRetries   int           `mapstructure:"max_retries"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"youtube"`
	Edx struct {
		HLSAPIPath string        `mapstructure:"hls_api_path"`
		TokenPath  string        `mapstructure:"token_path"`
		Timeout    time.Duration `mapstructure:"timeout"`
		RPS        float64       `mapstructure:"rps"`
		BatchChunk int           `mapstructure:"batch_chunk"`
	} `mapstructure:"edx"`
	Directory struct {
		BaseURL    string        `mapstructure:"base_url"`
		CertFile   string        `mapstructure:"cert_file"`
		KeyFile    string        `mapstructure:"key_file"`
		HomeDomain string        `mapstructure:"home_domain"`
		MailDomain string        `mapstructure:"mail_domain"`
		CacheTTL   time.Duration `mapstructure:"cache_ttl"`
		CacheStore string        `mapstructure:"cache_store"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"directory"`
	Mail struct {
		Provider       string        `mapstructure:"provider"`
		From           string        `mapstructure:"from"`
		MailgunURL     string        `mapstructure:"mailgun_url"`
		MailgunKey     string        `mapstructure:"mailgun_key"`
		BatchChunkSize int           `mapstructure:"batch_chunk_size"`
		SMTPHost       string        `mapstructure:"smtp_host"`
		SMTPPort       int           `mapstructure:"smtp_port"`
		SMTPUsername   string        `mapstructure:"smtp_username"`
		SMTPPassword   string        `mapstructure:"smtp_password"`
		Timeout        time.Duration `mapstructure:"timeout"`
	} `mapstructure:"mail"`
	Watch struct {
		OwnerUsername      string `mapstructure:"owner_username"`
		UnsortedCollection string `mapstructure:"unsorted_collection"`
	} `mapstructure:"watch"`
	Schedule struct {
		StatusInterval       time.Duration `mapstructure:"status_interval"`
		ExternalHostInterval time.Duration `mapstructure:"external_host_interval"`
		WatchInterval        time.Duration `mapstructure:"watch_interval"`
		RetranscodeInterval  time.Duration `mapstructure:"retranscode_interval"`
		LockTTL              time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"schedule"`
}

var ErrMissingBucket = errors.New("bucket name not configured")

// LoadConfig reads config.yaml from path (if present), .env, and the environment.
func LoadConfig(path string) (cfg Config, err error) {
	if path == "" {
		path = "."
	}

	err = godotenv.Load(path + "/.env")
	if err != nil {
		log.Println("warning: .env file not found, use default.")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err = v.ReadInConfig(); err != nil {
		log.Printf("note: config.yaml not found, read environment only. Error: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	if err = v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "odl-video-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("db.migrations_path", "migrations")
	v.SetDefault("kafka.group_id", "video-pipeline-workers")
	v.SetDefault("auth.token_lifespan", 24*time.Hour)
	v.SetDefault("auth.issuer", "lecture-video-api")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("storage.signed_url_ttl", time.Hour)
	v.SetDefault("storage.upload_part_size_mb", 16)
	v.SetDefault("cdn.signed_url_ttl", 6*time.Hour)
	v.SetDefault("transcoder.segment_duration", "10")
	v.SetDefault("transcoder.timeout", 30*time.Second)
	v.SetDefault("youtube.chunk_size_mb", 16)
	v.SetDefault("youtube.max_retries", 10)
	v.SetDefault("youtube.timeout", 2*time.Hour)
	v.SetDefault("edx.hls_api_path", "api/val/v0/videos/")
	v.SetDefault("edx.token_path", "oauth2/access_token")
	v.SetDefault("edx.timeout", 30*time.Second)
	v.SetDefault("edx.rps", 5.0)
	v.SetDefault("edx.batch_chunk", 50)
	v.SetDefault("directory.home_domain", "mit.edu")
	v.SetDefault("directory.mail_domain", "mit.edu")
	v.SetDefault("directory.cache_ttl", 10*time.Minute)
	v.SetDefault("directory.cache_store", "redis")
	v.SetDefault("directory.timeout", 10*time.Second)
	v.SetDefault("mail.provider", "mailgun")
	v.SetDefault("mail.batch_chunk_size", 1000)
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.timeout", 20*time.Second)
	v.SetDefault("watch.unsorted_collection", "Unsorted")
	v.SetDefault("schedule.status_interval", time.Minute)
	v.SetDefault("schedule.external_host_interval", 10*time.Minute)
	v.SetDefault("schedule.watch_interval", time.Minute)
	v.SetDefault("schedule.retranscode_interval", 5*time.Minute)
	v.SetDefault("schedule.lock_ttl", 15*time.Minute)
}

func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"app.env":              "ENVIRONMENT",
		"app.port":             "APP_PORT",
		"app.base_url":         "ODL_VIDEO_BASE_URL",
		"app.static_url":       "STATIC_URL",
		"app.support_email":    "EMAIL_SUPPORT",
		"app.log_file":         "LOG_FILE",
		"db.dsn":               "DB_DSN",
		"db.auto_migrate":      "DB_AUTO_MIGRATE",
		"redis.addr":           "REDIS_ADDR",
		"redis.password":       "REDIS_PASSWORD",
		"kafka.brokers":        "KAFKA_BROKERS",
		"auth.jwt_secret":      "JWT_SECRET",
		"auth.token_lifespan":  "TOKEN_LIFESPAN",
		"auth.issuer":          "JWT_ISSUER",
		"redis.db":             "REDIS_DB",
		"jaeger.otlp_endpoint": "OTLP_ENDPOINT",

		"aws.region":            "AWS_REGION",
		"aws.access_key_id":     "AWS_ACCESS_KEY_ID",
		"aws.secret_access_key": "AWS_SECRET_ACCESS_KEY",

		"storage.source_bucket":    "VIDEO_S3_BUCKET",
		"storage.transcode_bucket": "VIDEO_S3_TRANSCODE_BUCKET",
		"storage.thumbnail_bucket": "VIDEO_S3_THUMBNAIL_BUCKET",
		"storage.subtitle_bucket":  "VIDEO_S3_SUBTITLE_BUCKET",
		"storage.watch_bucket":     "VIDEO_S3_WATCH_BUCKET",

		"cdn.distribution": "VIDEO_CLOUDFRONT_DIST",
		"cdn.key_id":       "CLOUDFRONT_KEY_ID",
		"cdn.private_key":  "CLOUDFRONT_PRIVATE_KEY",

		"transcoder.pipeline_id": "ET_PIPELINE_ID",
		"transcoder.presets":     "VIDEO_TRANSCODE_PRESETS",

		"youtube.client_id":     "YT_CLIENT_ID",
		"youtube.client_secret": "YT_CLIENT_SECRET",
		"youtube.refresh_token": "YT_REFRESH_TOKEN",

		"edx.hls_api_path": "EDX_HLS_API_PATH",

		"directory.base_url":  "MOIRA_BASE_URL",
		"directory.cert_file": "MOIRA_CERT_FILE",
		"directory.key_file":  "MOIRA_KEY_FILE",
		"directory.cache_ttl": "MOIRA_CACHE_TTL",

		"mail.provider":         "EMAIL_PROVIDER",
		"mail.from":             "EMAIL_FROM",
		"mail.mailgun_url":      "MAILGUN_URL",
		"mail.mailgun_key":      "MAILGUN_KEY",
		"mail.batch_chunk_size": "MAILGUN_BATCH_CHUNK_SIZE",
		"mail.smtp_host":        "EMAIL_HOST",
		"mail.smtp_port":        "EMAIL_PORT",
		"mail.smtp_username":    "EMAIL_USER",
		"mail.smtp_password":    "EMAIL_PASSWORD",

		"watch.owner_username":      "VIDEO_WATCH_BUCKET_OWNER",
		"watch.unsorted_collection": "UNSORTED_COLLECTION",

		"schedule.status_interval":        "VIDEO_STATUS_UPDATE_FREQUENCY",
		"schedule.external_host_interval": "YT_STATUS_UPDATE_FREQUENCY",
		"schedule.watch_interval":         "VIDEO_WATCH_BUCKET_FREQUENCY",
		"schedule.retranscode_interval":   "RETRANSCODE_FREQUENCY",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	buckets := map[string]string{
		"VIDEO_S3_BUCKET":           c.Storage.SourceBucket,
		"VIDEO_S3_TRANSCODE_BUCKET": c.Storage.TranscodeBucket,
		"VIDEO_S3_THUMBNAIL_BUCKET": c.Storage.ThumbnailBucket,
		"VIDEO_S3_SUBTITLE_BUCKET":  c.Storage.SubtitleBucket,
		"VIDEO_S3_WATCH_BUCKET":     c.Storage.WatchBucket,
	}
	for name, value := range buckets {
		if value == "" {
			return fmt.Errorf("%w: %s", ErrMissingBucket, name)
		}
	}
	if len(c.Transcoder.Presets) == 0 {
		return errors.New("VIDEO_TRANSCODE_PRESETS must list at least one preset")
	}
	return nil
}

// PipelineName is the user metadata tag attached to transcoder jobs.
func (c Config) PipelineName() string {
	return fmt.Sprintf("%s-%s", c.App.Name, c.App.Env)
}
