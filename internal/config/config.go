package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/drstein77/groceryweb/internal/theme"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	defaultRunAddr     = ":8080"
	defaultLogLevel    = "info"
	defaultMigrations  = "migrations"
	defaultConfigPath  = "config.yaml"
	defaultSearchLimit = 200
	defaultMaxUploadMB = 10
	defaultAMQPQueue   = "products.imported"
)

// fileConfig mirrors config.yaml.
type fileConfig struct {
	Server struct {
		Address     string `yaml:"address"`
		MaxUploadMB int64  `yaml:"max_upload_mb"`
	} `yaml:"server"`
	LogLevel string `yaml:"log_level"`
	Database struct {
		URI        string `yaml:"uri"`
		Migrations string `yaml:"migrations"`
	} `yaml:"database"`
	Search struct {
		Limit int `yaml:"limit"`
	} `yaml:"search"`
	Theme     theme.Theme `yaml:"theme"`
	ThemeFile string      `yaml:"theme_file"`
	Security  struct {
		AdminUsername     string `yaml:"admin_username"`
		AdminPassword     string `yaml:"admin_password"`
		AdminPasswordHash string `yaml:"admin_password_hash"`
		SessionSecret     string `yaml:"session_secret"`
	} `yaml:"security"`
	Archive struct {
		S3Bucket     string `yaml:"s3_bucket"`
		S3Region     string `yaml:"s3_region"`
		S3Prefix     string `yaml:"s3_prefix"`
		AWSAccessKey string `yaml:"aws_access_key"`
		AWSSecretKey string `yaml:"aws_secret_key"`
	} `yaml:"archive"`
	Events struct {
		AMQPURL string `yaml:"amqp_url"`
		Queue   string `yaml:"queue"`
	} `yaml:"events"`
}

type Options struct {
	configPath  string
	runAddr     string
	logLevel    string
	dataBaseDSN string
	migrations  string
	searchLimit int
	maxUpload   int64
	theme       theme.Theme
	themeFile   string

	adminUsername     string
	adminPassword     string
	adminPasswordHash string
	sessionSecret     string

	s3Bucket     string
	s3Region     string
	s3Prefix     string
	awsAccessKey string
	awsSecretKey string

	amqpURL   string
	amqpQueue string

	notes []string
}

func NewOptions() *Options {
	return new(Options)
}

// ParseFlags resolves every setting. Precedence, highest first: command
// line flags, environment (including .env), config file, defaults.
func (o *Options) ParseFlags(args []string) error {
	o.loadEnvFile(getEnvOrDefault("ENV_FILE", ".env"))

	fs := flag.NewFlagSet("groceryweb", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var flagConfig, flagAddr, flagLevel, flagDSN, flagMigrations string
	fs.StringVar(&flagConfig, "c", "", "path to the YAML config file")
	fs.StringVar(&flagAddr, "a", "", "address and port to run server")
	fs.StringVar(&flagLevel, "l", "", "log level")
	fs.StringVar(&flagDSN, "d", "", "database connection string")
	fs.StringVar(&flagMigrations, "m", "", "path to the migrations directory")

	// parse the arguments passed to the server into registered variables
	if err := fs.Parse(args); err != nil {
		return err
	}

	o.configPath = firstNonEmpty(flagConfig, os.Getenv("CONFIG_PATH"), defaultConfigPath)
	fc, err := o.readConfigFile(o.configPath)
	if err != nil {
		return err
	}

	o.runAddr = firstNonEmpty(flagAddr, os.Getenv("RUN_ADDRESS"), fc.Server.Address, defaultRunAddr)
	o.logLevel = firstNonEmpty(flagLevel, os.Getenv("LOG_LEVEL"), fc.LogLevel, defaultLogLevel)
	o.dataBaseDSN = firstNonEmpty(flagDSN, os.Getenv("DATABASE_URI"), fc.Database.URI)
	o.migrations = firstNonEmpty(flagMigrations, os.Getenv("MIGRATIONS_PATH"), fc.Database.Migrations, defaultMigrations)
	o.themeFile = firstNonEmpty(os.Getenv("THEME_FILE"), fc.ThemeFile)
	if err := fc.Theme.Validate(); err != nil {
		return fmt.Errorf("config file theme: %w", err)
	}
	o.theme = theme.Default().Merge(fc.Theme)

	if o.searchLimit, err = intSetting("SEARCH_LIMIT", fc.Search.Limit, defaultSearchLimit); err != nil {
		return err
	}
	maxUploadMB, err := intSetting("MAX_UPLOAD_MB", int(fc.Server.MaxUploadMB), defaultMaxUploadMB)
	if err != nil {
		return err
	}
	o.maxUpload = int64(maxUploadMB) << 20

	o.adminUsername = firstNonEmpty(os.Getenv("ADMIN_USERNAME"), fc.Security.AdminUsername, "admin")
	o.adminPassword = firstNonEmpty(os.Getenv("ADMIN_PASSWORD"), fc.Security.AdminPassword)
	o.adminPasswordHash = firstNonEmpty(os.Getenv("ADMIN_PASSWORD_HASH"), fc.Security.AdminPasswordHash)
	o.sessionSecret = firstNonEmpty(os.Getenv("SESSION_SECRET"), fc.Security.SessionSecret)

	o.s3Bucket = firstNonEmpty(os.Getenv("AWS_S3_BUCKET"), fc.Archive.S3Bucket)
	o.s3Region = firstNonEmpty(os.Getenv("AWS_S3_REGION"), fc.Archive.S3Region)
	o.s3Prefix = firstNonEmpty(os.Getenv("AWS_S3_PREFIX"), fc.Archive.S3Prefix, "imports")
	o.awsAccessKey = firstNonEmpty(os.Getenv("AWS_ACCESS_KEY"), fc.Archive.AWSAccessKey)
	o.awsSecretKey = firstNonEmpty(os.Getenv("AWS_SECRET_KEY"), fc.Archive.AWSSecretKey)

	o.amqpURL = firstNonEmpty(os.Getenv("AMQP_URL"), fc.Events.AMQPURL)
	o.amqpQueue = firstNonEmpty(os.Getenv("AMQP_QUEUE"), fc.Events.Queue, defaultAMQPQueue)

	return nil
}

func (o *Options) ConfigPath() string { return o.configPath }

func (o *Options) RunAddr() string {
	return o.runAddr
}

func (o *Options) LogLevel() string {
	return o.logLevel
}

func (o *Options) DataBaseDSN() string {
	return o.dataBaseDSN
}

func (o *Options) MigrationsPath() string { return o.migrations }
func (o *Options) SearchLimit() int       { return o.searchLimit }
func (o *Options) MaxUploadBytes() int64  { return o.maxUpload }
func (o *Options) Theme() theme.Theme     { return o.theme }
func (o *Options) ThemeFile() string      { return o.themeFile }

func (o *Options) AdminUsername() string     { return o.adminUsername }
func (o *Options) AdminPassword() string     { return o.adminPassword }
func (o *Options) AdminPasswordHash() string { return o.adminPasswordHash }
func (o *Options) SessionSecret() string     { return o.sessionSecret }

func (o *Options) S3Bucket() string     { return o.s3Bucket }
func (o *Options) S3Region() string     { return o.s3Region }
func (o *Options) S3Prefix() string     { return o.s3Prefix }
func (o *Options) AWSAccessKey() string { return o.awsAccessKey }
func (o *Options) AWSSecretKey() string { return o.awsSecretKey }

func (o *Options) AMQPURL() string   { return o.amqpURL }
func (o *Options) AMQPQueue() string { return o.amqpQueue }

// Notes returns messages collected while loading, before a logger exists.
func (o *Options) Notes() []string {
	return o.notes
}

func (o *Options) readConfigFile(path string) (fileConfig, error) {
	var fc fileConfig

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		o.notes = append(o.notes, fmt.Sprintf("no config file at %s, using defaults", path))
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	o.notes = append(o.notes, fmt.Sprintf("config file loaded from %s", path))
	return fc, nil
}

// loadEnvFile loads environment variables from a .env file. Variables
// already present in the environment win.
func (o *Options) loadEnvFile(path string) {
	if err := godotenv.Load(path); err != nil {
		o.notes = append(o.notes, fmt.Sprintf("no .env file found at %s, proceeding without it", path))
		return
	}
	o.notes = append(o.notes, fmt.Sprintf(".env file loaded from %s", path))
}

// getEnvOrDefault reads an environment variable or returns a default value if the variable is not set or is empty.
func getEnvOrDefault(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func intSetting(env string, fromFile, def int) (int, error) {
	if raw := os.Getenv(env); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("%s must be a positive integer, got %q", env, raw)
		}
		return v, nil
	}
	if fromFile > 0 {
		return fromFile, nil
	}
	return def, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
