package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	StorageDriver string // postgres / memory

	DatabaseURL      string // あれば最優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5433）
	PostgresSSLMode  string

	JWTSecret string // JWT署名シークレット

	GoEnv string // dev/prod
	FEURL string // フロントURL（CORSと決済後のリダイレクト先）

	Gateway GatewayConfig

	LowStockThreshold int64

	Notifier NotifierConfig

	SweepInterval  time.Duration // 0なら定期照会しない
	SweepMinAge    time.Duration // これより古いpending注文だけ照会
	SweepBatchSize int
	RedisAddr      string // スイーパーのロック用（空ならロックなし）

	OTLPEndpoint string
	ServiceName  string
	LogLevel     string // debug/info/warn/error
}

// 決済ゲートウェイ
type GatewayConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string // https://.../v2/gateway/api
	RedirectURL string // ユーザーが戻ってくるURL（/payments/gateway/return）
	IPNURL      string // webhook（/payments/gateway/ipn）
	RequestType string
	Timeout     time.Duration
}

// 通知の送り先
type NotifierConfig struct {
	Driver       string // log / kafka / nats / redis
	KafkaBrokers []string
	KafkaTopic   string
	NATSURL      string
	NATSSubject  string
	RedisAddr    string
	RedisChannel string
}

// LoadEnvFileは.envがあれば読み込む。無くてもエラーにしない。
func LoadEnvFile(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port:          getenv("PORT", "8080"),
		StorageDriver: getenv("STORAGE_DRIVER", "postgres"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv: getenv("GO_ENV", "dev"),
		FEURL: os.Getenv("FE_URL"),

		Gateway: GatewayConfig{
			PartnerCode: os.Getenv("GATEWAY_PARTNER_CODE"),
			AccessKey:   os.Getenv("GATEWAY_ACCESS_KEY"),
			SecretKey:   os.Getenv("GATEWAY_SECRET_KEY"),
			Endpoint:    os.Getenv("GATEWAY_ENDPOINT"),
			RedirectURL: os.Getenv("GATEWAY_REDIRECT_URL"),
			IPNURL:      os.Getenv("GATEWAY_IPN_URL"),
			RequestType: getenv("GATEWAY_REQUEST_TYPE", "captureWallet"),
		},

		Notifier: NotifierConfig{
			Driver:       getenv("NOTIFIER_DRIVER", "log"),
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:   getenv("KAFKA_TOPIC", "fulfillment.notifications"),
			NATSURL:      os.Getenv("NATS_URL"),
			NATSSubject:  getenv("NATS_SUBJECT", "fulfillment.notifications"),
			RedisAddr:    os.Getenv("NOTIFIER_REDIS_ADDR"),
			RedisChannel: getenv("REDIS_CHANNEL", "fulfillment.notifications"),
		},

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  getenv("OTEL_SERVICE_NAME", "ec-fulfillment"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.LowStockThreshold, err = atoi64Default("LOW_STOCK_THRESHOLD", 5); err != nil {
		return Config{}, err
	}
	if cfg.SweepBatchSize, err = atoiDefault("RECONCILE_SWEEP_BATCH", 50); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.Timeout, err = durationDefault("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationDefault("RECONCILE_SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SweepMinAge, err = durationDefault("RECONCILE_SWEEP_MIN_AGE", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Notifier.RedisAddr == "" {
		cfg.Notifier.RedisAddr = cfg.RedisAddr
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	//必須チェック
	switch c.StorageDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			if c.PostgresUser == "" {
				return fmt.Errorf("POSTGRES_USER is required")
			}
			if c.PostgresPassword == "" {
				return fmt.Errorf("POSTGRES_PASSWORD is required")
			}
			if c.PostgresDB == "" {
				return fmt.Errorf("POSTGRES_DB is required")
			}
			if c.PostgresHost == "" {
				return fmt.Errorf("POSTGRES_HOST is required")
			}
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.FEURL == "" {
		return fmt.Errorf("FE_URL is required")
	}
	if c.Gateway.PartnerCode == "" || c.Gateway.AccessKey == "" || c.Gateway.SecretKey == "" {
		return fmt.Errorf("GATEWAY_PARTNER_CODE, GATEWAY_ACCESS_KEY and GATEWAY_SECRET_KEY are required")
	}
	if c.Gateway.Endpoint == "" {
		return fmt.Errorf("GATEWAY_ENDPOINT is required")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must not be negative")
	}

	switch c.Notifier.Driver {
	case "log":
	case "kafka":
		if len(c.Notifier.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for kafka notifier")
		}
	case "nats":
		if c.Notifier.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for nats notifier")
		}
	case "redis":
		if c.Notifier.RedisAddr == "" {
			return fmt.Errorf("NOTIFIER_REDIS_ADDR or REDIS_ADDR is required for redis notifier")
		}
	default:
		return fmt.Errorf("unsupported NOTIFIER_DRIVER: %s", c.Notifier.Driver)
	}
	return nil
}

// PostgresDSNはgorm/goose用の接続文字列
func (c Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

// ":8080"形式
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func atoi64Default(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration (e.g. 10s): %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
