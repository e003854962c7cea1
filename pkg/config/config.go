package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Nonce   NonceConfig   `mapstructure:"nonce"`
	GetReal GetRealConfig `mapstructure:"getreal"`
	DID     DIDConfig     `mapstructure:"did"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
	Storage  string `mapstructure:"storage"`   // "postgres" or "memory" (单实例开发)
	LogLevel string `mapstructure:"log_level"` // 为空时按环境默认: production=info, 其它=debug
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// ChainConfig 链与 Gas Station 合约配置
// Owner 私钥三选一: owner_private_key > owner_keystore_path > owner_mnemonic
type ChainConfig struct {
	RpcUrl                string        `mapstructure:"rpc_url"`
	ChainID               int64         `mapstructure:"chain_id"`
	GasStationAddress     string        `mapstructure:"gas_station_address"`
	OwnerPrivateKey       string        `mapstructure:"owner_private_key"`       // 通常通过环境变量 CHAIN_OWNER_PRIVATE_KEY 传入
	OwnerKeystorePath     string        `mapstructure:"owner_keystore_path"`     // 本地 Keystore 文件路径
	OwnerKeystorePassword string        `mapstructure:"owner_keystore_password"` // Keystore 密码
	OwnerMnemonic         string        `mapstructure:"owner_mnemonic"`
	OwnerDerivationPath   string        `mapstructure:"owner_derivation_path"`
	MachinePrivateKey     string        `mapstructure:"machine_private_key"` // 仅开发环境: 服务端代替设备签名
	ConfirmTimeout        time.Duration `mapstructure:"confirm_timeout"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
}

type NonceConfig struct {
	Backend string `mapstructure:"backend"` // "memory" or "redis"
	Base    uint64 `mapstructure:"base"`    // 0 表示随机起点
}

// GetRealConfig 远程签名/校验服务
type GetRealConfig struct {
	ServiceURL    string        `mapstructure:"service_url"`
	ServiceAPIKey string        `mapstructure:"service_api_key"`
	ProjectAPIKey string        `mapstructure:"project_api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type DIDConfig struct {
	Method              string `mapstructure:"method"`
	Name                string `mapstructure:"name"`
	RequireOwnerBinding bool   `mapstructure:"require_owner_binding"`
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// DSN 构造 gorm 使用的 PostgreSQL 连接串
func (c DBConfig) DSN() string {
	return "host=" + c.Host + " user=" + c.User + " password=" + c.Password +
		" dbname=" + c.Name + " port=" + c.Port + " sslmode=disable TimeZone=UTC"
}

// URL 构造 golang-migrate 使用的连接串
func (c DBConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=disable"
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")
	viper.SetDefault("app.grpc_port", "50051")
	viper.SetDefault("app.storage", "postgres")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "station_user")
	viper.SetDefault("db.password", "station_password")
	viper.SetDefault("db.name", "station_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("chain.rpc_url", "https://peaq-agung.api.onfinality.io/public")
	viper.SetDefault("chain.chain_id", 9990)
	viper.SetDefault("chain.owner_derivation_path", "m/44'/60'/0'/0/0")
	viper.SetDefault("chain.confirm_timeout", 60*time.Second)
	viper.SetDefault("chain.poll_interval", 2*time.Second)

	viper.SetDefault("nonce.backend", "memory")
	viper.SetDefault("nonce.base", 0)

	viper.SetDefault("getreal.timeout", 10*time.Second)

	viper.SetDefault("did.method", "peaq")
	viper.SetDefault("did.name", "peaq")
	viper.SetDefault("did.require_owner_binding", false)
}
