package config

import (
	"os"
	"strconv"
	"strings"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Redis         RedisConfig         `json:"redis"`
	Kafka         KafkaConfig         `json:"kafka"`
	Logger        LoggerConfig        `json:"logger"`
	Seize         SeizeConfig         `json:"seize"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
	UserDirectory UserDirectoryConfig `json:"user_directory"`
	Snowflake     SnowflakeConfig     `json:"snowflake"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	DBName       string `json:"db_name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka.
// Имя топика совпадает с именем очереди, по которому регистрируется обработчик.
type Topics struct {
	SeizeSync string `json:"seize_sync"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// SeizeConfig описывает параметры обработки захвата купонов и кеша
type SeizeConfig struct {
	QueueNum          int    `json:"queue_num"`           // потолок параллельных воркеров
	KeepAliveSeconds  int    `json:"keep_alive_seconds"`  // простой лишнего воркера до остановки
	StockShards       int    `json:"stock_shards"`        // число хешей-счётчиков остатка
	PreHeatWindowDays int    `json:"pre_heat_window_days"`
	ActivityListKey   string `json:"activity_list_key"`
	StockKeyPrefix    string `json:"stock_key_prefix"`
}

// SchedulerConfig хранит интервалы периодических задач
type SchedulerConfig struct {
	StatusSweepSeconds int  `json:"status_sweep_seconds"`
	PreHeatSeconds     int  `json:"pre_heat_seconds"`
	RunOnStart         bool `json:"run_on_start"`
}

// UserDirectoryConfig описывает удалённый справочник пользователей
type UserDirectoryConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SnowflakeConfig задаёт номер узла генератора идентификаторов
type SnowflakeConfig struct {
	NodeID int64 `json:"node_id"`
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "market_user"),
			Password:     getEnv("DB_PASSWORD", "market_pass"),
			DBName:       getEnv("DB_NAME", "market"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "market-service"),
			Topics: Topics{
				SeizeSync: getEnv("KAFKA_TOPIC_SEIZE_SYNC", "coupon-seize-sync"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Seize: SeizeConfig{
			QueueNum:          getEnvAsInt("SEIZE_QUEUE_NUM", 10),
			KeepAliveSeconds:  getEnvAsInt("SEIZE_KEEP_ALIVE_SECONDS", 120),
			StockShards:       getEnvAsInt("SEIZE_STOCK_SHARDS", 10),
			PreHeatWindowDays: getEnvAsInt("SEIZE_PRE_HEAT_WINDOW_DAYS", 30),
			ActivityListKey:   getEnv("SEIZE_ACTIVITY_LIST_KEY", "ACTIVITY:CACHE:LIST"),
			StockKeyPrefix:    getEnv("SEIZE_STOCK_KEY_PREFIX", "COUPON:RESOURCE:STOCK"),
		},
		Scheduler: SchedulerConfig{
			StatusSweepSeconds: getEnvAsInt("SCHEDULER_STATUS_SWEEP_SECONDS", 60),
			PreHeatSeconds:     getEnvAsInt("SCHEDULER_PRE_HEAT_SECONDS", 60),
			RunOnStart:         getEnvAsBool("SCHEDULER_RUN_ON_START", true),
		},
		UserDirectory: UserDirectoryConfig{
			BaseURL:        getEnv("USER_DIRECTORY_BASE_URL", "http://localhost:8081"),
			TimeoutSeconds: getEnvAsInt("USER_DIRECTORY_TIMEOUT_SECONDS", 3),
		},
		Snowflake: SnowflakeConfig{
			NodeID: int64(getEnvAsInt("SNOWFLAKE_NODE_ID", 1)),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}
