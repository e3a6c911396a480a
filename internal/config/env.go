package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
)

type Config struct {
	ChallengeGRPCPort string
	ChallengeHTTPPort string

	DBDriver   string
	PsqlURL    string
	SQLitePath string

	MongoURL string
	MongoDB  string

	RedisURL      string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	LedgerURL     string
	LedgerToken   string
	LedgerTimeout time.Duration
	LedgerRetries int

	SchedulerTick     time.Duration
	ReconcileInterval time.Duration
	ShutdownTimeout   time.Duration
	TickConcurrency   int

	PeriodLength   time.Duration
	TasksPerPeriod int
	PointsPerTask  int
	PlatformFeeBP  int64
	AutoDistribute bool

	LogLevel     string
	LogFile      string
	ErrorLogFile string
	LogConsole   bool
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	config := Config{
		ChallengeGRPCPort: getEnv("CHALLENGEGRPCPORT", "50057"),
		ChallengeHTTPPort: getEnv("CHALLENGEHTTPPORT", "3333"),

		DBDriver:   getEnv("DBDRIVER", "postgres"),
		PsqlURL:    getEnv("PSQLURL", "host=localhost port=5432 user=admin password=password dbname=challenges sslmode=disable"),
		SQLitePath: getEnv("SQLITEPATH", "challenges.db"),

		MongoURL: getEnv("MONGOURL", ""),
		MongoDB:  getEnv("MONGODB", "challenges"),

		RedisURL:      getEnv("REDISURL", ""),
		RedisPassword: getEnv("REDISPASSWORD", ""),
		RedisDB:       getEnvInt("REDISDB", 0),
		LockTTL:       getEnvDuration("LOCKTTL", 2*time.Minute),

		LedgerURL:     getEnv("LEDGERURL", ""),
		LedgerToken:   getEnv("LEDGERTOKEN", ""),
		LedgerTimeout: getEnvDuration("LEDGERTIMEOUT", 15*time.Second),
		LedgerRetries: getEnvInt("LEDGERRETRIES", 3),

		SchedulerTick:     getEnvDuration("SCHEDULERTICK", time.Hour),
		ReconcileInterval: getEnvDuration("RECONCILEINTERVAL", 30*time.Minute),
		ShutdownTimeout:   getEnvDuration("SHUTDOWNTIMEOUT", 30*time.Second),
		TickConcurrency:   getEnvInt("TICKCONCURRENCY", 8),

		PeriodLength:   getEnvDuration("PERIODLENGTH", 7*24*time.Hour),
		TasksPerPeriod: getEnvInt("TASKSPERPERIOD", 5),
		PointsPerTask:  getEnvInt("POINTSPERTASK", 10),
		PlatformFeeBP:  getEnvInt64("PLATFORMFEEBP", 500),
		AutoDistribute: getEnvBool("AUTODISTRIBUTE", true),

		LogLevel:     getEnv("LOGLEVEL", "info"),
		LogFile:      getEnv("LOGFILE", "logs/challenge-service.log"),
		ErrorLogFile: getEnv("ERRORLOGFILE", "logs/challenge-service-error.log"),
		LogConsole:   getEnvBool("LOGCONSOLE", true),
	}

	return config
}

// Validate rejects configurations the engines cannot run with.
func (c Config) Validate() error {
	if c.PeriodLength <= 0 {
		return apperr.Validation("config", "PERIODLENGTH must be positive, got %s", c.PeriodLength)
	}
	if c.SchedulerTick <= 0 {
		return apperr.Validation("config", "SCHEDULERTICK must be positive, got %s", c.SchedulerTick)
	}
	if c.LockTTL <= 0 {
		return apperr.Validation("config", "LOCKTTL must be positive, got %s", c.LockTTL)
	}
	if c.LedgerTimeout <= 0 {
		return apperr.Validation("config", "LEDGERTIMEOUT must be positive, got %s", c.LedgerTimeout)
	}
	if c.PlatformFeeBP < 0 || c.PlatformFeeBP >= 10000 {
		return apperr.Validation("config", "PLATFORMFEEBP must be in [0, 10000), got %d", c.PlatformFeeBP)
	}
	if c.TasksPerPeriod <= 0 {
		return apperr.Validation("config", "TASKSPERPERIOD must be positive, got %d", c.TasksPerPeriod)
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return apperr.Validation("config", "DBDRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
