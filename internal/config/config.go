package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the marketplace.
type Config struct {
	Port     int
	LogLevel string
	DBPath   string

	// Shop region: the slot grid the scanner discovers at startup.
	RegionX  int
	RegionY  int
	SlotRows int
	SlotCols int

	// Soft caps. Elevated callers bypass both.
	SellerCap int
	QueueCap  int

	// AdminToken authorizes elevated operations. Empty disables them.
	AdminToken string

	// RenderWebhookURL receives slot render events; empty falls back to
	// log-only rendering.
	RenderWebhookURL string
	RenderTimeout    time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	dbPath := getStr("DB_PATH", "survmarket.db")

	regionX, err := getInt("REGION_X", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REGION_X: %w", err)
	}
	regionY, err := getInt("REGION_Y", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REGION_Y: %w", err)
	}
	slotRows, err := getInt("SLOT_ROWS", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid SLOT_ROWS: %w", err)
	}
	slotCols, err := getInt("SLOT_COLS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid SLOT_COLS: %w", err)
	}
	if slotRows < 0 || slotCols < 0 {
		return nil, fmt.Errorf("SLOT_ROWS and SLOT_COLS must be non-negative")
	}

	sellerCap, err := getInt("SELLER_CAP", 6)
	if err != nil {
		return nil, fmt.Errorf("invalid SELLER_CAP: %w", err)
	}
	if sellerCap < 1 {
		return nil, fmt.Errorf("SELLER_CAP must be at least 1")
	}
	queueCap, err := getInt("QUEUE_CAP", 15)
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_CAP: %w", err)
	}
	if queueCap < 0 {
		return nil, fmt.Errorf("QUEUE_CAP must be non-negative")
	}

	adminToken := getStr("ADMIN_TOKEN", "")

	renderURL := getStr("RENDER_WEBHOOK_URL", "")
	renderTimeout, err := getDuration("RENDER_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid RENDER_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}
	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}
	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		DBPath:           dbPath,
		RegionX:          regionX,
		RegionY:          regionY,
		SlotRows:         slotRows,
		SlotCols:         slotCols,
		SellerCap:        sellerCap,
		QueueCap:         queueCap,
		AdminToken:       adminToken,
		RenderWebhookURL: renderURL,
		RenderTimeout:    renderTimeout,
		ReadTimeout:      readTimeout,
		WriteTimeout:     writeTimeout,
		IdleTimeout:      idleTimeout,
		ShutdownTimeout:  shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
