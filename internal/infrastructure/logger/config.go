package logger

import (
	"os"
	"runtime"
	"strings"
)

type Config struct {
	Level      string            `mapstructure:"level"       json:"level"`
	Format     string            `mapstructure:"format"      json:"format"` // json, text, console
	Output     string            `mapstructure:"output"      json:"output"` // stdout, stderr, file
	FilePath   string            `mapstructure:"file_path"   json:"file_path"`
	MaxSize    int               `mapstructure:"max_size"    json:"max_size"` // MB
	MaxBackups int               `mapstructure:"max_backups" json:"max_backups"`
	MaxAge     int               `mapstructure:"max_age"     json:"max_age"` // days
	Compress   bool              `mapstructure:"compress"    json:"compress"`
	Fields     map[string]string `mapstructure:"fields"      json:"fields"` // static fields for k8s/docker
}

// ParseLevel maps a config string onto a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func GetDefaultFields() Fields {
	hostname, _ := os.Hostname()

	fields := Fields{
		"hostname":   hostname,
		"go_version": runtime.Version(),
	}

	// Kubernetes fields
	if namespace := os.Getenv("KUBERNETES_NAMESPACE"); namespace != "" {
		fields["k8s_namespace"] = namespace
	}
	if podName := os.Getenv("KUBERNETES_POD_NAME"); podName != "" {
		fields["k8s_pod"] = podName
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		fields["environment"] = env
	}

	return fields
}

func NewDefaultConfig() *Config {
	config := &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Fields:     make(map[string]string),
	}

	for k, v := range GetDefaultFields() {
		if str, ok := v.(string); ok {
			config.Fields[k] = str
		}
	}

	return config
}
