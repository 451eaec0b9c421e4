package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Uploads struct {
	Directory string `yaml:"directory"`
}

type Classifier struct {
	Type         string `yaml:"type"`
	ModelPath    string `yaml:"modelPath"`
	MetadataPath string `yaml:"metadataPath"`
}

type ServiceConfig struct {
	Port       int        `yaml:"port"`
	Database   Database   `yaml:"database"`
	Uploads    Uploads    `yaml:"uploads"`
	Classifier Classifier `yaml:"classifier"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *ServiceConfig) {
	if config.Port == 0 {
		config.Port = 5000
	}
	if config.Database.Type == "" {
		config.Database.Type = "sqlite"
	}
	if config.Database.ConnectionString == "" {
		config.Database.ConnectionString = "emotion_detection.db"
	}
	if config.Uploads.Directory == "" {
		config.Uploads.Directory = "static/uploads"
	}
	if config.Classifier.Type == "" {
		config.Classifier.Type = "random"
	}
}

func validateConfig(config *ServiceConfig) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port %d out of range", config.Port)
	}
	if config.Classifier.Type == "onnx" {
		if config.Classifier.ModelPath == "" || config.Classifier.MetadataPath == "" {
			return fmt.Errorf("onnx classifier requires modelPath and metadataPath")
		}
	}
	return nil
}
