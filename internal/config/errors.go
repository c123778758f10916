package config

import "errors"

// Error variables for configuration loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrEnvFileInvalid     = errors.New("invalid .env file")
	ErrKeyEmpty           = errors.New("key cannot be empty")
	ErrDirEmpty           = errors.New("dir cannot be empty")
	ErrLogLevelInvalid    = errors.New("invalid log level")
)
