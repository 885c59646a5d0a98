// Package logger는 서비스 공통 zap 로거와 프레임워크 어댑터(echo, gorm, gRPC)를 제공합니다.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 로거 설정
type Config struct {
	// Level 로그 레벨 (debug, info, warn, error, dpanic, panic, fatal)
	Level string `yaml:"level" env:"LEVEL"`
	// Format 로그 포맷 (json, console)
	Format string `yaml:"format" env:"FORMAT"`
	// Output 로그 출력 대상 (stdout, stderr, file)
	Output string `yaml:"output" env:"OUTPUT"`
	// FilePath Output이 file일 때의 경로
	FilePath string `yaml:"file_path" env:"FILE_PATH"`
	// Development 개발 모드 여부
	Development bool `yaml:"development" env:"DEVELOPMENT"`
}

// NewZapLogger 새로운 zap 로거를 생성합니다.
// service가 비어있지 않으면 모든 로그에 service 필드를 붙입니다.
func NewZapLogger(config Config, service string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "@timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.LevelKey = "log.level"
	encoderConfig.MessageKey = "message"
	encoderConfig.CallerKey = "caller"
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	if config.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := openOutput(config)
	if err != nil {
		return nil, err
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if config.Development {
		opts = append(opts, zap.AddCaller())
	}

	logger := zap.New(zapcore.NewCore(encoder, writeSyncer, zap.NewAtomicLevelAt(level)), opts...)
	if service != "" {
		logger = logger.With(zap.String("service", service))
	}
	return logger, nil
}

func openOutput(config Config) (zapcore.WriteSyncer, error) {
	switch config.Output {
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "file":
		if config.FilePath == "" {
			return zapcore.AddSync(os.Stdout), nil
		}
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(file), nil
	default:
		return zapcore.AddSync(os.Stdout), nil
	}
}

// DefaultZapLogger 기본 설정(info, json, stdout)으로 로거를 생성합니다.
func DefaultZapLogger() *zap.Logger {
	logger, err := NewZapLogger(Config{Level: "info", Format: "json", Output: "stdout"}, "")
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
