package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/torosent/formwire/internal/config"
	"github.com/torosent/formwire/internal/formdata"
)

// filePrefix marks a --field value as a path whose contents are uploaded.
const filePrefix = "@"

// buildFields merges the fields file with --field values. Flag values win and
// are plain strings unless they start with filePrefix.
func buildFields(cfg *config.Config) (map[string]formdata.Value, error) {
	raw, err := config.LoadFields(cfg.FieldsFile)
	if err != nil {
		return nil, err
	}
	values, err := formdata.FromAnyMap(raw)
	if err != nil {
		return nil, fmt.Errorf("fields file: %w", err)
	}

	for name, value := range cfg.Fields {
		if path, ok := strings.CutPrefix(value, filePrefix); ok && path != "" {
			file, err := readFileField(path)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			values[name] = file
			continue
		}
		values[name] = formdata.String(value)
	}
	return values, nil
}

func readFileField(path string) (formdata.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return formdata.Value{}, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return formdata.Binary(filepath.Base(path), contentType, data), nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	var zcfg zap.Config
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
