// Package ui цветной вывод CLI
package ui

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"fieldsync/internal/domain/record"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	dimColor  = color.New(color.FgHiBlack)
)

func Success(format string, args ...any) {
	okColor.Printf("✓ "+format+"\n", args...)
}

func Warn(format string, args ...any) {
	warnColor.Printf("⚠️  "+format+"\n", args...)
}

func Fail(format string, args ...any) {
	failColor.Printf("✗ "+format+"\n", args...)
}

func Dim(format string, args ...any) {
	dimColor.Printf(format+"\n", args...)
}

// State раскрашенное состояние записи
func State(rec record.Record) string {
	switch rec.State() {
	case record.StateSynced:
		return okColor.Sprint(rec.State())
	case record.StateFailedRetryable:
		return failColor.Sprint(rec.State())
	default:
		return warnColor.Sprint(rec.State())
	}
}

// JSON печатает значение с отступами.
func JSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("ошибка вывода JSON: %w", err)
	}
	return nil
}
