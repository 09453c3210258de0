package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SpongeData-cz/gopst/record"
)

// TypeMask selects which record kinds the export emits. Contacts are
// accepted by the parser for compatibility but are never written out.
type TypeMask struct {
	Email       bool
	Appointment bool
	Journal     bool
	Contact     bool
}

// ParseTypeMask reads a comma-separated kind list ("email,journal").
func ParseTypeMask(spec string) (TypeMask, error) {
	var mask TypeMask
	for _, part := range strings.Split(spec, ",") {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "":
		case "email":
			mask.Email = true
		case "appointment":
			mask.Appointment = true
		case "journal":
			mask.Journal = true
		case "contact":
			mask.Contact = true
		default:
			return TypeMask{}, fmt.Errorf("unknown record type %q", strings.TrimSpace(part))
		}
	}
	return mask, nil
}

// Config captures all command-line options required to run an export.
type Config struct {
	PstPath              string
	OutputDir            string
	Mode                 record.Mode
	Types                TypeMask
	PreferUTF8           bool
	SaveRTFBody          bool
	AcceptableExtensions []string
	StateDir             string
	DryRun               bool
	LogLevel             string
	LogDir               string
	IncludeSubject       []string
	IncludeBody          []string
	ExcludeSubject       []string
	ExcludeBody          []string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("pst", "", "Path to the .pst file to export")
	flags.StringP("output", "o", ".", "Output directory for the exported files")
	flags.String("mode", "normal", "Export layout: normal, kmail, recurse or separate")
	flags.String("types", "email,appointment,journal", "Comma-separated record types to export")
	flags.Bool("prefer-utf8", false, "Force utf-8 on exported message bodies")
	flags.Bool("save-rtf", false, "Attach the RTF body of each message as rtf-body.rtf")
	flags.StringArray("accept-ext", nil, "Attachment extension allow-list (default: all extensions)")
	flags.String("state-dir", defaultStateDir, "Directory for incremental export state files")
	flags.Bool("dry-run", false, "Walk and classify without writing any output")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (default: log to stdout only)")
	flags.StringArray("include-subject", nil, "Regex allow-list applied to record subjects (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to record bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-subject", nil, "Regex block-list applied to record subjects (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to record bodies (mutually exclusive with include flags)")

	return cmd.MarkFlagRequired("pst")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	pstPath, err := flags.GetString("pst")
	if err != nil {
		return Config{}, err
	}
	outputDir, err := flags.GetString("output")
	if err != nil {
		return Config{}, err
	}
	modeName, err := flags.GetString("mode")
	if err != nil {
		return Config{}, err
	}
	typeSpec, err := flags.GetString("types")
	if err != nil {
		return Config{}, err
	}
	preferUTF8, err := flags.GetBool("prefer-utf8")
	if err != nil {
		return Config{}, err
	}
	saveRTF, err := flags.GetBool("save-rtf")
	if err != nil {
		return Config{}, err
	}
	acceptExt, err := flags.GetStringArray("accept-ext")
	if err != nil {
		return Config{}, err
	}
	stateDir, err := flags.GetString("state-dir")
	if err != nil {
		return Config{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	includeSubject, err := flags.GetStringArray("include-subject")
	if err != nil {
		return Config{}, err
	}
	includeBody, err := flags.GetStringArray("include-body")
	if err != nil {
		return Config{}, err
	}
	excludeSubject, err := flags.GetStringArray("exclude-subject")
	if err != nil {
		return Config{}, err
	}
	excludeBody, err := flags.GetStringArray("exclude-body")
	if err != nil {
		return Config{}, err
	}

	mode, err := record.ParseMode(strings.ToLower(modeName))
	if err != nil {
		return Config{}, fmt.Errorf("invalid --mode: %w", err)
	}
	types, err := ParseTypeMask(typeSpec)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --types: %w", err)
	}

	if stateDir == "" {
		stateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		PstPath:              pstPath,
		OutputDir:            filepath.Clean(outputDir),
		Mode:                 mode,
		Types:                types,
		PreferUTF8:           preferUTF8,
		SaveRTFBody:          saveRTF,
		AcceptableExtensions: acceptExt,
		StateDir:             filepath.Clean(stateDir),
		DryRun:               dryRun,
		LogLevel:             logLevel,
		LogDir:               logDir,
		IncludeSubject:       includeSubject,
		IncludeBody:          includeBody,
		ExcludeSubject:       excludeSubject,
		ExcludeBody:          excludeBody,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.PstPath == "" {
		return fmt.Errorf("--pst is required")
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("--output must not be empty")
	}
	includeActive := len(cfg.IncludeSubject) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeSubject) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gopst", "state"), nil
}
