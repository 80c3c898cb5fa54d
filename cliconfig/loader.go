// Package cliconfig provides a configuration file loader.
//
// It is intended for internal use by kubegate only.
package cliconfig

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kubegate/kubegate/internal/osutil"
	"github.com/kubegate/kubegate/logger"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

// Loader populates a config struct from a urfave/cli context and an optional
// config file. Fields are driven by struct tags:
//
//	cli:"name"                      bind to the flag --name, or "arg:0" for a
//	                                positional argument, or "arg:*" for all of
//	                                them
//	env:"NAME"                      fallback for absent positional arguments
//	normalize:"filepath"            tilde-expand the value ("commandpath" and
//	                                "list" are the other normalizations)
//	validate:"required"             reject the zero value ("file-exists" is
//	                                the other rule)
//	deprecated-and-renamed-to:"F"   move the value to field F with a warning
//	deprecated:"message"            warn with message when set
//	label:"text"                    what validation errors call the field
type Loader struct {
	// The context that is passed when using a urfave/cli action
	CLI *cli.Context

	// The struct that the config values will be loaded into
	Config any

	// The logger used
	Logger logger.Logger

	// A slice of paths to files that should be used as config files
	DefaultConfigFilePaths []string

	// The file that was used when loading this configuration
	File *File
}

// Matches "arg:index" (specific non-flag arg) or "arg:*" (all non-flag args).
var argCLINameRE = regexp.MustCompile(`arg:(\d+|\*)`)

// Load populates l.Config and returns any deprecation warnings. Values are
// resolved flag by flag: an explicitly set flag or EnvVar wins, then the
// config file, then the flag's default.
func (l *Loader) Load() (warnings []string, err error) {
	if err := l.findConfigFile(); err != nil {
		return nil, err
	}

	fields, _ := reflections.FieldsDeep(l.Config)
	for _, fieldName := range fields {
		fieldWarnings, err := l.applyField(fieldName)
		warnings = append(warnings, fieldWarnings...)
		if err != nil {
			return warnings, err
		}
	}

	return warnings, nil
}

// findConfigFile resolves which config file to read, if any. A path given
// with --config must exist; the default paths are each tried in turn.
func (l *Loader) findConfigFile() error {
	if path := l.CLI.String("config"); path != "" {
		file := File{Path: path}
		if !file.Exists() {
			absolutePath, _ := file.AbsolutePath()
			return fmt.Errorf("a configuration file could not be found at: %q", absolutePath)
		}
		l.File = &file
	} else {
		for _, path := range l.DefaultConfigFilePaths {
			file := File{Path: path}
			if file.Exists() {
				l.File = &file
				break
			}
		}
	}

	if l.File == nil {
		return nil
	}
	if err := l.File.Load(); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	return nil
}

// applyField runs the full tag pipeline for one field: bind, normalize,
// deprecations, validations.
func (l *Loader) applyField(fieldName string) (warnings []string, err error) {
	cliName := l.tag(fieldName, "cli")
	if cliName != "" {
		if err := l.setFieldValueFromCLI(fieldName, cliName); err != nil {
			return nil, fmt.Errorf("setting config field %s: %w", fieldName, err)
		}
	}

	if normalization := l.tag(fieldName, "normalize"); normalization != "" {
		if err := l.normalizeField(fieldName, normalization); err != nil {
			return nil, fmt.Errorf("normalizing config field %s: %w", fieldName, err)
		}
	}

	if newFieldName := l.tag(fieldName, "deprecated-and-renamed-to"); newFieldName != "" && !l.fieldValueIsEmpty(fieldName) {
		newCLIName := l.tag(newFieldName, "cli")
		if newCLIName != "" {
			warnings = append(warnings,
				fmt.Sprintf("The config option `%s` has been renamed to `%s`. Please update your configuration.", cliName, newCLIName))
		}

		value, _ := reflections.GetField(l.Config, fieldName)

		// Setting both the old and the new name is ambiguous, so refuse.
		if !l.fieldValueIsEmpty(newFieldName) {
			newValue, _ := reflections.GetField(l.Config, newFieldName)
			return warnings, fmt.Errorf("couldn't set config option `%s=%v`, `%s=%v` has already been set", cliName, value, newCLIName, newValue)
		}

		if value != nil {
			if err := reflections.SetField(l.Config, newFieldName, value); err != nil {
				return warnings, fmt.Errorf("setting field %q to value %q: %w", newFieldName, value, err)
			}
		}
	}

	if deprecation := l.tag(fieldName, "deprecated"); deprecation != "" && !l.fieldValueIsEmpty(fieldName) {
		warnings = append(warnings,
			fmt.Sprintf("The config option `%s` has been deprecated: %s", cliName, deprecation))
	}

	if rules := l.tag(fieldName, "validate"); rules != "" {
		label := l.tag(fieldName, "label")
		if label == "" {
			label = cliName
		}
		if label == "" {
			label = fieldName
		}
		if err := l.validateField(fieldName, label, rules); err != nil {
			return warnings, err
		}
	}

	return warnings, nil
}

func (l Loader) tag(fieldName, tagName string) string {
	value, _ := reflections.GetFieldTag(l.Config, fieldName, tagName)
	return value
}

func (l Loader) setFieldValueFromCLI(fieldName, cliName string) error {
	fieldKind, err := reflections.GetFieldKind(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the kind of struct field %q: %w", fieldName, err)
	}
	fieldType, err := reflections.GetFieldType(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the type of struct field %q: %w", fieldName, err)
	}

	var value any
	if argMatch := argCLINameRE.FindStringSubmatch(cliName); argMatch != nil {
		value, err = l.argValue(fieldName, argMatch[1])
	} else {
		value, err = l.flagValue(cliName, fieldKind, fieldType)
	}
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	if err := reflections.SetField(l.Config, fieldName, value); err != nil {
		return fmt.Errorf("setting value field %q to %q: %w", fieldName, value, err)
	}
	return nil
}

// argValue reads a positional argument, one position ("arg:0") or all of them
// ("arg:*"). An absent position falls back to the field's env tag.
func (l Loader) argValue(fieldName, position string) (any, error) {
	if position == "*" {
		return []string(l.CLI.Args()), nil
	}

	index, err := strconv.Atoi(position)
	if err != nil {
		return nil, fmt.Errorf("converting string to int: %w", err)
	}
	if args := l.CLI.Args(); len(args) > index {
		return args[index], nil
	}

	if envName := l.tag(fieldName, "env"); envName != "" {
		if envValue, envSet := os.LookupEnv(envName); envSet {
			return envValue, nil
		}
	}
	return nil, nil
}

// flagValue resolves a flag. The config file provides the value unless the
// flag was set explicitly (on the command line or through its EnvVar), and
// the flag's default applies when the file has nothing either.
func (l Loader) flagValue(cliName string, fieldKind reflect.Kind, fieldType string) (any, error) {
	if l.File != nil && !l.cliValueIsSet(cliName) {
		if raw, ok := l.File.Config[cliName]; ok {
			return l.valueFromFile(raw, fieldKind, fieldType)
		}
	}

	switch fieldKind {
	case reflect.String:
		return l.CLI.String(cliName), nil
	case reflect.Slice:
		return l.CLI.StringSlice(cliName), nil
	case reflect.Bool:
		return l.CLI.Bool(cliName), nil
	case reflect.Int:
		return l.CLI.Int(cliName), nil
	case reflect.Int64:
		switch fieldType {
		case "int64":
			return l.CLI.Int64(cliName), nil
		case "time.Duration":
			return l.CLI.Duration(cliName), nil
		default:
			return nil, fmt.Errorf("unsupported field type %s for kind int64", fieldType)
		}
	case reflect.Struct:
		if opt, ok := l.CLI.Generic(cliName).(*OptionalString); ok {
			return *opt, nil
		}
		return nil, fmt.Errorf("unable to handle type: %s", fieldType)
	default:
		return nil, fmt.Errorf("unable to handle type: %s", fieldKind)
	}
}

// valueFromFile converts a raw config file string to the field's type.
func (l Loader) valueFromFile(raw string, fieldKind reflect.Kind, fieldType string) (any, error) {
	switch fieldKind {
	case reflect.String:
		return raw, nil
	case reflect.Slice:
		return strings.Split(raw, ","), nil
	case reflect.Bool:
		value, _ := strconv.ParseBool(raw)
		return value, nil
	case reflect.Int:
		value, _ := strconv.Atoi(raw)
		return value, nil
	case reflect.Int64:
		switch fieldType {
		case "int64":
			value, _ := strconv.ParseInt(raw, 10, 64)
			return value, nil
		case "time.Duration":
			value, _ := time.ParseDuration(raw)
			return value, nil
		default:
			return nil, fmt.Errorf("unsupported field type %s for kind int64", fieldType)
		}
	case reflect.Struct:
		if fieldType != "cliconfig.OptionalString" {
			return nil, fmt.Errorf("unable to convert string to type %s", fieldType)
		}
		var opt OptionalString
		_ = opt.Set(raw) // Set never fails
		return opt, nil
	default:
		return nil, fmt.Errorf("unable to convert string to type %s", fieldKind)
	}
}

func (l Loader) Errorf(format string, v ...any) error {
	suffix := fmt.Sprintf(" See: `%s %s --help`", l.CLI.App.Name, l.CLI.Command.Name)

	return fmt.Errorf(format+suffix, v...)
}

func (l Loader) cliValueIsSet(cliName string) bool {
	if l.CLI.IsSet(cliName) {
		return true
	}

	// cli.Context#IsSet only checks to see if the command was set via the cli,
	// not via the environment. So here we do some hacks to find out the name of
	// the EnvVar, and return true if it was set.
	for _, flag := range l.CLI.Command.Flags {
		name, _ := reflections.GetField(flag, "Name")
		if name != cliName {
			continue
		}
		envVar, _ := reflections.GetField(flag, "EnvVar")
		envVarStr, ok := envVar.(string)
		if !ok || envVarStr == "" {
			continue
		}
		return os.Getenv(strings.TrimSpace(envVarStr)) != ""
	}

	return false
}

// fieldValueIsEmpty reports whether the field still holds its zero value. An
// allocated but empty slice counts as empty too.
func (l Loader) fieldValueIsEmpty(fieldName string) bool {
	value, _ := reflections.GetField(l.Config, fieldName)
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice {
		return v.Len() == 0
	}
	return v.IsZero()
}

func (l Loader) validateField(fieldName, label, validationRules string) error {
	for rule := range strings.SplitSeq(validationRules, ",") {
		switch rule {
		case "required":
			if l.fieldValueIsEmpty(fieldName) {
				return l.Errorf("Missing %s.", label)
			}

		case "file-exists":
			value, _ := reflections.GetField(l.Config, fieldName)
			path, ok := value.(string)
			if !ok {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("couldn't find %s located at %s: %w", label, path, err)
			}

		default:
			return fmt.Errorf("unknown config validation rule %q", rule)
		}
	}

	return nil
}

func (l Loader) normalizeField(fieldName, normalization string) error {
	switch normalization {
	case "filepath":
		return l.normalizeStringField(fieldName, normalization, osutil.NormalizeFilePath)

	case "commandpath":
		return l.normalizeStringField(fieldName, normalization, osutil.NormalizeCommand)

	case "list":
		value, _ := reflections.GetField(l.Config, fieldName)
		values, ok := value.([]string)
		if !ok {
			return fmt.Errorf("list normalization only works on slice fields")
		}

		// Values may each carry several comma-separated items.
		normalized := []string{}
		for _, value := range values {
			for item := range strings.SplitSeq(value, ",") {
				if item == "" {
					continue
				}
				normalized = append(normalized, strings.TrimSpace(item))
			}
		}
		return reflections.SetField(l.Config, fieldName, normalized)

	default:
		return fmt.Errorf("unknown normalization %q", normalization)
	}
}

func (l Loader) normalizeStringField(fieldName, normalization string, normalize func(string) (string, error)) error {
	value, _ := reflections.GetField(l.Config, fieldName)
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%s normalization only works on string fields", normalization)
	}

	normalized, err := normalize(s)
	if err != nil {
		return err
	}
	return reflections.SetField(l.Config, fieldName, normalized)
}
