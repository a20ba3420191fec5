// Package config parses Hull's CLI surface.
//
// Grounded on core/cmd/helm/verify_cmd.go and conform.go: a manual
// flag.NewFlagSet with explicit Parse and custom flag.Value types,
// rather than a subcommand framework (the teacher itself hand-rolls
// this with stdlib flag; Hull's surface is a flat flag set per
// spec.md §6, not a subcommand tree, so cobra/pflag do not apply).
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// validLogLevels enumerates the recognized -l values.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true,
}

// conventionalEntryPoints are probed when no positional argument is given.
var conventionalEntryPoints = []string{"app.hull", "main.hull"}

// Config holds the fully parsed, validated CLI configuration.
type Config struct {
	Port             int
	Bind             string
	DBPath           string
	HeapLimit        int64
	ProcLimit        int64
	StackLimit       int64
	LogLevel         string
	EntryPoint       string
	VerifySigKeyPath string
	PrintUnveilTable bool
	ShowHelp         bool
}

// Size is a flag.Value accepting an integer with an optional k|m|g
// suffix (case-insensitive), per spec.md §6.
type Size struct {
	Bytes int64
	set   bool
}

func (s *Size) String() string {
	if !s.set {
		return ""
	}
	return strconv.FormatInt(s.Bytes, 10)
}

func (s *Size) Set(raw string) error {
	n, err := ParseSize(raw)
	if err != nil {
		return err
	}
	s.Bytes = n
	s.set = true
	return nil
}

// ParseSize parses an integer with an optional k|m|g suffix into bytes.
func ParseSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty size value")
	}
	mult := int64(1)
	suffix := raw[len(raw)-1]
	numPart := raw
	switch suffix {
	case 'k', 'K':
		mult = 1024
		numPart = raw[:len(raw)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		numPart = raw[:len(raw)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		numPart = raw[:len(raw)-1]
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", raw)
	}
	return n * mult, nil
}

// Parse parses args (excluding argv[0]) into a Config, writing usage
// output to stderr. Returns an error for malformed flags; ShowHelp is
// set (with nil error) when -h was passed.
func Parse(args []string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("hull", flag.ContinueOnError)
	fs.SetOutput(stderr)

	port := fs.Int("p", 3000, "port (1-65535)")
	bind := fs.String("b", "127.0.0.1", "bind address")
	dbPath := fs.String("d", "hull.db", "database path")
	logLevel := fs.String("l", "info", "log level: trace|debug|info|warn|error|fatal")

	var heapLimit, procLimit, stackLimit Size
	fs.Var(&heapLimit, "m", "heap limit, accepts k|m|g suffix")
	fs.Var(&procLimit, "M", "process memory limit, accepts k|m|g suffix")
	fs.Var(&stackLimit, "s", "stack limit, accepts k|m|g suffix")

	verifySig := fs.String("verify-sig", "", "developer public key path to verify the signed app against (default: developer.pub beside the entry point)")
	printUnveilTable := fs.Bool("print-unveil-table", false, "print the tool-mode unveil path table for the entry point's manifest and exit")
	help := fs.Bool("h", false, "print usage and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *help {
		return &Config{ShowHelp: true}, nil
	}

	if *port < 1 || *port > 65535 {
		return nil, fmt.Errorf("invalid argument: port out of range: %d", *port)
	}
	if !validLogLevels[strings.ToLower(*logLevel)] {
		return nil, fmt.Errorf("invalid argument: unknown log level %q", *logLevel)
	}

	entry := ""
	if rest := fs.Args(); len(rest) > 0 {
		entry = rest[0]
	} else {
		entry = detectEntryPoint()
	}
	if entry == "" {
		return nil, fmt.Errorf("invalid argument: no entry point given and none of %v found", conventionalEntryPoints)
	}

	return &Config{
		Port:             *port,
		Bind:             *bind,
		DBPath:           *dbPath,
		HeapLimit:        heapLimit.Bytes,
		ProcLimit:        procLimit.Bytes,
		StackLimit:       stackLimit.Bytes,
		LogLevel:         strings.ToLower(*logLevel),
		EntryPoint:       entry,
		VerifySigKeyPath: *verifySig,
		PrintUnveilTable: *printUnveilTable,
	}, nil
}

func detectEntryPoint() string {
	for _, name := range conventionalEntryPoints {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Usage writes the flag usage text for -h.
func Usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: hull [-p port] [-b bind] [-d db-path] [-m heap-limit] [-M proc-limit] [-s stack-limit] [-l level] [--verify-sig key-path] [--print-unveil-table] [entrypoint]")
}
