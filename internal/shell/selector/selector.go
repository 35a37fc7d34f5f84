// Package selector resolves named deployment environments and loads their
// KEY=VALUE files into the shared environment record.
package selector

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/bchexplorer/deployctl/internal/core/envfile"
	"github.com/bchexplorer/deployctl/internal/core/environment"
	"github.com/spf13/afero"
)

// ErrUnknownEnvironment is returned for a name with no registered file.
var ErrUnknownEnvironment = errors.New("unknown environment")

// DefaultFiles maps the stock environment names to their files.
func DefaultFiles() map[string]string {
	return map[string]string{
		"mainnet": ".env.mainnet",
		"chipnet": ".env.chipnet",
	}
}

// DefaultEnvironment is selected by deploy when nothing was selected.
const DefaultEnvironment = "mainnet"

// Selector loads environment files into a Config.
type Selector struct {
	fs          afero.Fs
	cfg         *environment.Config
	files       map[string]string
	defaultName string
	logger      *slog.Logger
}

// New creates a selector. A nil files map uses DefaultFiles and an empty
// defaultName uses DefaultEnvironment.
func New(fsys afero.Fs, cfg *environment.Config, files map[string]string, defaultName string, logger *slog.Logger) *Selector {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if files == nil {
		files = DefaultFiles()
	}
	if defaultName == "" {
		defaultName = DefaultEnvironment
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		fs:          fsys,
		cfg:         cfg,
		files:       files,
		defaultName: defaultName,
		logger:      logger,
	}
}

// Names returns the registered environment names, sorted.
func (s *Selector) Names() []string {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a registered environment.
func (s *Selector) Has(name string) bool {
	_, ok := s.files[name]
	return ok
}

// File returns the file registered for name.
func (s *Selector) File(name string) (string, error) {
	file, ok := s.files[name]
	if !ok {
		return "", fmt.Errorf("%w: %q (known: %v)", ErrUnknownEnvironment, name, s.Names())
	}
	return file, nil
}

// Select loads the file registered for name and marks name as selected.
func (s *Selector) Select(name string) error {
	file, err := s.File(name)
	if err != nil {
		return err
	}
	if _, err := s.LoadFile(file); err != nil {
		return err
	}

	s.cfg.Name = name
	s.logger.Info("environment selected",
		"environment", name,
		"file", file,
		"host", s.cfg.Host,
	)
	return nil
}

// SelectDefault selects the default environment when none is selected yet
// and its file exists. It reports whether a selection happened.
func (s *Selector) SelectDefault() (bool, error) {
	if s.cfg.Selected() {
		return false, nil
	}
	file, ok := s.files[s.defaultName]
	if !ok {
		return false, nil
	}
	exists, err := afero.Exists(s.fs, file)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", file, err)
	}
	if !exists {
		return false, nil
	}
	if err := s.Select(s.defaultName); err != nil {
		return false, err
	}
	return true, nil
}

// LoadFile applies path to the record. A missing file is logged and leaves
// the record untouched; it reports whether the file was loaded.
func (s *Selector) LoadFile(path string) (bool, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("environment file not found, keeping current configuration", "file", path)
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	entries, err := envfile.Parse(f)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}

	applied := s.cfg.Apply(entries)
	s.cfg.SourceEnvFile = path

	s.logger.Debug("environment file loaded",
		"file", path,
		"applied", applied,
	)
	return true, nil
}
