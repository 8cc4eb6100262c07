// Package staging materializes an isolated, minimally-scoped copy of the run
// configuration for the process that will execute the work.
package staging

import (
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jmharte/overseer/internal/config"
)

// Options controls what the staged copy carries and who ends up owning it.
// The include flags are set exactly when an alternate OS identity is
// requested: isolation is needed precisely when privilege differs.
type Options struct {
	IncludeEnv     bool
	IncludeCommand bool
	Owner          string
}

// Stager writes and removes staged configuration files.
type Stager struct {
	dir    string
	logger *zap.Logger

	// chown transfers ownership of a staged file to an alternate identity.
	// Swappable so tests can observe the invocation without sudo.
	chown func(owner, path string) error
}

// New constructs a Stager writing into the default temp directory.
func New(logger *zap.Logger) *Stager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stager{logger: logger, chown: sudoChown}
}

// Stage writes the scoped manifest copy to a fresh owner-only file and
// returns its path. The file is created with mode 0600 before any content is
// written so no less-trusted identity can observe a partially written copy.
// When an owner is set, ownership is transferred synchronously afterwards;
// failure of that transfer is fatal and removes the file.
func (s *Stager) Stage(file *config.File, opts Options) (string, error) {
	scoped := file.Scoped(opts.IncludeEnv, opts.IncludeCommand)

	f, err := os.CreateTemp(s.dir, "overseer-cfg-*.yaml")
	if err != nil {
		return "", fmt.Errorf("create staged config: %w", err)
	}
	path := f.Name()

	encoder := yaml.NewEncoder(f)
	if err := encoder.Encode(scoped); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write staged config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("flush staged config: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close staged config: %w", err)
	}

	if opts.Owner != "" {
		if err := s.chown(opts.Owner, path); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("transfer staged config to %s: %w", opts.Owner, err)
		}
	}

	s.logger.Debug("staged task configuration",
		zap.String("path", path),
		zap.Bool("include_env", opts.IncludeEnv),
		zap.Bool("include_command", opts.IncludeCommand),
		zap.String("owner", opts.Owner))
	return path, nil
}

// Unstage removes a staged file. It is idempotent: a missing file or empty
// path is success.
func (s *Stager) Unstage(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged config: %w", err)
	}
	return nil
}

// sudoChown hands the staged file to the alternate identity through the
// external privilege-escalation helper. The supervisor itself never changes
// identity.
func sudoChown(owner, path string) error {
	cmd := exec.Command("sudo", "chown", owner, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sudo chown: %w (%s)", err, string(out))
	}
	return nil
}
