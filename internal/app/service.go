package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"sharpinstall/internal/domain"
)

// Ports bundles the collaborators the Service drives.
type Ports struct {
	Resolver   domain.PlatformResolver
	Locator    domain.Locator
	Downloader domain.Downloader
	Installer  domain.ArchiveInstaller
	Builder    domain.Builder
	Loader     domain.Loader
	Locker     domain.Locker
	Metrics    domain.Metrics
	Logger     domain.Logger
}

// Service provisions the native module: locate, else download and install
// the prebuilt archive, else build from source, then load.
type Service struct {
	cfg   domain.InstallConfig
	ports Ports
	newID func() string

	mu          sync.Mutex
	log         domain.Logger // carries the current attempt id
	state       State
	enteredAt   time.Time
	transitions []Transition
	module      *domain.Module
}

// NewService creates the application service with all dependencies injected.
func NewService(cfg domain.InstallConfig, ports Ports) *Service {
	return &Service{
		cfg:   cfg,
		ports: ports,
		newID: func() string { return ulid.Make().String() },
		log:   ports.Logger,
		state: Uninitialized,
	}
}

// Run executes one provisioning attempt and returns the loaded module.
// Calling Run again after a failure starts over from Uninitialized.
func (s *Service) Run(ctx context.Context) (*domain.Module, error) {
	attempt := s.newID()
	log := s.ports.Logger.With("attempt", attempt)
	s.reset(log)
	ctx = domain.ContextWithLogger(ctx, log)
	log.Info("provisioning native module", "dir", s.cfg.BinaryDir, "version", s.cfg.Version)

	mod, err := s.run(ctx, log, attempt)
	if err != nil {
		from := s.State()
		s.to(Failed, OutcomeError, err)
		log.Error("provisioning failed", "state", from, "err", err)
		return nil, err
	}
	log.Info("native module ready", "path", mod.Path, "format", mod.Format, "machine", mod.Machine)
	return mod, nil
}

func (s *Service) run(ctx context.Context, log domain.Logger, attempt string) (*domain.Module, error) {
	for _, dir := range []string{s.cfg.BinaryDir, s.cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure %s: %w", dir, err)
		}
	}

	unlock, err := s.ports.Locker.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Warn("release install lock failed", "err", err)
		}
	}()

	s.to(Locating, OutcomeStart, nil)
	dir, err := s.ports.Locator.Locate(s.cfg.BinaryDir)
	if err == nil {
		s.to(Found, OutcomeFound, nil)
		log.Info("native module already installed", "dir", dir)
		s.to(Loading, OutcomeLocated, nil)
		return s.load(dir)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	s.to(NotFound, OutcomeNotFound, nil)

	key, err := s.ports.Resolver.Resolve()
	if err != nil {
		return nil, err
	}
	name := domain.ArtifactName(s.cfg.Version, s.cfg.NAPIVersion, key)
	log.Info("resolved platform", "platform", key.String(), "artifact", name)

	if s.cfg.BuildFromSource {
		log.Info("source build forced by configuration")
		s.to(SourceBuilding, OutcomeSourceForced, nil)
	} else {
		s.to(Downloading, OutcomePlatformResolved, nil)
		err := s.installPrebuilt(ctx, log, name)
		switch {
		case err == nil:
			return s.relocateAndLoad("install")
		case errors.Is(err, domain.ErrNoPrebuilt):
			log.Warn("no prebuilt archive for platform, building from source", "platform", key.String(), "err", err)
			s.to(SourceBuilding, OutcomeNoPrebuilt, nil)
		default:
			return nil, err
		}
	}

	if err := s.buildFromSource(ctx, log, attempt); err != nil {
		return nil, err
	}
	s.to(Loading, OutcomeBuilt, nil)
	return s.relocateAndLoad("source build")
}

// installPrebuilt downloads <tmp>/<name>/<name>.tar.gz and installs it into
// the canonical directory. The staging directory is removed on failure.
func (s *Service) installPrebuilt(ctx context.Context, log domain.Logger, name string) error {
	staging := filepath.Join(s.cfg.TempDir, name)
	archive := filepath.Join(staging, name+".tar.gz")
	url := domain.ArchiveURL(s.cfg.RegistryURL, s.cfg.Version, name)

	log.Info("downloading prebuilt archive", "url", url)
	dl, err := s.ports.Downloader.Download(ctx, url, archive)
	if err != nil {
		s.removeBestEffort(log, staging)
		return err
	}
	s.ports.Metrics.AddDownloadedBytes(dl.Size)
	s.to(Extracting, OutcomeDownloaded, nil)

	if err := s.ports.Installer.Install(ctx, dl.Path, s.cfg.BinaryDir); err != nil {
		s.removeBestEffort(log, staging)
		return err
	}
	s.to(Loading, OutcomeInstalled, nil)
	return nil
}

func (s *Service) buildFromSource(ctx context.Context, log domain.Logger, attempt string) error {
	workDir := filepath.Join(s.cfg.TempDir, "build-"+attempt)
	defer s.removeBestEffort(log, workDir)

	log.Info("building native module from source", "version", s.cfg.Version, "workdir", workDir)
	return s.ports.Builder.Build(ctx, s.cfg.Version, workDir, s.cfg.BinaryDir)
}

// relocateAndLoad re-runs the locator after an install step and loads the result.
func (s *Service) relocateAndLoad(step string) (*domain.Module, error) {
	dir, err := s.ports.Locator.Locate(s.cfg.BinaryDir)
	if err != nil {
		return nil, fmt.Errorf("native module missing after %s: %w", step, err)
	}
	return s.load(dir)
}

// load hands the module directory to the loader explicitly and records the
// result as the exposed capability.
func (s *Service) load(dir string) (*domain.Module, error) {
	mod, err := s.ports.Loader.Load(dir)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.module = mod
	s.mu.Unlock()
	s.to(Ready, OutcomeLoaded, nil)
	return mod, nil
}

func (s *Service) removeBestEffort(log domain.Logger, path string) {
	if err := os.RemoveAll(path); err != nil {
		log.Warn("cleanup failed", "path", path, "err", err)
	}
}

// Clean removes the staging directory under the install lock.
func (s *Service) Clean(ctx context.Context) error {
	unlock, err := s.ports.Locker.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			s.ports.Logger.Warn("release install lock failed", "err", err)
		}
	}()

	if err := os.RemoveAll(s.cfg.TempDir); err != nil {
		return fmt.Errorf("remove %s: %w", s.cfg.TempDir, err)
	}
	s.ports.Logger.Info("removed staging directory", "path", s.cfg.TempDir)
	return nil
}

// Module returns the loaded module, or nil before Ready.
func (s *Service) Module() *domain.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return nil
	}
	return s.module
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns the transitions of the latest Run.
func (s *Service) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

func (s *Service) reset(log domain.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = log
	s.state = Uninitialized
	s.enteredAt = time.Now()
	s.transitions = nil
	s.module = nil
}

// to records a transition out of the current state and reports the time
// spent in it.
func (s *Service) to(next State, outcome Outcome, err error) {
	s.mu.Lock()
	now := time.Now()
	from := s.state
	elapsed := now.Sub(s.enteredAt)
	s.transitions = append(s.transitions, Transition{From: from, To: next, Outcome: outcome, Err: err})
	s.state = next
	s.enteredAt = now
	log := s.log
	s.mu.Unlock()

	s.ports.Metrics.ObserveStage(from.String(), string(outcome), elapsed)
	log.Debug("state transition", "from", from, "to", next, "outcome", outcome)
}
