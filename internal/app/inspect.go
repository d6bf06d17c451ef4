package app

import (
	"errors"

	"sharpinstall/internal/domain"
)

// Report describes what provisioning would use on this host.
type Report struct {
	Platform   string
	Artifact   string
	ArchiveURL string
	BinaryDir  string
	ModuleDir  string // empty when no module is installed
	Err        error  // platform or locator failure
}

// Installed reports whether a module was located.
func (r Report) Installed() bool { return r.ModuleDir != "" }

// Inspect resolves the platform and locates an installed module without
// downloading, building or taking the install lock.
func (s *Service) Inspect() Report {
	r := Report{BinaryDir: s.cfg.BinaryDir}

	dir, err := s.ports.Locator.Locate(s.cfg.BinaryDir)
	switch {
	case err == nil:
		r.ModuleDir = dir
	case !errors.Is(err, domain.ErrNotFound):
		r.Err = err
	}

	key, err := s.ports.Resolver.Resolve()
	if err != nil {
		r.Err = errors.Join(r.Err, err)
		return r
	}
	r.Platform = key.String()
	r.Artifact = domain.ArtifactName(s.cfg.Version, s.cfg.NAPIVersion, key)
	r.ArchiveURL = domain.ArchiveURL(s.cfg.RegistryURL, s.cfg.Version, r.Artifact)
	return r
}
