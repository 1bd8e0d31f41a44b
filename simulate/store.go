package simulate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Noofbiz/fluxbench/datasets"
)

// Store keeps simulations and reports under Dir:
//
//	<Dir>/models/<name>/sim_data/<name>_<site>.nc
//	<Dir>/models/<name>/<name>_<site>.rst
//	<Dir>/models/<name>/figures/
//
// It is not safe for concurrent use on the same simulation.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) modelDir(name string) string {
	return filepath.Join(s.Dir, "models", name)
}

// SimPath returns the simulation file path without touching the filesystem.
func (s *Store) SimPath(name, site string) string {
	return filepath.Join(s.modelDir(name), "sim_data", fmt.Sprintf("%s_%s.nc", name, site))
}

// Path returns the simulation file path and creates its parent directories.
func (s *Store) Path(name, site string) (string, error) {
	p := s.SimPath(name, site)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	return p, nil
}

// Exists reports whether a simulation is cached.
func (s *Store) Exists(name, site string) bool {
	_, err := os.Stat(s.SimPath(name, site))
	return err == nil
}

// Load reads a cached simulation.
func (s *Store) Load(name, site string) (*datasets.Dataset, error) {
	p := s.SimPath(name, site)
	ds, err := datasets.ReadNetCDF(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no simulation of %s at %s (%s): %w", name, site, p, err)
	}
	return ds, err
}

// Save writes a simulation, replacing any cached one.
func (s *Store) Save(name, site string, ds *datasets.Dataset) (string, error) {
	p, err := s.Path(name, site)
	if err != nil {
		return "", err
	}
	if err := datasets.WriteNetCDF(p, ds); err != nil {
		return "", fmt.Errorf("saving simulation of %s at %s: %w", name, site, err)
	}
	return p, nil
}

// Import reads a simulation file in any supported format and stores it as
// the cached simulation of name at site.
func (s *Store) Import(name, site, src string) (*datasets.Dataset, error) {
	ds, err := datasets.Open(src)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", src, err)
	}
	ds.Site = site
	if _, err := s.Save(name, site, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// ReportPath returns the report file of name at site.
func (s *Store) ReportPath(name, site string) string {
	return filepath.Join(s.modelDir(name), fmt.Sprintf("%s_%s.rst", name, site))
}

// FigureDir returns the plot directory of a model.
func (s *Store) FigureDir(name string) string {
	return filepath.Join(s.modelDir(name), "figures")
}
