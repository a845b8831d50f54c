package cli

import (
	"os"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/coldboot/hibernate/pagemem"
	"github.com/coldboot/hibernate/storage"
	"github.com/coldboot/hibernate/suspend"
)

// RangeConfig names a run of page frames.
type RangeConfig struct {
	First int `yaml:"first"`
	Count int `yaml:"count"`
}

// MachineConfig describes the physical memory layout of the machine under
// test.
type MachineConfig struct {
	PageSize   int           `yaml:"page_size"`
	FrameCount int           `yaml:"frame_count"`
	Reserved   []RangeConfig `yaml:"reserved"`
	NoSave     RangeConfig   `yaml:"no_save"`
}

// WorkloadConfig describes the synthetic memory contents the suspend command
// plants before snapshotting. The same seed regenerates the exact contents,
// which is how the resume command verifies a restored machine.
type WorkloadConfig struct {
	Pages int   `yaml:"pages"`
	Seed  int64 `yaml:"seed"`
}

// AreaConfig describes one registered storage area.
type AreaConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // "file" or "sqlite"
	Path     string `yaml:"path"`
	Capacity int    `yaml:"capacity"`
}

// IdentityConfig supplies the image-header identity of the machine.
type IdentityConfig struct {
	Version     string `yaml:"version"`
	MachineName string `yaml:"machine_name"`
	CPUs        int    `yaml:"cpus"`
}

// Config is the full hibernatectl configuration file.
type Config struct {
	Machine      MachineConfig  `yaml:"machine"`
	Workload     WorkloadConfig `yaml:"workload"`
	Areas        []AreaConfig   `yaml:"areas"`
	Target       string         `yaml:"target"`
	ReservePages int            `yaml:"reserve_pages"`
	Identity     IdentityConfig `yaml:"identity"`
}

// LoadConfig reads, defaults and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Wrapf(err, "reading config %q", path)
	}

	var config Config
	err = yaml.Unmarshal(raw, &config)
	if err != nil {
		return nil, cerrors.Wrapf(err, "parsing config %q", path)
	}

	config.applyDefaults()
	err = config.validate()
	if err != nil {
		return nil, cerrors.Wrapf(err, "invalid config %q", path)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Machine.PageSize == 0 {
		c.Machine.PageSize = 4096
	}
	if c.Machine.FrameCount == 0 {
		c.Machine.FrameCount = 4096
	}
	if c.Workload.Pages == 0 {
		c.Workload.Pages = 16
	}
	if c.Workload.Seed == 0 {
		c.Workload.Seed = 1
	}
	if c.ReservePages == 0 {
		c.ReservePages = suspend.DefaultReservePages
	}
	if c.Identity.Version == "" {
		c.Identity.Version = "hibernate-dev"
	}
	if c.Identity.MachineName == "" {
		c.Identity.MachineName, _ = os.Hostname()
	}
	if c.Identity.CPUs == 0 {
		c.Identity.CPUs = 1
	}
	for i := range c.Areas {
		if c.Areas[i].Kind == "" {
			c.Areas[i].Kind = "file"
		}
		if c.Areas[i].Capacity == 0 {
			c.Areas[i].Capacity = 1024
		}
	}
	if c.Target == "" && len(c.Areas) == 1 {
		c.Target = c.Areas[0].Name
	}
}

func (c *Config) validate() error {
	if len(c.Areas) == 0 {
		return cerrors.New("no storage areas configured")
	}

	names := make([]string, 0, len(c.Areas))
	for _, area := range c.Areas {
		if area.Name == "" {
			return cerrors.New("storage area without a name")
		}
		if area.Path == "" {
			return cerrors.Newf("area %q has no path", area.Name)
		}
		if area.Kind != "file" && area.Kind != "sqlite" {
			return cerrors.Newf("area %q has unknown kind %q", area.Name, area.Kind)
		}
		names = append(names, area.Name)
	}

	slices.Sort(names)
	for i := 1; i < len(names); i++ {
		if names[i] == names[i-1] {
			return cerrors.Newf("area %q is configured twice", names[i])
		}
	}
	if !slices.Contains(names, c.Target) {
		return cerrors.Newf("target area %q is not configured", c.Target)
	}
	return nil
}

// BuildMachine constructs the machine under test from the configured layout.
func (c *Config) BuildMachine() (*pagemem.Machine, error) {
	reserved := make([]pagemem.Range, 0, len(c.Machine.Reserved))
	for _, r := range c.Machine.Reserved {
		reserved = append(reserved, pagemem.Range{First: pagemem.Frame(r.First), Count: r.Count})
	}
	return pagemem.NewMachine(pagemem.Config{
		PageSize:   c.Machine.PageSize,
		FrameCount: c.Machine.FrameCount,
		Reserved:   reserved,
		NoSaveRegion: pagemem.Range{
			First: pagemem.Frame(c.Machine.NoSave.First),
			Count: c.Machine.NoSave.Count,
		},
	})
}

// Facts derives the image identity for the given machine.
func (c *Config) Facts(m *pagemem.Machine) suspend.MachineFacts {
	return suspend.MachineFacts{
		Machine:     m,
		Version:     c.Identity.Version,
		MachineName: c.Identity.MachineName,
		CPUs:        c.Identity.CPUs,
	}
}

type closableArea interface {
	storage.Area
	Close() error
}

// OpenAreas opens every configured area and registers it. The returned
// closer releases all of them.
func (c *Config) OpenAreas() (*storage.Registry, func(), error) {
	reg := storage.NewRegistry()
	var opened []closableArea
	closeAll := func() {
		for _, area := range opened {
			area.Close()
		}
	}

	for _, cfg := range c.Areas {
		area, err := openArea(cfg, c.Machine.PageSize)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opened = append(opened, area)
		reg.Register(area)
	}
	return reg, closeAll, nil
}

func openArea(config AreaConfig, slotSize int) (closableArea, error) {
	switch config.Kind {
	case "sqlite":
		return storage.OpenSQLArea(config.Name, config.Path, slotSize, config.Capacity)
	default:
		return storage.OpenFileArea(config.Name, config.Path, slotSize)
	}
}

// CreateArea creates an area's backing store from scratch.
func CreateArea(config AreaConfig, slotSize int) (closableArea, error) {
	switch config.Kind {
	case "sqlite":
		return storage.OpenSQLArea(config.Name, config.Path, slotSize, config.Capacity)
	default:
		return storage.CreateFileArea(config.Name, config.Path, slotSize, config.Capacity)
	}
}
