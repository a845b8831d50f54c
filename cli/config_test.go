package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldboot/hibernate/pagemem"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "hibernate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
areas:
  - name: disk0
    path: /tmp/disk0.img
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 4096, config.Machine.PageSize)
	require.Equal(t, 4096, config.Machine.FrameCount)
	require.Equal(t, 16, config.Workload.Pages)
	require.Equal(t, "file", config.Areas[0].Kind)
	require.Equal(t, 1024, config.Areas[0].Capacity)

	// A single configured area becomes the target by default.
	require.Equal(t, "disk0", config.Target)
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
machine:
  page_size: 256
  frame_count: 128
  reserved:
    - first: 8
      count: 2
  no_save:
    first: 4
    count: 2
workload:
  pages: 5
  seed: 42
areas:
  - name: disk0
    kind: sqlite
    path: /tmp/disk0.db
    capacity: 64
  - name: disk1
    kind: file
    path: /tmp/disk1.img
    capacity: 32
target: disk1
reserve_pages: 16
identity:
  version: hibernate-test
  machine_name: testbench
  cpus: 2
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "disk1", config.Target)
	require.Equal(t, 16, config.ReservePages)
	require.Equal(t, "sqlite", config.Areas[0].Kind)

	m, err := config.BuildMachine()
	require.NoError(t, err)
	require.Equal(t, 256, m.PageSize())
	require.Equal(t, 128, m.FrameCount())
	require.True(t, m.IsReserved(pagemem.Frame(8)))

	facts := config.Facts(m)
	require.Equal(t, "hibernate-test", facts.VersionID())
	require.Equal(t, 128, facts.TotalPages())
}

func TestLoadConfigRejections(t *testing.T) {
	cases := map[string]string{
		"no areas": ``,
		"duplicate names": `
areas:
  - name: disk0
    path: /tmp/a.img
  - name: disk0
    path: /tmp/b.img
target: disk0
`,
		"unknown kind": `
areas:
  - name: disk0
    kind: tape
    path: /tmp/a.img
`,
		"unregistered target": `
areas:
  - name: disk0
    path: /tmp/a.img
  - name: disk1
    path: /tmp/b.img
target: disk2
`,
		"missing path": `
areas:
  - name: disk0
`,
	}
	for name, body := range cases {
		_, err := LoadConfig(writeConfig(t, body))
		require.Error(t, err, "case %q accepted", name)
	}
}

func TestWorkloadRoundTrip(t *testing.T) {
	config := pagemem.Config{PageSize: 256, FrameCount: 32}
	workload := WorkloadConfig{Pages: 4, Seed: 7}

	m1, err := pagemem.NewMachine(config)
	require.NoError(t, err)
	addrs, err := plantWorkload(m1, workload)
	require.NoError(t, err)
	require.Len(t, addrs, 4)
	require.NoError(t, verifyWorkload(m1, workload, addrs))

	// First-fit allocation makes the planting deterministic across
	// machines with the same layout.
	m2, err := pagemem.NewMachine(config)
	require.NoError(t, err)
	addrs2, err := plantWorkload(m2, workload)
	require.NoError(t, err)
	require.Equal(t, addrs, addrs2)

	m1.Page(addrs[2])[0]++
	require.Error(t, verifyWorkload(m1, workload, addrs))
}
