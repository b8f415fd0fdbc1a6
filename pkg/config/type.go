package config

// Config represents the complete application configuration that tess
// supports.  The coordinator reads the worker, runner, cache and
// workspace settings; tessd reads the daemon block.
type Config struct {
	Workers      []Worker `hcl:"worker,block"`
	Runner       *Runner  `hcl:"runner,block"`
	Cache        *Cache   `hcl:"cache,block"`
	Daemon       *Daemon  `hcl:"daemon,block"`
	BuildCommand string   `hcl:"build_command,optional"`
	NomadJob     string   `hcl:"nomad_job,optional"`

	// Workspace is the git remote the nodes build from, checked
	// out at Revision.
	Workspace string `hcl:"workspace,optional"`
	Revision  string `hcl:"revision,optional"`

	// Admin is where the coordinator serves its status routes.
	Admin string `hcl:"admin,optional"`
}

// Worker is one build node.
type Worker struct {
	Name     string `hcl:"name,label"`
	Address  string `hcl:"address,optional"`
	Dir      string `hcl:"dir"`
	Capacity int    `hcl:"capacity,optional"`
}

// Runner names the registered runner and passes it options.
type Runner struct {
	Name    string            `hcl:"name,label"`
	Options map[string]string `hcl:"options,optional"`
}

// Cache selects the storage backend and, optionally, the URL nodes
// use to reach the artifact cache.
type Cache struct {
	Backend string `hcl:"backend,optional"`
	URL     string `hcl:"url,optional"`
}

// Daemon configures tessd.
type Daemon struct {
	Listen  string `hcl:"listen,optional"`
	Admin   string `hcl:"admin,optional"`
	Command string `hcl:"command,optional"`
	Slots   int    `hcl:"slots,optional"`
	WorkDir string `hcl:"work_dir,optional"`
}
