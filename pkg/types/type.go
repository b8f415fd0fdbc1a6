package types

// A BuildUnit is one package's compilation request as discovered
// from the project metadata.  Units are created once during
// discovery and are not modified afterwards; retries work on a
// Clone.
type BuildUnit struct {
	Name         string   `msgpack:"name"`
	Dependencies []string `msgpack:"dependencies"`
	SourceFiles  []string `msgpack:"source_files"`
	Artifacts    []string `msgpack:"artifacts"`
}

// Clone returns a deep copy of the unit.
func (u BuildUnit) Clone() BuildUnit {
	return BuildUnit{
		Name:         u.Name,
		Dependencies: cloneStrings(u.Dependencies),
		SourceFiles:  cloneStrings(u.SourceFiles),
		Artifacts:    cloneStrings(u.Artifacts),
	}
}

// DependsOn reports whether the unit declares a dependency on the
// named package.
func (u BuildUnit) DependsOn(name string) bool {
	for _, d := range u.Dependencies {
		if d == name {
			return true
		}
	}
	return false
}

// An ArtifactRef is a single compiled output returned by a worker.
// The path is relative to the profile directory.
type ArtifactRef struct {
	Path string `msgpack:"path"`
	Data []byte `msgpack:"data"`
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
