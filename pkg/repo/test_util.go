package repo

import (
	"testing"
)

func MockRepo(t testing.TB) *Repo {
	return &Repo{
		RepoRoot:      t.TempDir(),
		Config:        defaultConfig(),
		GenesisConfig: defaultGenesisConfig(),
	}
}
