package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetforge/internal/config"
	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
	"git.home.luguber.info/inful/assetforge/internal/lookup"
)

// ResolveCmd implements the 'resolve' command.
type ResolveCmd struct {
	Keys []string `arg:"" name:"key" help:"Logical asset keys, relative to the asset root"`
	Env  string   `help:"Env file written by build (default: <output.dir>/assetforge.env)"`
}

func (r *ResolveCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	resolver, err := newResolver(cfg, r.Env)
	if err != nil {
		return err
	}

	for _, key := range r.Keys {
		url, err := resolver.Resolve(key)
		if err != nil {
			return aerrors.Wrap(err, aerrors.CategoryManifest, aerrors.SeverityError, "unresolved asset key").
				WithContext("key", key)
		}
		_, _ = fmt.Fprintln(g.out(), url)
	}
	return nil
}

// newResolver prefers the env file written by the last build, then the
// process environment, then the development convention from cfg.
func newResolver(cfg *config.Config, envPath string) (*lookup.Resolver, error) {
	explicit := envPath != ""
	if !explicit {
		envPath = filepath.Join(cfg.Output.Dir, lookup.EnvFileName)
	}

	if _, err := os.Stat(envPath); err == nil {
		env, err := lookup.ReadEnv(envPath)
		if err != nil {
			return nil, aerrors.IOError("read", envPath, err)
		}
		return fromEnv(env)
	} else if explicit {
		return nil, aerrors.IOError("stat", envPath, err)
	}

	if os.Getenv(lookup.EnvReleaseMode) != "" {
		env, err := lookup.EnvFromProcess()
		if err != nil {
			return nil, aerrors.ConfigInvalid(lookup.EnvReleaseMode, err.Error())
		}
		return fromEnv(env)
	}

	return lookup.NewDevelopment(strings.Trim(cfg.Serve.AssetsPrefix, "/")), nil
}

func fromEnv(env lookup.Env) (*lookup.Resolver, error) {
	r, err := lookup.FromEnv(env)
	if err != nil {
		return nil, aerrors.Wrap(err, aerrors.CategoryManifest, aerrors.SeverityError, "load manifest")
	}
	return r, nil
}
