// Package config's file layer: decode HCL config text and apply it to
// every variable Config.Var has registered (SPEC_FULL.md §10).
package config

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/hashicorp/hcl"
)

// load decodes HCL config text from r and applies it to every registered
// variable it names. A name the config file mentions but Var never
// registered, or one marked NoConfigFile, is an error. A variable that
// was registered but never finished with a type-specific method (no
// cv.val — see "good" in load_test.go) is tolerated silently.
func (c *Config) load(r io.Reader) error {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}

	var parsed map[string]interface{}
	if err := hcl.Decode(&parsed, string(b)); err != nil {
		return err
	}

	c.fs.Visit(func(f *flag.Flag) {
		if cv, ok := c.vars[f.Name]; ok {
			cv.by = byFlag
		}
	})

	for name, val := range parsed {
		cvar, ok := c.vars[name]
		if !ok {
			return fmt.Errorf("%s is not a config variable", name)
		}
		if cvar.noConfig {
			return fmt.Errorf("%s can't be set in config file", name)
		}
		if cvar.val == nil {
			continue
		}

		if cvar.by == byDefault {
			err := cvar.val.SetValue(val)
			if err != nil {
				return fmt.Errorf("%s: %s", cvar.name, err)
			}
			cvar.by = byConfig
		}
	}

	return nil
}

// Load reads path as an HCL config file and applies it to every variable
// Config.Var has registered.
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.load(f)
}
