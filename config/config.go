// Package config carries the DML executor's tunables (SPEC_FULL.md §10
// AMBIENT STACK: configuration): the cancellation poll interval, the
// lock-wait timeout default, and whether identity capture defaults on. It
// follows the teacher's own config package shape — a flag.FlagSet-backed
// registry with an HCL config file and environment-variable layer
// underneath — generalized into a builder (Config.Var) so a caller chains
// Usage/Env/NoConfigFile before picking the variable's type.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Value is anything settable from a single command-line argument (the
// flag.Value contract); every scalar variant below implements it.
type Value interface {
	Set(string) error
	String() string
}

// settable is anything settable from a decoded HCL value, which for Array
// and Map arrives as a structured interface{} rather than a bare string.
// Every variant, including Map, implements this.
type settable interface {
	SetValue(interface{}) error
	String() string
}

// setBy records which layer last set a variable, poorest to strongest: a
// default never touched, a config file, the environment, or an explicit
// command-line flag.
type setBy int

const (
	byDefault setBy = iota
	byConfig
	byEnv
	byFlag
)

type cfgVar struct {
	name     string
	usage    string
	env      string
	noConfig bool
	mapOnly  bool
	ptr      interface{}
	val      settable
	by       setBy
}

// Config is a named set of tunables one command registers against a
// flag.FlagSet, optionally also loadable from an HCL config file and from
// environment variables.
type Config struct {
	fs   *flag.FlagSet
	vars map[string]*cfgVar
}

func NewConfig(fs *flag.FlagSet) *Config {
	return &Config{fs: fs, vars: map[string]*cfgVar{}}
}

// Var begins registering one tunable backed by p: typically new(T) for a
// scalar or *Array, or a bare Map value for the config-file-only map
// variant. The returned Var is a builder — chain Usage/Env/NoConfigFile,
// then finish with the type-specific method (Bool, Int, String, Array,
// Map, ...) that wires the variable's default and, for everything but
// Map, its command-line flag.
func (c *Config) Var(p interface{}, name string) *Var {
	cv := &cfgVar{name: name, ptr: p}
	if _, ok := p.(Map); ok {
		cv.mapOnly = true
	}
	c.vars[name] = cv
	return &Var{cfg: c, cv: cv}
}

// Var is the builder returned by Config.Var.
type Var struct {
	cfg *Config
	cv  *cfgVar
}

// Usage sets the flag's usage string. Panics for a Map variable, which has
// no command-line representation.
func (v *Var) Usage(s string) *Var {
	if v.cv.mapOnly {
		panic(fmt.Sprintf("config: %s: a map variable has no command-line usage", v.cv.name))
	}
	v.cv.usage = s
	return v
}

// Env names the environment variable that overrides this variable's
// default when the command line didn't set it explicitly. Panics for a
// Map variable, which is config-file only.
func (v *Var) Env(s string) *Var {
	if v.cv.mapOnly {
		panic(fmt.Sprintf("config: %s: a map variable may not be set from the environment",
			v.cv.name))
	}
	v.cv.env = s
	return v
}

// NoConfigFile marks the variable as not settable from an HCL config
// file.
func (v *Var) NoConfigFile() *Var {
	v.cv.noConfig = true
	return v
}

func (v *Var) Bool(def bool) *bool {
	p := v.cv.ptr.(*bool)
	*p = def
	bv := (*boolValue)(p)
	v.cv.val = bv
	v.cfg.fs.Var(bv, v.cv.name, v.cv.usage)
	return p
}

func (v *Var) Int(def int) *int {
	p := v.cv.ptr.(*int)
	*p = def
	iv := (*intValue)(p)
	v.cv.val = iv
	v.cfg.fs.Var(iv, v.cv.name, v.cv.usage)
	return p
}

func (v *Var) Int64(def int64) *int64 {
	p := v.cv.ptr.(*int64)
	*p = def
	iv := (*int64Value)(p)
	v.cv.val = iv
	v.cfg.fs.Var(iv, v.cv.name, v.cv.usage)
	return p
}

func (v *Var) Uint(def uint) *uint {
	p := v.cv.ptr.(*uint)
	*p = def
	uv := (*uintValue)(p)
	v.cv.val = uv
	v.cfg.fs.Var(uv, v.cv.name, v.cv.usage)
	return p
}

func (v *Var) Uint64(def uint64) *uint64 {
	p := v.cv.ptr.(*uint64)
	*p = def
	uv := (*uint64Value)(p)
	v.cv.val = uv
	v.cfg.fs.Var(uv, v.cv.name, v.cv.usage)
	return p
}

func (v *Var) Float64(def float64) *float64 {
	p := v.cv.ptr.(*float64)
	*p = def
	fv := (*float64Value)(p)
	v.cv.val = fv
	v.cfg.fs.Var(fv, v.cv.name, v.cv.usage)
	return p
}

func (v *Var) Duration(def time.Duration) *time.Duration {
	p := v.cv.ptr.(*time.Duration)
	*p = def
	dv := (*durationValue)(p)
	v.cv.val = dv
	v.cfg.fs.Var(dv, v.cv.name, v.cv.usage)
	return p
}

func (v *Var) String(def string) *string {
	p := v.cv.ptr.(*string)
	*p = def
	sv := (*stringValue)(p)
	v.cv.val = sv
	v.cfg.fs.Var(sv, v.cv.name, v.cv.usage)
	return p
}

// Array finishes a repeatable string-flag variable (e.g. -opt=a -opt=b);
// each command-line occurrence appends.
func (v *Var) Array() *Array {
	p := v.cv.ptr.(*Array)
	v.cv.val = p
	v.cfg.fs.Var(p, v.cv.name, v.cv.usage)
	return p
}

// Map finishes a config-file-only nested map variable; it has no
// command-line flag and no environment override.
func (v *Var) Map() Map {
	m := v.cv.ptr.(Map)
	v.cv.val = m
	return m
}

// Env applies environment-variable overrides for every registered
// variable that named one (Var.Env) and was not already set explicitly on
// the command line — the environment sits between the config file and an
// explicit flag in precedence.
func (c *Config) Env() error {
	used := map[string]struct{}{}
	c.fs.Visit(func(f *flag.Flag) { used[f.Name] = struct{}{} })

	for _, cv := range c.vars {
		if cv.env == "" || cv.mapOnly {
			continue
		}
		if _, ok := used[cv.name]; ok {
			continue
		}
		s, ok := os.LookupEnv(cv.env)
		if !ok {
			continue
		}
		sv, ok := cv.val.(Value)
		if !ok {
			return fmt.Errorf("config: %s: not settable from the environment", cv.name)
		}
		if err := sv.Set(s); err != nil {
			return fmt.Errorf("%s: %s", cv.env, err)
		}
		cv.by = byEnv
	}
	return nil
}
