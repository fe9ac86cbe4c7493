package actions

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/helper"
)

type DefaultAddConfig struct {
	ConfigFile *config.File `errorTxt:"config-file" mandatory:"yes"`
	Key        string       `errorTxt:"key" mandatory:"yes"`
	Value      string       `errorTxt:"value" mandatory:"yes"`
	Force      bool
	Output     io.Writer
}

type DefaultRemoveConfig struct {
	ConfigFile *config.File `errorTxt:"config-file" mandatory:"yes"`
	Key        string       `errorTxt:"key" mandatory:"yes"`
	Output     io.Writer
}

// RunDefaultAdd adds key+value to the given config file.
// If cfg.Force is not set then it returns an error when the key exists.
// The config file is created lazily when the value is first set.
func RunDefaultAdd(cfg *DefaultAddConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if !config.IsDefaultKey(cfg.Key) {
		return fmt.Errorf("unsupported key %q, please use one of these: %v", cfg.Key, strings.Join(config.DefaultKeys, ", "))
	}
	var val string
	if err := cfg.ConfigFile.Get(cfg.Key, &val); err == nil && !cfg.Force { // if key exists and we're not allowed to overwrite...
		return fmt.Errorf("key %q exists, use force to update the value or remove it first", cfg.Key)
	} else if err != nil { // else there is an error...
		if !errors.As(err, &config.KeyNotFoundError{}) && !errors.As(err, &config.FileNotFoundError{}) { // if there was an unexpected error...
			return err
		}
	}
	if err := cfg.ConfigFile.Set(cfg.Key, cfg.Value); err != nil {
		return errors.Wrap(err, "error writing config file after adding")
	}
	if cfg.Output != nil {
		_, _ = fmt.Fprintf(cfg.Output, "Key %q added to %q\n", cfg.Key, cfg.ConfigFile.FullPath)
	}
	return nil
}

// RunDefaultRemove removes a key from the given config file.
func RunDefaultRemove(cfg *DefaultRemoveConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if err := cfg.ConfigFile.Delete(cfg.Key); err != nil {
		return fmt.Errorf("unable to delete key %q from config: %v", cfg.Key, err)
	}
	if cfg.Output != nil {
		_, _ = fmt.Fprintf(cfg.Output, "Key %q removed\n", cfg.Key)
	}
	return nil
}

// RunDefaultList writes key=value for every default in f.
func RunDefaultList(f *config.File, w io.Writer) error {
	keys, err := f.GetAllKeys()
	if err != nil {
		return err
	}
	for _, k := range keys { // for each key...
		var val string
		if err := f.Get(k, &val); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%v=%v\n", k, val); err != nil {
			return err
		}
	}
	return nil
}
