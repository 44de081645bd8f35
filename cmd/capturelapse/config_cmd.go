// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cosnicolaou/capturelapse/config"
	"github.com/cosnicolaou/capturelapse/schedule"
)

type ConfigFlags struct {
	ConfigFileFlags
}

type Config struct {
	out io.Writer
}

func indent(prefix, text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func (c *Config) Display(ctx context.Context, flags any, _ []string) error {
	fv := flags.(*ConfigFlags)
	cfg, store, err := fv.load(ctx)
	if err != nil {
		return err
	}
	provider, err := fv.solarProvider()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "File: %v\n", store.Path)
	fmt.Fprintf(c.out, "Configuration:\n%v\n", indent("  ", cfg.String()))
	fmt.Fprintf(c.out, "Storage: %v\n", config.ResolveStorageDir(cfg.SavePath, fv.configDir()))
	fmt.Fprintf(c.out, "Timezone: %v\n", cfg.Location())
	fmt.Fprintf(c.out, "Interval: %v\n", cfg.Interval())
	eval := schedule.New(cfg, schedule.WithSolarProvider(provider))
	d := eval.Decide(time.Now().In(eval.Location()))
	fmt.Fprintf(c.out, "Now: %v (%v)\n", d.EvaluatedAt.Format(time.DateTime), d.Reason)
	if d.UseAstral {
		rise, set := solarTimes(d)
		fmt.Fprintf(c.out, "Sunrise: %v, Sunset: %v\n", rise, set)
	}
	return nil
}

// Validate reports any problems with the configuration. None of them
// prevent the configuration from being used.
func (c *Config) Validate(ctx context.Context, flags any, _ []string) error {
	fv := flags.(*ConfigFlags)
	cfg, store, err := fv.load(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%v:\n%v", store.Path, indent("  ", err.Error()))
	}
	fmt.Fprintf(c.out, "%v: ok\n", store.Path)
	return nil
}
