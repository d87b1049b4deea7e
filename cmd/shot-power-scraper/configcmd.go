package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/elidickinson/shot-power-scraper/internal/common/config"
)

func (a *app) runConfig(args []string) int {
	var (
		adBlock    valueBool
		popupBlock valueBool
		enableGPU  valueBool
		userAgent  string
		clearAll   bool
		show       bool
	)
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Var(&adBlock, "ad-block", "Set default ad blocking (true/false)")
	fs.Var(&popupBlock, "popup-block", "Set default popup blocking (true/false)")
	fs.Var(&enableGPU, "enable-gpu", "Set default GPU enable setting (true/false)")
	fs.StringVar(&userAgent, "user-agent", "", "Set default user agent string")
	fs.BoolVar(&clearAll, "clear", false, "Clear all configuration settings (delete config file)")
	fs.BoolVar(&show, "show", false, "Show current configuration")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if a.defaultsPath == "" {
		return a.fail(fmt.Errorf("no user configuration directory available"))
	}

	if clearAll {
		removed, err := config.ClearCLIDefaults(a.defaultsPath)
		if err != nil {
			return a.fail(err)
		}
		if removed {
			fmt.Fprintln(a.stdout, "Configuration file cleared.")
		} else {
			fmt.Fprintln(a.stdout, "No configuration file found to clear.")
		}
		return 0
	}

	d, err := config.LoadCLIDefaults(a.defaultsPath)
	if err != nil {
		return a.fail(err)
	}

	if show {
		ua := d.UserAgent
		if ua == "" {
			ua = "None"
		}
		fmt.Fprintf(a.stdout, "Configuration file: %s\n", a.defaultsPath)
		fmt.Fprintf(a.stdout, "ad_block: %t\n", d.AdBlock)
		fmt.Fprintf(a.stdout, "popup_block: %t\n", d.PopupBlock)
		fmt.Fprintf(a.stdout, "user_agent: %s\n", ua)
		fmt.Fprintf(a.stdout, "enable_gpu: %t\n", d.EnableGPU)
		return 0
	}

	changed := false
	if adBlock.set {
		d.AdBlock, changed = adBlock.value, true
		fmt.Fprintf(a.stdout, "Set default ad_block to: %t\n", d.AdBlock)
	}
	if popupBlock.set {
		d.PopupBlock, changed = popupBlock.value, true
		fmt.Fprintf(a.stdout, "Set default popup_block to: %t\n", d.PopupBlock)
	}
	if userAgent != "" {
		d.UserAgent, changed = userAgent, true
		fmt.Fprintf(a.stdout, "Set default user_agent to: %s\n", d.UserAgent)
	}
	if enableGPU.set {
		d.EnableGPU, changed = enableGPU.value, true
		fmt.Fprintf(a.stdout, "Set default enable_gpu to: %t\n", d.EnableGPU)
	}
	if !changed {
		fmt.Fprintln(a.stdout, "No configuration changes specified. Use --show to view current settings.")
		fmt.Fprintln(a.stdout, "Use --ad-block true/false, --popup-block true/false, --user-agent 'string', --enable-gpu true/false, or --clear to modify settings.")
		return 0
	}

	if err := config.SaveCLIDefaults(a.defaultsPath, d); err != nil {
		return a.fail(err)
	}
	return 0
}
