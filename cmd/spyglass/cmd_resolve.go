package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ochairo/spyglass/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/spyglass/internal/domain-orchestrators"
	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
	"github.com/ochairo/spyglass/internal/domain/services"
	"github.com/ochairo/spyglass/internal/external-adapters/corefile"
	"github.com/ochairo/spyglass/internal/external-adapters/gpg"
	"github.com/ochairo/spyglass/internal/external-adapters/process"
	"github.com/ochairo/spyglass/internal/external-adapters/symstore"
	"github.com/ochairo/spyglass/internal/external-adapters/yaml"
	zerologadapter "github.com/ochairo/spyglass/internal/external-adapters/zerolog"
)

// inspectableTarget is what both target adapters provide: memory access,
// module enumeration, and a close handle.
type inspectableTarget interface {
	interfaces.DataTarget
	interfaces.ModuleEnumerator
	io.Closer
}

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	var (
		corePath   = fs.String("core", "", "Path to an ELF core dump to inspect")
		pid        = fs.Int("pid", 0, "Process id of a running process to inspect")
		configPath = fs.String("config", "", "Path to a symbol-store YAML configuration")
		bootstrap  = fs.Bool("bootstrap", false, "Locate a usable data-access library for each detected runtime")
		verbose    = fs.Bool("verbose", false, "Log resolution steps to stderr")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: spyglass resolve [options]

Detect managed runtimes inside a target and print the priority-ordered
support-library candidate list for each.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  spyglass resolve --core /tmp/core.1234
  spyglass resolve --pid 1234 --verbose
  spyglass resolve --core /tmp/core.1234 --config stores.yaml --bootstrap
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if (*corePath == "") == (*pid == 0) {
		fmt.Fprintf(os.Stderr, "Error: exactly one of --core or --pid is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	if *bootstrap && *configPath == "" {
		fmt.Fprintf(os.Stderr, "Error: --bootstrap requires --config\n\n")
		fs.Usage()
		os.Exit(1)
	}

	if err := executeResolve(*corePath, *pid, *configPath, *bootstrap, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func executeResolve(corePath string, pid int, configPath string, bootstrap, verbose bool) error {
	var log interfaces.Logger = &interfaces.NoOpLogger{}
	if verbose {
		log = zerologadapter.New(os.Stderr)
	}

	var target inspectableTarget
	if corePath != "" {
		core, err := corefile.Open(corePath)
		if err != nil {
			return err
		}
		target = core
	} else {
		//nolint:gosec // G115: pid flag range is validated by the OS on attach
		proc, err := process.Attach(int32(pid))
		if err != nil {
			return err
		}
		printAttachedProcess(proc, pid)
		target = proc
	}
	//nolint:errcheck // Defer close on inspection target
	defer target.Close()

	var locator interfaces.FileLocator
	if configPath != "" {
		cfg, err := yaml.ParseStoreConfig(configPath)
		if err != nil {
			return err
		}
		store := symstore.NewLocator(*cfg, log)
		if cfg.VerifyGPG {
			verifier := gpg.NewVerifier()
			for _, key := range cfg.GPGKeyFiles {
				if err := verifier.ImportKeysFromFile(key); err != nil {
					return err
				}
			}
			store.SetVerifier(verifier)
		}
		locator = store
	}

	modules, err := target.Modules()
	if err != nil {
		return err
	}

	prober := gateways.NewFileProber()
	resolver := services.NewArtifactResolver(prober, log)

	found := 0
	for _, mod := range modules {
		info := gateways.NewRuntimeModuleInfo(target, mod)
		runtime, ok := resolver.Resolve(target, info)
		if !ok {
			continue
		}
		found++
		printRuntime(runtime)

		if bootstrap {
			b := orchestrators.NewRuntimeBootstrapper(
				target, runtime, locator, gateways.NewProbeSessionFactory(), prober, log)
			session, err := b.Automatic()
			if err != nil {
				fmt.Printf("  bootstrap: %v\n", err)
				continue
			}
			fmt.Printf("  bootstrap: %s\n", session.DataAccessPath())
			//nolint:errcheck // Probe sessions hold no resources
			session.Close()
		}
	}

	if found == 0 {
		return fmt.Errorf("no managed runtime detected in target")
	}
	return nil
}

func printAttachedProcess(proc *process.Target, pid int) {
	name, err := proc.Name()
	if err != nil {
		name = "?"
	}
	if exe, err := proc.ExecutablePath(); err == nil {
		fmt.Printf("Process %d: %s (%s)\n", pid, name, exe)
		return
	}
	fmt.Printf("Process %d: %s\n", pid, name)
}

func printRuntime(r *entities.RuntimeDescriptor) {
	fmt.Printf("Runtime %s at %#x (%s)\n", r.Flavor, r.ModuleBase, r.ModulePath)
	fmt.Printf("  version:     %s\n", r.Version)
	fmt.Printf("  identity:    %s\n", r.Identity)
	fmt.Printf("  single-file: %v\n", r.SingleFile)
	fmt.Printf("  candidates:\n")
	for i, c := range r.Artifacts {
		fmt.Printf("    %2d. [%s] %s (%s/%s, %s)\n",
			i+1, c.Kind, c.FileName, c.Platform, c.Architecture, c.Identity)
	}
}
