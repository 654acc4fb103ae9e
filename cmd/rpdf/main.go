package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hcudev/solana-rpdf/analysis"
	"github.com/hcudev/solana-rpdf/config"
	"github.com/hcudev/solana-rpdf/debugger"
	"github.com/hcudev/solana-rpdf/ebpf"
	"github.com/hcudev/solana-rpdf/vm"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rpdf",
		Short: "Userland eBPF execution engine and static analyzer",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: platform config dir)")

	loadConfig := func() (*config.Config, error) {
		if configPath != "" {
			return config.LoadFrom(configPath)
		}
		return config.Load()
	}

	// run command
	var budget uint64
	var useMbuff bool
	var mbuffStart, mbuffEnd uint
	var useJit bool
	var traceRun bool

	runCmd := &cobra.Command{
		Use:   "run <prog.bin> [input.bin]",
		Short: "Verify and execute a program over an input buffer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			prog, err := os.ReadFile(args[0]) // #nosec G304 -- user supplied program
			if err != nil {
				return err
			}
			var input []byte
			if len(args) == 2 {
				input, err = os.ReadFile(args[1]) // #nosec G304 -- user supplied input
				if err != nil {
					return err
				}
			}
			machine, err := buildVM(prog, cfg, useMbuff, mbuffStart, mbuffEnd)
			if err != nil {
				return err
			}
			if budget != 0 {
				machine.Budget = budget
			}
			if traceRun || cfg.Execution.EnableTrace {
				machine.Trace = vm.NewExecutionTrace(os.Stderr)
				machine.Trace.MaxEntries = cfg.Trace.MaxEntries
			}
			var result uint64
			if useJit {
				if err := machine.JITCompile(); err != nil {
					return err
				}
				result, err = machine.ExecuteJIT(input)
			} else {
				result, err = machine.Execute(input)
			}
			if err != nil {
				return fmt.Errorf("execution failed: %w", err)
			}
			if machine.Trace != nil {
				if err := machine.Trace.Flush(); err != nil {
					return err
				}
			}
			fmt.Printf("Program returned: 0x%x\n", result)
			fmt.Printf("Remaining budget: %d\n", machine.RemainingBudget())
			return nil
		},
	}
	runCmd.Flags().Uint64Var(&budget, "budget", 0, "Instruction budget (default from config)")
	runCmd.Flags().BoolVar(&useMbuff, "mbuff", false, "Use the fixed metadata buffer form")
	runCmd.Flags().UintVar(&mbuffStart, "mbuff-start", 0x40, "Metadata offset of the packet start pointer")
	runCmd.Flags().UintVar(&mbuffEnd, "mbuff-end", 0x50, "Metadata offset of the packet end pointer")
	runCmd.Flags().BoolVar(&useJit, "jit", false, "Execute the compiled form")
	runCmd.Flags().BoolVar(&traceRun, "trace", false, "Trace executed instructions to stderr")

	// disasm command
	disasmCmd := &cobra.Command{
		Use:   "disasm <prog.bin>",
		Short: "Disassemble a program with basic-block labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := analyzeFile(args[0])
			if err != nil {
				return err
			}
			return a.Disassemble(os.Stdout)
		},
	}

	// dot command
	var flatten bool
	dotCmd := &cobra.Command{
		Use:   "dot <prog.bin>",
		Short: "Emit a Graphviz rendering of the control-flow graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := os.ReadFile(args[0]) // #nosec G304 -- user supplied program
			if err != nil {
				return err
			}
			if err := vm.Verify(prog, vm.DefaultMaxInstructions); err != nil {
				return err
			}
			var opts []analysis.Option
			if flatten {
				opts = append(opts, analysis.WithFlattenCallGraph())
			}
			a, err := analysis.FromProgram(prog, analysis.SymbolTable{}, opts...)
			if err != nil {
				return err
			}
			return a.VisualizeGraphically(os.Stdout, nil)
		},
	}
	dotCmd.Flags().BoolVar(&flatten, "flatten", false, "Flatten the call graph into the control-flow graph")

	// debug command
	debugCmd := &cobra.Command{
		Use:   "debug <prog.bin> [input.bin]",
		Short: "Inspect a program step by step in the TUI",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			prog, err := os.ReadFile(args[0]) // #nosec G304 -- user supplied program
			if err != nil {
				return err
			}
			var input []byte
			if len(args) == 2 {
				input, err = os.ReadFile(args[1]) // #nosec G304 -- user supplied input
				if err != nil {
					return err
				}
			}
			machine, err := buildVM(prog, cfg, useMbuff, mbuffStart, mbuffEnd)
			if err != nil {
				return err
			}
			a, err := analysis.FromProgram(prog, symbolsFromVM(machine))
			if err != nil {
				return err
			}
			tui := debugger.NewTUI(machine, a, input)
			return tui.Run()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rpdf %s\n", Version)
			if Commit != "unknown" {
				fmt.Printf("Commit: %s\n", Commit)
			}
		},
	}

	rootCmd.AddCommand(runCmd, disasmCmd, dotCmd, debugCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildVM constructs the requested VM form and applies the configuration.
func buildVM(prog []byte, cfg *config.Config, useMbuff bool, mbuffStart, mbuffEnd uint) (*vm.VM, error) {
	if err := vm.Verify(prog, cfg.Execution.MaxProgramSize); err != nil {
		return nil, err
	}
	var machine *vm.VM
	var err error
	if useMbuff {
		machine, err = vm.NewFixedMbuff(prog, mbuffStart, mbuffEnd)
	} else {
		machine, err = vm.NewRaw(prog)
	}
	if err != nil {
		return nil, err
	}
	machine.Budget = cfg.Execution.Budget
	machine.MaxCallDepth = cfg.Execution.MaxCallDepth
	machine.EntryOffset = cfg.Execution.EntryOffset
	if cfg.Execution.StackSize != ebpf.StackSize {
		machine.SetStackSize(cfg.Execution.StackSize)
	}
	if err := machine.RegisterNamedHelper(ebpf.HelperTracePrintkID, "trace_printk", vm.TracePrintk(os.Stderr)); err != nil {
		return nil, err
	}
	return machine, nil
}

// symbolsFromVM exposes the VM's registries to the static analysis.
func symbolsFromVM(machine *vm.VM) analysis.SymbolTable {
	symbols := analysis.SymbolTable{
		Functions: make(map[int]analysis.Symbol),
		Helpers:   machine.HelperNames(),
	}
	for pc, sym := range machine.FunctionSymbols() {
		symbols.Functions[pc] = analysis.Symbol{ID: sym.ID, Name: sym.Name}
	}
	return symbols
}

// analyzeFile verifies and analyzes a program from disk.
func analyzeFile(path string) (*analysis.Analysis, []byte, error) {
	prog, err := os.ReadFile(path) // #nosec G304 -- user supplied program
	if err != nil {
		return nil, nil, err
	}
	if err := vm.Verify(prog, vm.DefaultMaxInstructions); err != nil {
		return nil, nil, err
	}
	a, err := analysis.FromProgram(prog, analysis.SymbolTable{})
	if err != nil {
		return nil, nil, err
	}
	return a, prog, nil
}
