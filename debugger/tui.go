// Package debugger provides a text user interface for stepping through a
// program under the interpreter while watching registers, the stack and
// the disassembly.
package debugger

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hcudev/solana-rpdf/analysis"
	"github.com/hcudev/solana-rpdf/ebpf"
	"github.com/hcudev/solana-rpdf/vm"
)

// TUI represents the text user interface of the inspector
type TUI struct {
	VM       *vm.VM
	Analysis *analysis.Analysis
	App      *tview.Application

	// View panels
	RegisterView    *tview.TextView
	DisassemblyView *tview.TextView
	StackView       *tview.TextView
	OutputView      *tview.TextView

	session *vm.Session
	input   []byte
}

// NewTUI creates a new inspector over a VM and its analysis
func NewTUI(machine *vm.VM, a *analysis.Analysis, input []byte) *TUI {
	tui := &TUI{
		VM:       machine,
		Analysis: a,
		App:      tview.NewApplication(),
		input:    input,
	}
	tui.initializeViews()
	tui.buildLayout()
	tui.setupKeyBindings()
	tui.session = machine.NewSession(input)
	tui.refresh()
	return tui
}

// initializeViews creates all the view panels
func (t *TUI) initializeViews() {
	t.RegisterView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	t.RegisterView.SetBorder(true).SetTitle(" Registers ")

	t.DisassemblyView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	t.DisassemblyView.SetBorder(true).SetTitle(" Disassembly ")

	t.StackView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	t.StackView.SetBorder(true).SetTitle(" Stack ")

	t.OutputView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	t.OutputView.SetBorder(true).SetTitle(" Output ")
}

// buildLayout arranges the panels
func (t *TUI) buildLayout() {
	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.DisassemblyView, 0, 3, false).
		AddItem(t.OutputView, 0, 1, false)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.RegisterView, 15, 0, false).
		AddItem(t.StackView, 0, 1, false)
	main := tview.NewFlex().
		AddItem(left, 0, 2, false).
		AddItem(right, 0, 1, false)
	t.App.SetRoot(main, true)
}

// setupKeyBindings wires F10 = step, F5 = run to completion, q = quit
func (t *TUI) setupKeyBindings() {
	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			t.stepOnce()
			return nil
		case tcell.KeyF5:
			t.runToEnd()
			return nil
		case tcell.KeyCtrlC:
			t.App.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				t.App.Stop()
				return nil
			}
		}
		return event
	})
}

func (t *TUI) stepOnce() {
	done, err := t.session.Step()
	if err != nil {
		fmt.Fprintf(t.OutputView, "[red]%v[white]\n", err)
	} else if done {
		fmt.Fprintf(t.OutputView, "Program returned: 0x%x (remaining budget %d)\n",
			t.session.Result(), t.session.Remaining())
	}
	t.refresh()
}

func (t *TUI) runToEnd() {
	for {
		done, err := t.session.Step()
		if err != nil {
			fmt.Fprintf(t.OutputView, "[red]%v[white]\n", err)
			break
		}
		if done {
			fmt.Fprintf(t.OutputView, "Program returned: 0x%x (remaining budget %d)\n",
				t.session.Result(), t.session.Remaining())
			break
		}
	}
	t.refresh()
}

// refresh redraws all panels from the session state
func (t *TUI) refresh() {
	t.updateRegisters()
	t.updateDisassembly()
	t.updateStack()
}

func (t *TUI) updateRegisters() {
	t.RegisterView.Clear()
	regs := t.session.Registers()
	for i, value := range regs {
		marker := " "
		if i == ebpf.FramePointerReg {
			marker = "*"
		}
		fmt.Fprintf(t.RegisterView, "%sr%-2d 0x%016x\n", marker, i, value)
	}
	fmt.Fprintf(t.RegisterView, "\npc   %d\ndepth %d\nbudget %d\n",
		t.session.PC(), t.session.CallDepth(), t.session.Remaining())
}

func (t *TUI) updateDisassembly() {
	t.DisassemblyView.Clear()
	pc := t.session.PC()
	for _, insn := range t.Analysis.Instructions {
		if node, ok := t.Analysis.CfgNodes[insn.PC]; ok {
			fmt.Fprintf(t.DisassemblyView, "[yellow]%s:[white]\n", node.Label)
		}
		cursor := "  "
		if insn.PC == pc {
			cursor = "[green]=>[white]"
		}
		fmt.Fprintf(t.DisassemblyView, "%s %4d  %s\n", cursor, insn.PC, ebpf.Disasm(insn))
	}
}

func (t *TUI) updateStack() {
	t.StackView.Clear()
	regs := t.session.Registers()
	top := regs[ebpf.FramePointerReg]
	var lines strings.Builder
	for row := 0; row < 16; row++ {
		addr := top - uint64((row+1)*8)
		if addr < ebpf.MM_StackStart {
			break
		}
		data, err := t.VM.ReadGuestMemory(addr, 8)
		if err != nil {
			break
		}
		fmt.Fprintf(&lines, "0x%09x ", addr)
		for _, b := range data {
			fmt.Fprintf(&lines, " %02x", b)
		}
		lines.WriteString("\n")
	}
	fmt.Fprint(t.StackView, lines.String())
}

// Run starts the interface and blocks until the user quits
func (t *TUI) Run() error {
	return t.App.Run()
}
