package app

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Binz120/OpenBullet2/internal/checks"
	"github.com/Binz120/OpenBullet2/internal/domain"
	"github.com/Binz120/OpenBullet2/internal/jobs/engine"
)

var (
	statusStyles = map[domain.Status]lipgloss.Style{
		domain.StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#9ACD32")),
		domain.StatusFail:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6347")),
		domain.StatusBan:     lipgloss.NewStyle().Foreground(lipgloss.Color("#DDA0DD")),
		domain.StatusRetry:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		domain.StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		domain.StatusNone:    lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
	}
	otherStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6347"))
	hitsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ADFF2F"))
	customStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8C00"))
	toCheckStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FFFD4"))
)

// console prints job events. Fails and task errors are shown only in
// verbose mode.
type console struct {
	out     io.Writer
	verbose bool
}

func styleFor(status domain.Status) lipgloss.Style {
	if style, ok := statusStyles[status]; ok {
		return style
	}
	return otherStyle
}

func (c console) handle(ev engine.Event) {
	switch ev.Kind {
	case engine.EventResult:
		c.printResult(ev.Result)
	case engine.EventTaskError:
		c.printTaskError(ev)
	case engine.EventFatalError:
		fmt.Fprintln(c.out, errorStyle.Render("Error: "+ev.Err.Error()))
	}
}

func (c console) printResult(result *domain.CheckResult) {
	if result == nil {
		return
	}
	if result.Status == domain.StatusFail && !c.verbose {
		return
	}

	line := result.RawStatus + ": " + result.Line.Data
	if captured := result.CapturedData(); captured != "" {
		line += " | " + captured
	}
	fmt.Fprintln(c.out, styleFor(result.Status).Render(line))
}

func (c console) printTaskError(ev engine.Event) {
	if !c.verbose {
		return
	}

	proxy := ""
	if ev.Proxy != nil {
		proxy = ev.Proxy.String()
	}
	fmt.Fprintln(c.out, errorStyle.Render(fmt.Sprintf("Task Error: (%s)(%s)! %v", proxy, ev.Line.Data, ev.Err)))
}

func (c console) printSummary(snap engine.Snapshot) {
	fmt.Fprintf(c.out, "Finished. Found: %s%s%s\n",
		hitsStyle.Render(fmt.Sprintf("%d hits, ", snap.Hits)),
		customStyle.Render(fmt.Sprintf("%d custom, ", snap.Custom)),
		toCheckStyle.Render(fmt.Sprintf("%d to check.", snap.ToCheck)),
	)
}

// titleLine renders the live status line of a job.
func titleLine(snap engine.Snapshot, configName, wordlist string) string {
	size := "?"
	percent := "?"
	if snap.ProgressKnown {
		size = fmt.Sprintf("%d", snap.Size)
		percent = fmt.Sprintf("%.2f", snap.Progress*100)
	}

	return fmt.Sprintf(
		"OpenBullet 2 - %s | Config: %s | Wordlist: %s | Bots: %d | CPM: %d | Progress: %d / %s (%s%%) | "+
			"Hits: %d Custom: %d ToCheck: %d Fails: %d Retries: %d | Proxies: %d / %d",
		snap.State, configName, filepath.Base(wordlist), snap.Bots, snap.CPM, snap.Tested, size, percent,
		snap.Hits, snap.Custom, snap.ToCheck, snap.Fails, snap.Retried+snap.Banned,
		snap.ProxiesAlive, snap.ProxiesTotal,
	)
}

// promptCustomInputs asks every question of the check config. A blank answer
// takes the default.
func promptCustomInputs(in io.Reader, out io.Writer, inputs []checks.CustomInput) map[string]string {
	answers := make(map[string]string, len(inputs))
	if len(inputs) == 0 {
		return answers
	}

	reader := bufio.NewReader(in)
	for _, input := range inputs {
		fmt.Fprintf(out, "%s (%s): ", input.Description, input.Default)

		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" {
			answer = input.Default
		}
		answers[input.Variable] = answer
	}
	return answers
}
