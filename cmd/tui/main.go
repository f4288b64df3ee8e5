package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"jbio/internal/config"
	"jbio/internal/residue"
	"jbio/internal/store"
)

// Colors for modern design
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	surfaceColor   = lipgloss.Color("#1F2937") // Dark gray
	textColor      = lipgloss.Color("#F3F4F6") // Light gray
	mutedColor     = lipgloss.Color("#9CA3AF") // Muted gray
	borderColor    = lipgloss.Color("#374151") // Border gray
)

// Styles
var (
	containerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(surfaceColor).
			Padding(0, 1)

	sequenceStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(lipgloss.Color("#111827")).
			Padding(1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)

	annotatedStyle = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)
	plainStyle     = lipgloss.NewStyle().Foreground(mutedColor)
)

// chainRecord is one stored chain flattened for display. Props holds one
// slice per property that is set on at least one residue; unset residues
// are -1.
type chainRecord struct {
	Accession string
	Chain     byte
	Codes     string
	Revision  string
	Props     map[residue.Property][]float64
}

func (r chainRecord) label() string {
	return fmt.Sprintf("%s:%c", r.Accession, r.Chain)
}

type listItem struct {
	record chainRecord
}

func (i listItem) FilterValue() string { return i.record.label() }

func (i listItem) Title() string { return i.record.label() }

func (i listItem) Description() string {
	var names []string
	for _, p := range residue.Properties() {
		if _, ok := i.record.Props[p]; ok {
			names = append(names, p.String())
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("%d residues    %s", len(i.record.Codes), plainStyle.Render("no properties"))
	}
	return fmt.Sprintf("%d residues    %s", len(i.record.Codes), annotatedStyle.Render(strings.Join(names, ",")))
}

type mode int

const (
	modeCodes mode = iota
	modeFlexibility
	modeDisorder
	modeConfidence
	numModes
)

func (m mode) String() string {
	switch m {
	case modeCodes:
		return "Codes"
	case modeFlexibility:
		return "Flexibility"
	case modeDisorder:
		return "Disorder"
	case modeConfidence:
		return "Confidence"
	default:
		return "Unknown"
	}
}

func (m mode) property() (residue.Property, bool) {
	switch m {
	case modeFlexibility:
		return residue.Flexibility, true
	case modeDisorder:
		return residue.Disorder, true
	case modeConfidence:
		return residue.Confidence, true
	}
	return 0, false
}

type model struct {
	list          list.Model
	records       []chainRecord
	currentMode   mode
	showHelp      bool
	width         int
	height        int
	selectedIndex int
}

// loadRecords flattens every stored protein into chain records.
func loadRecords(ctx context.Context, st *store.Store) ([]chainRecord, error) {
	summaries, err := st.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []chainRecord
	for _, s := range summaries {
		p, err := st.Load(ctx, s.Accession)
		if err != nil {
			return nil, err
		}
		for _, c := range p.AllChains() {
			rec := chainRecord{Accession: p.Accession(), Chain: c.ID(), Codes: c.Codes(), Revision: s.Revision, Props: map[residue.Property][]float64{}}
			rs := c.Residues()
			for _, prop := range residue.Properties() {
				vals := make([]float64, len(rs))
				set := false
				for i, r := range rs {
					vals[i] = -1
					if v, ok := r.Property(prop); ok {
						vals[i] = v
						set = true
					}
				}
				if set {
					rec.Props[prop] = vals
				}
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func initialModel(records []chainRecord) model {
	// Create list items
	items := make([]list.Item, len(records))
	for i, record := range records {
		items[i] = listItem{record: record}
	}

	// Create list
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Protein Chains"
	l.SetShowStatusBar(false)
	l.SetShowPagination(true)
	l.SetFilteringEnabled(true)

	return model{
		list:        l,
		records:     records,
		currentMode: modeCodes,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) cycleMode() model {
	m.currentMode = (m.currentMode + 1) % numModes
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetWidth(msg.Width / 3)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "h":
			m.showHelp = !m.showHelp
			return m, nil
		case "tab":
			return m.cycleMode(), nil
		case "1", "2", "3", "4":
			m.currentMode = mode(msg.String()[0] - '1')
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.selectedIndex = m.list.Index()
	return m, cmd
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelpModal()
	}
	main := lipgloss.JoinHorizontal(lipgloss.Top, m.renderLeftPanel(), m.renderRightPanel())
	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m model) renderLeftPanel() string {
	return containerStyle.
		Width(m.width/3 - 2).
		Height(m.height - 4).
		Render(m.list.View())
}

func (m model) renderRightPanel() string {
	panel := containerStyle.Width(m.width*2/3 - 2).Height(m.height - 4)
	if len(m.records) == 0 {
		return panel.Render("No chains stored")
	}
	selected := m.list.SelectedItem()
	if selected == nil {
		return panel.Render("No chain selected")
	}
	return panel.Render(strings.Join(m.buildRightLines(selected.(listItem).record), "\n"))
}

// levels renders values in [0,1] as block characters; unset values are '·'.
func levels(vals []float64) string {
	const blocks = "▁▂▃▄▅▆▇█"
	runes := []rune(blocks)
	var b strings.Builder
	for _, v := range vals {
		if v < 0 {
			b.WriteRune('·')
			continue
		}
		i := int(v * float64(len(runes)-1))
		b.WriteRune(runes[i])
	}
	return b.String()
}

// wrap splits s into lines of at most width runes.
func wrap(s string, width int) []string {
	if width <= 0 {
		width = 60
	}
	runes := []rune(s)
	var out []string
	for len(runes) > width {
		out = append(out, string(runes[:width]))
		runes = runes[width:]
	}
	return append(out, string(runes))
}

func (m model) buildRightLines(rec chainRecord) []string {
	width := m.width*2/3 - 8
	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s  chain %c", rec.Accession, rec.Chain)),
		plainStyle.Render(fmt.Sprintf("%d residues    revision %s", len(rec.Codes), rec.Revision)),
		"",
		lipgloss.NewStyle().Foreground(accentColor).Bold(true).Render(m.currentMode.String() + ":"),
	}

	prop, isProp := m.currentMode.property()
	if !isProp {
		return append(lines, sequenceStyle.Render(strings.Join(wrap(rec.Codes, width), "\n")))
	}
	vals, ok := rec.Props[prop]
	if !ok {
		return append(lines, plainStyle.Render(fmt.Sprintf("No %s values stored", prop)))
	}
	// codes above their levels, wrapped together
	codes := wrap(rec.Codes, width)
	bars := wrap(levels(vals), width)
	var body []string
	for i := range codes {
		body = append(body, codes[i], annotatedStyle.Render(bars[i]))
	}
	return append(lines, sequenceStyle.Render(strings.Join(body, "\n")))
}

func (m model) renderStatusBar() string {
	leftInfo := fmt.Sprintf("%d/%d chains", m.selectedIndex+1, len(m.records))
	centerInfo := fmt.Sprintf("Mode: %s", m.currentMode)
	rightInfo := "Press 'h' for help, 'q' to quit"

	spacing := m.width - len(leftInfo) - len(centerInfo) - len(rightInfo) - 6
	var statusContent string
	if spacing > 0 {
		left := spacing / 2
		statusContent = leftInfo + strings.Repeat(" ", left) + centerInfo + strings.Repeat(" ", spacing-left) + rightInfo
	} else {
		// Fallback for narrow terminals
		statusContent = fmt.Sprintf("%s | %s", leftInfo, centerInfo)
	}
	return statusBarStyle.Width(m.width).Render(statusContent)
}

func (m model) renderHelpModal() string {
	helpContent := `Protein Chain Browser - Help

Navigation:
  up/down, j/k  Navigate list
  /             Filter chains

View Modes:
  1             Residue codes
  2             Flexibility
  3             Disorder
  4             Confidence
  tab           Next mode

General:
  h             Toggle this help
  q, Ctrl+C     Quit application

Current Mode: ` + m.currentMode.String() + `
Total Chains: ` + fmt.Sprintf("%d", len(m.records)) + `
`
	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(surfaceColor).
		Foreground(textColor).
		Width(60).
		Render(helpContent)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
}

func main() {
	configFlag := flag.String("config", "", "path to config.json or config.yaml (optional)")
	dbFlag := flag.String("db", "", "sqlite database path (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if *dbFlag != "" {
		cfg.DatabasePath = *dbFlag
	}
	st, err := store.Open(cfg.DatabasePath, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	records, err := loadRecords(context.Background(), st)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(initialModel(records), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v", err)
		os.Exit(1)
	}
}
