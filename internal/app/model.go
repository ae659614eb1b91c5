package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
	"github.com/burningmantech/ranger-transmissions/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// Catalog is the store surface the application reads from.
type Catalog interface {
	Events(ctx context.Context) ([]store.Event, error)
	Find(ctx context.Context, f store.Filter) ([]store.Transmission, error)
}

// Searcher is the index surface the application queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// displayTimeLayout renders start times in the archive wall clock.
const displayTimeLayout = "01/02 15:04:05"

// detailHeight is the fixed height of the detail pane, title included.
const detailHeight = 8

// Model is the root bubbletea model for the transmissions browser.
type Model struct {
	catalog Catalog
	index   Searcher

	// Events bar. eventIndex -1 selects every event.
	events     []store.Event
	eventIndex int

	// Transmission list
	transmissions []store.Transmission
	total         int
	selected      int
	scroll        int
	loaded        bool

	// Search
	searching   bool
	searchInput string
	activeQuery string

	// UI state
	showDetail bool
	width      int
	height     int

	// Errors
	errorMessage   string
	errorTransient bool
}

// New creates a new Model over the given catalog and search index.
func New(catalog Catalog, index Searcher) Model {
	return Model{
		catalog:    catalog,
		index:      index,
		eventIndex: -1,
	}
}

// Init returns the initial commands, loading events and the full
// transmission list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadEventsCmd(m.catalog),
		loadTransmissionsCmd(m.catalog, ""),
	)
}

// loadEventsCmd reads the catalog's events.
func loadEventsCmd(catalog Catalog) tea.Cmd {
	return func() tea.Msg {
		events, err := catalog.Events(context.Background())
		if err != nil {
			return QueryErrorMsg{Err: err}
		}
		return EventsLoadedMsg{Events: events}
	}
}

// loadTransmissionsCmd reads the catalog listing, scoped to one event
// when eventID is not empty.
func loadTransmissionsCmd(catalog Catalog, eventID string) tea.Cmd {
	return func() tea.Msg {
		found, err := catalog.Find(context.Background(), store.Filter{EventID: eventID})
		if err != nil {
			return QueryErrorMsg{Err: err}
		}
		return TransmissionsLoadedMsg{Transmissions: found}
	}
}

// searchCmd runs a full-text query, scoped to one event when eventID is
// not empty.
func searchCmd(index Searcher, query, eventID string) tea.Cmd {
	return func() tea.Msg {
		results, err := index.Search(context.Background(), query, search.DefaultLimit)
		if err != nil {
			return QueryErrorMsg{Err: err}
		}
		if eventID != "" {
			scoped := results[:0]
			for _, r := range results {
				if r.Transmission.EventID == eventID {
					scoped = append(scoped, r)
				}
			}
			results = scoped
		}
		return SearchResultsMsg{Query: query, Results: results}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampCursor()
		return m, nil

	case EventsLoadedMsg:
		m.events = msg.Events
		if m.eventIndex >= len(m.events) {
			m.eventIndex = -1
		}
		return m, nil

	case TransmissionsLoadedMsg:
		m.transmissions = msg.Transmissions
		m.total = len(msg.Transmissions)
		m.activeQuery = ""
		m.loaded = true
		m.clampCursor()
		return m, nil

	case SearchResultsMsg:
		list := make([]store.Transmission, 0, len(msg.Results))
		for _, r := range msg.Results {
			list = append(list, r.Transmission)
		}
		m.transmissions = list
		m.activeQuery = msg.Query
		m.selected = 0
		m.scroll = 0
		return m, nil

	case QueryErrorMsg:
		m.errorMessage = msg.Err.Error()
		m.errorTransient = true
		return m, clearTransientErrorCmd()

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m, tea.Quit

	case KeySearch:
		m.searching = true
		m.searchInput = ""
		return m, nil

	case KeyTab:
		if len(m.events) == 0 {
			return m, nil
		}
		m.eventIndex++
		if m.eventIndex >= len(m.events) {
			m.eventIndex = -1
		}
		m.selected = 0
		m.scroll = 0
		m.activeQuery = ""
		return m, loadTransmissionsCmd(m.catalog, m.activeEventID())

	case KeyJ, KeyDown:
		m.moveCursor(1)
		return m, nil

	case KeyK, KeyUp:
		m.moveCursor(-1)
		return m, nil

	case KeyPageDown:
		m.moveCursor(m.visibleRows())
		return m, nil

	case KeyPageUp:
		m.moveCursor(-m.visibleRows())
		return m, nil

	case KeyHome:
		m.selected = 0
		m.scroll = 0
		return m, nil

	case KeyEnd:
		m.moveCursor(len(m.transmissions))
		return m, nil

	case KeyEnter:
		if len(m.transmissions) > 0 {
			m.showDetail = !m.showDetail
			m.clampCursor()
		}
		return m, nil

	case KeyEscape:
		if m.showDetail {
			m.showDetail = false
			return m, nil
		}
		if m.activeQuery != "" {
			m.activeQuery = ""
			return m, loadTransmissionsCmd(m.catalog, m.activeEventID())
		}
		return m, nil
	}

	return m, nil
}

// handleSearchKey processes key presses while the search input is
// focused.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC:
		return m, tea.Quit

	case KeyEscape:
		m.searching = false
		m.searchInput = ""
		if m.activeQuery != "" {
			m.activeQuery = ""
			return m, loadTransmissionsCmd(m.catalog, m.activeEventID())
		}
		return m, nil

	case KeyEnter:
		query := strings.TrimSpace(m.searchInput)
		m.searching = false
		if query == "" {
			if m.activeQuery != "" {
				m.activeQuery = ""
				return m, loadTransmissionsCmd(m.catalog, m.activeEventID())
			}
			return m, nil
		}
		return m, searchCmd(m.index, query, m.activeEventID())

	case KeyBackspace:
		if m.searchInput != "" {
			runes := []rune(m.searchInput)
			m.searchInput = string(runes[:len(runes)-1])
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyRunes:
		m.searchInput += string(msg.Runes)
	case tea.KeySpace:
		m.searchInput += " "
	}
	return m, nil
}

func (m Model) activeEventID() string {
	if m.eventIndex < 0 || m.eventIndex >= len(m.events) {
		return ""
	}
	return m.events[m.eventIndex].ID
}

func (m *Model) moveCursor(delta int) {
	m.selected += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.selected >= len(m.transmissions) {
		m.selected = len(m.transmissions) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}

	visible := m.visibleRows()
	if m.selected < m.scroll {
		m.scroll = m.selected
	}
	if m.selected >= m.scroll+visible {
		m.scroll = m.selected - visible + 1
	}
	maxScroll := max(0, len(m.transmissions)-visible)
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}
	if m.scroll < 0 {
		m.scroll = 0
	}
}

func (m Model) visibleRows() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + events(1) + divider(1) + table header(1) +
	// divider(1) + search(1) + footer(1)
	reserved := 7
	if m.errorMessage != "" {
		reserved++
	}
	if m.showDetail {
		reserved += detailHeight
	}
	return max(3, m.height-reserved)
}

// View renders the full application.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderEventBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderList())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.showDetail {
		sections = append(sections, m.renderDetail())
	}

	sections = append(sections, m.renderSearchLine())

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("RADIO TRANSMISSIONS")
	if m.activeQuery != "" {
		return title + ui.DimStyle.Render(" — filtered")
	}
	return title
}

func (m Model) renderEventBar() string {
	parts := []string{ui.EventBarLabelStyle.Render("EVENTS:")}

	if m.eventIndex < 0 {
		parts = append(parts, ui.EventActiveStyle.Render("[ALL]"))
	} else {
		parts = append(parts, ui.EventStyle.Render(" ALL "))
	}
	for i, e := range m.events {
		if i == m.eventIndex {
			parts = append(parts, ui.EventActiveStyle.Render("["+e.ID+"]"))
		} else {
			parts = append(parts, ui.EventStyle.Render(" "+e.ID+" "))
		}
	}

	return strings.Join(parts, " ")
}

type column struct {
	title string
	width int
}

func (m Model) columns() []column {
	cols := []column{
		{"Event", 8},
		{"Station", 14},
		{"Channel", 10},
		{"Start", 14},
		{"Duration", 9},
	}
	used := 2 // cursor gutter
	for _, c := range cols {
		used += c.width + 2
	}
	return append(cols, column{"Transcription", max(12, m.width-used)})
}

func (m Model) renderList() string {
	cols := m.columns()

	var header strings.Builder
	header.WriteString("  ")
	for _, c := range cols {
		header.WriteString(padRight(c.title, c.width) + "  ")
	}
	lines := []string{ui.TableHeaderStyle.Render(strings.TrimRight(header.String(), " "))}

	visible := m.visibleRows()
	switch {
	case !m.loaded:
		lines = append(lines, ui.DimStyle.Render("  Loading catalog..."))
	case len(m.transmissions) == 0 && m.activeQuery != "":
		lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("  No matches for %q", m.activeQuery)))
	case len(m.transmissions) == 0:
		lines = append(lines, ui.DimStyle.Render("  No transmissions in the catalog"))
	default:
		end := min(m.scroll+visible, len(m.transmissions))
		for i := m.scroll; i < end; i++ {
			lines = append(lines, m.renderRow(m.transmissions[i], cols, i == m.selected))
		}
	}

	for len(lines) < visible+1 {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(t store.Transmission, cols []column, selected bool) string {
	cells := []string{
		t.EventID,
		t.Station,
		t.Channel,
		t.StartTime.In(store.ArchiveZone).Format(displayTimeLayout),
		durationCell(t.Duration),
		transcriptionCell(t.Transcription),
	}

	var row strings.Builder
	for i, c := range cols {
		row.WriteString(padRight(truncateToWidth(cells[i], c.width), c.width) + "  ")
	}
	line := strings.TrimRight(row.String(), " ")

	if selected {
		return ui.SelectedStyle.Render("> " + line)
	}
	return "  " + line
}

func durationCell(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func transcriptionCell(text string) string {
	if text == "" {
		return "…"
	}
	return strings.Join(strings.Fields(text), " ")
}

func (m Model) renderDetail() string {
	if m.selected >= len(m.transmissions) {
		return strings.Repeat("\n", detailHeight-1)
	}
	t := m.transmissions[m.selected]
	start := t.StartTime.In(store.ArchiveZone)

	file := t.FileName
	if t.SHA256 != "" {
		file += "  sha256 " + t.SHA256
	}

	lines := []string{
		ui.TableHeaderStyle.Render("DETAIL"),
		ui.DetailValueStyle.Render(t.Station) +
			ui.DetailLabelStyle.Render(" on ") + t.System +
			ui.DetailLabelStyle.Render(" channel ") + t.Channel +
			ui.DetailLabelStyle.Render(" in ") + t.EventID,
		ui.TimestampStyle.Render(start.Format("Mon "+displayTimeLayout)) +
			ui.DetailLabelStyle.Render("  duration ") + durationCell(t.Duration),
		ui.DimStyle.Render(truncateToWidth(file, m.width)),
		"",
	}

	if t.Transcription == "" {
		lines = append(lines, ui.DimStyle.Render("(transcription not available)"))
	} else {
		wrapped := wrapText(t.Transcription, max(20, m.width-4))
		if len(wrapped) > detailHeight-len(lines) {
			wrapped = wrapped[:detailHeight-len(lines)]
		}
		lines = append(lines, wrapped...)
	}

	for len(lines) < detailHeight {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderSearchLine() string {
	if m.searching {
		return ui.SearchPromptStyle.Render("/") + ui.SearchQueryStyle.Render(m.searchInput) + "▌"
	}
	if m.activeQuery != "" {
		return ui.SearchPromptStyle.Render("/") + ui.SearchQueryStyle.Render(m.activeQuery) +
			ui.DimStyle.Render("  (esc clears)")
	}
	return ui.DimStyle.Render("Press / to search")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	count := fmt.Sprintf("%d of %d transmissions", len(m.transmissions), m.total)

	keys := []string{
		ui.FooterKeyStyle.Render("/") + ui.FooterDescStyle.Render(" Search"),
		ui.FooterKeyStyle.Render("Tab") + ui.FooterDescStyle.Render(" Event"),
		ui.FooterKeyStyle.Render("j/k") + ui.FooterDescStyle.Render(" Move"),
		ui.FooterKeyStyle.Render("Enter") + ui.FooterDescStyle.Render(" Detail"),
		ui.FooterKeyStyle.Render("q") + ui.FooterDescStyle.Render(" Quit"),
	}

	return ui.DimStyle.Render(count) + "   " + strings.Join(keys, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:max(0, width-1)]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
