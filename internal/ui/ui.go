// Package ui implements the terminal member/video browser.
//
// The model is a thin presentation layer: all state changes go through
// the sync engine and the store, and refreshed data arrives back as
// bubbletea messages.
package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mozbugbox/bitiwo/internal/bilibili"
	"github.com/mozbugbox/bitiwo/internal/formatter"
	"github.com/mozbugbox/bitiwo/internal/models"
	"github.com/mozbugbox/bitiwo/internal/store"
	"github.com/mozbugbox/bitiwo/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	MemberListView ViewState = iota
	VideoListView
	SearchView
)

// Launcher starts an external player for a video URL.
type Launcher interface {
	Play(url string) (int, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	view   ViewState
	store  *store.Store
	engine *tasks.Engine
	player Launcher

	width  int
	height int

	memberList list.Model
	videoList  list.Model
	search     textinput.Model

	currentMID  int64
	currentName string
	searching   bool // video list holds search results
	status      string
	err         error
	help        help.Model
	keys        keyMap
}

type keyMap struct {
	enter   key.Binding
	back    key.Binding
	search  key.Binding
	refresh key.Binding
	syncAll key.Binding
	catchup key.Binding
	play    key.Binding
	visited key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		syncAll: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "refresh all"),
		),
		catchup: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "catch up"),
		),
		play: key.NewBinding(
			key.WithKeys("p", "enter"),
			key.WithHelp("p", "play"),
		),
		visited: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "toggle seen"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// memberItem wraps [models.MemberStatus] to implement list.Item.
type memberItem struct {
	status models.MemberStatus
}

func (i memberItem) FilterValue() string { return i.status.Name }
func (i memberItem) Title() string {
	if i.status.NewCount > 0 {
		return fmt.Sprintf("%s (%d new)", i.status.Name, i.status.NewCount)
	}
	return i.status.Name
}
func (i memberItem) Description() string {
	return fmt.Sprintf("last video %s", formatter.FormatTimestamp(i.status.LastCreated))
}

// videoItem wraps [models.Video] to implement list.Item.
type videoItem struct {
	video models.Video
}

func (i videoItem) FilterValue() string { return i.video.Title }
func (i videoItem) Title() string {
	if !i.video.Visited {
		return "* " + i.video.Title
	}
	return i.video.Title
}
func (i videoItem) Description() string {
	return fmt.Sprintf("%s • %s • %d views",
		formatter.FormatTimestamp(i.video.Created), i.video.Length, i.video.ViewCount)
}

type statusesLoadedMsg struct {
	statuses []models.MemberStatus
	err      error
}

type videosLoadedMsg struct {
	mid    int64
	name   string
	videos []models.Video
	err    error
}

type searchDoneMsg struct {
	pattern string
	videos  []models.Video
	err     error
}

type refreshDoneMsg struct {
	mid int64
	new int
	err error
}

type playStartedMsg struct {
	bvid string
	err  error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, st *store.Store, engine *tasks.Engine, player Launcher) *Model {
	search := textinput.New()
	search.Placeholder = "search videos"

	return &Model{
		ctx:    ctx,
		view:   MemberListView,
		store:  st,
		engine: engine,
		player: player,
		search: search,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init loads the member list.
func (m *Model) Init() tea.Cmd {
	return m.loadStatuses()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.memberList.SetSize(msg.Width-4, msg.Height-8)
		m.videoList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case MemberListView:
			return m.handleMemberListKeys(msg)
		case VideoListView:
			return m.handleVideoListKeys(msg)
		case SearchView:
			return m.handleSearchKeys(msg)
		}

	case statusesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		items := make([]list.Item, len(msg.statuses))
		for i, st := range msg.statuses {
			items[i] = memberItem{status: st}
		}
		m.memberList = list.New(items, list.NewDefaultDelegate(), m.width-4, m.height-8)
		m.memberList.Title = "Members"
		return m, nil

	case videosLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.currentMID = msg.mid
		m.currentName = msg.name
		m.searching = false
		m.setVideoList(msg.name, msg.videos)
		m.view = VideoListView
		return m, nil

	case searchDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.searching = true
		m.setVideoList(fmt.Sprintf("Search: %s", msg.pattern), msg.videos)
		m.view = VideoListView
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("refresh failed: %v", msg.err))
			return m, nil
		}
		if msg.new < 0 {
			m.status = styles.ok.Render("refresh complete")
		} else {
			m.status = styles.ok.Render(fmt.Sprintf("%d new videos", msg.new))
		}
		if m.view == VideoListView && m.currentMID == msg.mid {
			return m, m.loadVideos(msg.mid, m.currentName)
		}
		return m, m.loadStatuses()

	case playStartedMsg:
		if msg.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("play failed: %v", msg.err))
			return m, nil
		}
		m.status = styles.ok.Render("playing " + msg.bvid)
		if m.currentMID != 0 && !m.searching {
			return m, m.loadVideos(m.currentMID, m.currentName)
		}
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case MemberListView:
		return m.renderMemberList()
	case VideoListView:
		return m.renderVideoList()
	case SearchView:
		return m.renderSearch()
	default:
		return ""
	}
}

func (m *Model) handleMemberListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/":
		m.search.SetValue("")
		m.view = SearchView
		return m, m.search.Focus()
	case "enter":
		if st, ok := m.selectedMember(); ok {
			return m, m.loadVideos(st.MID, st.Name)
		}
	case "r":
		if st, ok := m.selectedMember(); ok {
			m.status = styles.warn.Render("refreshing " + st.Name)
			return m, m.refreshMember(st.MID)
		}
	case "R":
		m.status = styles.warn.Render("refreshing all members")
		return m, m.refreshAll()
	case "c":
		if st, ok := m.selectedMember(); ok {
			return m, m.catchUp(st.MID)
		}
	}

	var cmd tea.Cmd
	m.memberList, cmd = m.memberList.Update(msg)
	return m, cmd
}

func (m *Model) handleVideoListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = MemberListView
		return m, m.loadStatuses()
	case "enter", "p":
		if v, ok := m.selectedVideo(); ok {
			return m, m.playVideo(v)
		}
	case "v":
		if v, ok := m.selectedVideo(); ok {
			return m, m.toggleVisited(v)
		}
	case "r":
		if m.currentMID != 0 && !m.searching {
			m.status = styles.warn.Render("refreshing " + m.currentName)
			return m, m.refreshMember(m.currentMID)
		}
	}

	var cmd tea.Cmd
	m.videoList, cmd = m.videoList.Update(msg)
	return m, cmd
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = MemberListView
		return m, nil
	case "enter":
		pattern := m.search.Value()
		if pattern == "" {
			return m, nil
		}
		return m, m.runSearch(pattern)
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case MemberListView:
		m.memberList, cmd = m.memberList.Update(msg)
	case VideoListView:
		m.videoList, cmd = m.videoList.Update(msg)
	}
	return m, cmd
}

func (m *Model) selectedMember() (models.MemberStatus, bool) {
	if item, ok := m.memberList.SelectedItem().(memberItem); ok {
		return item.status, true
	}
	return models.MemberStatus{}, false
}

func (m *Model) selectedVideo() (models.Video, bool) {
	if item, ok := m.videoList.SelectedItem().(videoItem); ok {
		return item.video, true
	}
	return models.Video{}, false
}

func (m *Model) setVideoList(title string, videos []models.Video) {
	items := make([]list.Item, len(videos))
	for i, v := range videos {
		items[i] = videoItem{video: v}
	}
	m.videoList = list.New(items, list.NewDefaultDelegate(), m.width-4, m.height-8)
	m.videoList.Title = title
}

func (m *Model) loadStatuses() tea.Cmd {
	return func() tea.Msg {
		statuses, err := m.store.MemberStatusAll()
		return statusesLoadedMsg{statuses: statuses, err: err}
	}
}

func (m *Model) loadVideos(mid int64, name string) tea.Cmd {
	return func() tea.Msg {
		videos, err := m.store.MemberVideos(mid, -1, -1)
		return videosLoadedMsg{mid: mid, name: name, videos: videos, err: err}
	}
}

func (m *Model) runSearch(pattern string) tea.Cmd {
	return func() tea.Msg {
		videos, err := m.store.MatchedVideos(pattern, 0)
		return searchDoneMsg{pattern: pattern, videos: videos, err: err}
	}
}

func (m *Model) refreshMember(mid int64) tea.Cmd {
	return func() tea.Msg {
		videos, err := m.engine.RefreshMember(m.ctx, mid)
		return refreshDoneMsg{mid: mid, new: len(videos), err: err}
	}
}

func (m *Model) refreshAll() tea.Cmd {
	return func() tea.Msg {
		members, err := m.store.MemberList()
		if err != nil {
			return refreshDoneMsg{err: err}
		}
		mids := make([]int64, len(members))
		for i, member := range members {
			mids[i] = member.MID
		}
		if err := m.engine.RefreshAll(m.ctx, mids...); err != nil {
			return refreshDoneMsg{err: err}
		}
		return refreshDoneMsg{new: -1}
	}
}

func (m *Model) catchUp(mid int64) tea.Cmd {
	return func() tea.Msg {
		if err := m.engine.CatchUpMember(mid); err != nil {
			return refreshDoneMsg{mid: mid, err: err}
		}
		return refreshDoneMsg{mid: mid}
	}
}

func (m *Model) playVideo(v models.Video) tea.Cmd {
	return func() tea.Msg {
		if m.player == nil {
			return playStartedMsg{bvid: v.BVID, err: fmt.Errorf("no player configured")}
		}
		if _, err := m.player.Play(bilibili.VideoURL(v.BVID)); err != nil {
			return playStartedMsg{bvid: v.BVID, err: err}
		}
		if err := m.engine.SetVideoVisited(v.BVID, true); err != nil {
			return playStartedMsg{bvid: v.BVID, err: err}
		}
		return playStartedMsg{bvid: v.BVID}
	}
}

func (m *Model) toggleVisited(v models.Video) tea.Cmd {
	return func() tea.Msg {
		if err := m.engine.SetVideoVisited(v.BVID, !v.Visited); err != nil {
			return refreshDoneMsg{mid: v.MID, err: err}
		}
		videos, err := m.store.MemberVideos(m.currentMID, -1, -1)
		return videosLoadedMsg{mid: m.currentMID, name: m.currentName, videos: videos, err: err}
	}
}

func (m *Model) renderMemberList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.refresh, m.keys.syncAll, m.keys.search, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n%s", m.memberList.View(), m.status, helpView)
}

func (m *Model) renderVideoList() string {
	helpKeys := []key.Binding{m.keys.play, m.keys.visited, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n%s", m.videoList.View(), m.status, helpView)
}

func (m *Model) renderSearch() string {
	title := styles.title.Render("Search Videos")
	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n\n%s", title, m.search.View(), helpView)
}
