/*
hmi.go Terminal console for a running powernet. It follows the web service's
stream and shows one row per live graph plus recent topology events.
*/

package hmi

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
)

const logo = `
 ____   ___  _      _  ___ ____  _  _  ___ _____
|  _ \ / _ \| | /\ | || __|  _ \| \| || __|_   _|
|  __/| (_) | |/  \| || _||    /| .  || _|  | |
|_|    \___/|__/\__|_||___|_|\_\|_|\_||___| |_|
`

// Page builds one page of the console.
type Page func(*tview.Pages) (title string, content tview.Primitive)

// Console is the tview application bound to a Board.
type Console struct {
	app    *tview.Application
	board  *Board
	table  *tview.Table
	events *tview.TextView
}

// NewConsole lays out the splash and overview pages.
func NewConsole(board *Board) *Console {
	c := &Console{
		app:   tview.NewApplication(),
		board: board,
	}

	pages := tview.NewPages()
	for _, page := range []Page{c.Splash, c.Overview} {
		title, primitive := page(pages)
		pages.AddPage(title, primitive, true, title == "Splash")
	}
	c.app.SetRoot(pages, true)
	return c
}

// Run blocks until the operator quits.
func (c *Console) Run() error {
	return c.app.Run()
}

// Refresh redraws the table and event log every interval until stop closes.
func (c *Console) Refresh(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.app.QueueUpdateDraw(c.draw)
		case <-stop:
			return
		}
	}
}

func (c *Console) draw() {
	fill(c.table, c.board.Rows())
	c.events.SetText(strings.Join(c.board.Events(), "\n"))
	c.events.ScrollToEnd()
}

// Stop ends Run.
func (c *Console) Stop() {
	c.app.Stop()
}

// Splash shows the logo until enter is pressed.
func (c *Console) Splash(pages *tview.Pages) (title string, content tview.Primitive) {
	lines := strings.Split(logo, "\n")
	logoWidth := 0
	for _, line := range lines {
		if len(line) > logoWidth {
			logoWidth = len(line)
		}
	}
	logoBox := tview.NewTextView().
		SetTextColor(tcell.ColorBlue).
		SetDoneFunc(func(key tcell.Key) {
			pages.SwitchToPage("Overview")
		})
	fmt.Fprint(logoBox, logo)

	frame := tview.NewFrame(tview.NewBox()).
		SetBorders(0, 0, 0, 0, 0, 0).
		AddText("powernet console", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("press enter", true, tview.AlignCenter, tcell.ColorDarkMagenta)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tview.NewBox(), 0, 5, false).
		AddItem(tview.NewFlex().
			AddItem(tview.NewBox(), 0, 1, false).
			AddItem(logoBox, logoWidth, 1, true).
			AddItem(tview.NewBox(), 0, 1, false), len(lines), 1, true).
		AddItem(frame, 0, 10, false)

	return "Splash", flex
}

// Overview shows the graph table above the event log.
func (c *Console) Overview(pages *tview.Pages) (title string, content tview.Primitive) {
	c.table = tview.NewTable().
		SetFixed(1, 1).
		SetBorders(false).
		SetSelectable(true, false).
		SetSeparator(' ')
	c.table.SetBorder(true).SetTitle(" Graphs ")
	fill(c.table, nil)

	c.events = tview.NewTextView().
		SetDynamicColors(false)
	c.events.SetBorder(true).SetTitle(" Topology ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.table, 0, 3, true).
		AddItem(c.events, 0, 1, false)

	return "Overview", flex
}

func fill(table *tview.Table, rows [][]string) {
	table.Clear()
	for column, name := range Columns {
		table.SetCell(0, column, tview.NewTableCell(name).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	for row, cells := range rows {
		for column, cell := range cells {
			color := tcell.ColorWhite
			if column == 0 {
				color = tcell.ColorDarkCyan
			}
			table.SetCell(row+1, column, tview.NewTableCell(cell).
				SetTextColor(color).
				SetAlign(tview.AlignRight))
		}
	}
}

// Follow reads frames from the stream at url into board until the
// connection drops or stop closes.
func Follow(url string, board *Board, stop <-chan struct{}) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	go func() {
		<-stop
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				return err
			}
		}
		if err := board.Apply(data); err != nil {
			log.Println("[HMI]", err)
		}
	}
}
