// Package app is a terminal inbox for the ledger: it shows a user's messages
// as they arrive and sends new ones to a chosen recipient.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"iou_ledger/internal/model"
	"iou_ledger/internal/utils/log"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

type (
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField

		host    string
		keyDir  string
		http    *http.Client
		session string
		privKey []byte

		user   *model.User
		toName string

		conn *websocket.Conn
	}
)

func NewApp(host, keyDir string) *App {
	return &App{
		app:    tview.NewApplication(),
		host:   host,
		keyDir: keyDir,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *App) Run(ctx context.Context, name string) {
	user, err := c.getUserAndCreateIfNotExist(ctx, name)
	if err != nil {
		log.Fatal("get user info failed", zap.Error(err))
	}
	c.user = user

	if err := c.login(ctx, name); err != nil {
		log.Fatal("login failed", zap.Error(err))
	}

	var toName string
	fmt.Print("Enter recipient's name: ")
	_, err = fmt.Scan(&toName) // reads until whitespace
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	c.toName = toName

	c.conn, err = c.initWebhook(c.user.Username)
	if err != nil {
		log.Fatal("init webhook to server failed", zap.Error(err))
	}

	go c.listenOnWebhook()
	go c.showUnread(ctx)
	c.renderUI()
}

func (c *App) Stop() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.app.Stop()
}

// blocking function
func (c *App) renderUI() {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Inbox of %s ", c.user.Username))

	c.input = tview.NewInputField().
		SetLabel(fmt.Sprintf("To %s: ", c.toName)).
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := c.input.GetText()
			if text == "" {
				return
			}

			go func(msg string) {
				err := c.SendMessage(context.Background(), msg)
				if err != nil {
					c.app.QueueUpdateDraw(func() {
						fmt.Fprintf(c.chatbox, "[red]send failed:[-] %v\n", err)
					})
				}
			}(text)
		}
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	if err := c.app.SetRoot(layout, true).SetFocus(c.input).Run(); err != nil {
		log.Fatal("cannot init app", zap.Error(err))
	}
}

func (c *App) listenOnWebhook() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("worker web socket closed", zap.Error(err))
			c.conn.Close()
			break
		}

		var message model.Message
		err = json.Unmarshal(data, &message)
		if err != nil {
			log.Error("Unmarshal message failed", zap.Error(err))
			continue
		}

		c.ReceiveMessage(&message)
	}
}

// showUnread prints messages that arrived while the user was away and marks
// them read.
func (c *App) showUnread(ctx context.Context) {
	var unread []model.Message
	err := c.post(ctx, "/readMessages", map[string]string{"username": c.user.Username}, "messages", &unread)
	if err != nil {
		c.app.QueueUpdateDraw(func() {
			fmt.Fprintf(c.chatbox, "[red]read inbox failed:[-] %v\n", err)
		})
		return
	}
	for i := range unread {
		c.ReceiveMessage(&unread[i])
	}
}

func (c *App) SendMessage(ctx context.Context, msg string) error {
	var sent model.Message
	err := c.post(ctx, "/sendMessage", map[string]string{
		"sender":    c.user.Username,
		"recipient": c.toName,
		"message":   msg,
	}, "message", &sent)
	if err != nil {
		return err
	}

	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, "[yellow]You:[-] %s\n", sent.Message)
		c.input.SetText("")
		c.chatbox.ScrollToEnd()
	})
	return nil
}

func (c *App) ReceiveMessage(message *model.Message) {
	line := formatMessage(message)
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintln(c.chatbox, line)
		c.chatbox.ScrollToEnd()
	})
}

func formatMessage(m *model.Message) string {
	line := fmt.Sprintf("[green]%s:[-] %s", m.Sender, m.Message)
	if m.AttachmentID != nil {
		line += fmt.Sprintf(" [blue](note history %s)[-]", m.AttachmentID.Hex())
	}
	return line
}
