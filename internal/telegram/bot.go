// Package telegram provides the Telegram bot interface for capwatch.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// BotConfig contains bot configuration options
type BotConfig struct {
	// Token is the Telegram bot token from @BotFather
	Token string

	// Debug enables verbose logging
	Debug bool

	// WorkerPoolSize is the number of concurrent update handlers (default: 50)
	WorkerPoolSize int

	// UpdateQueueSize is the max pending updates before backpressure (default: 500)
	UpdateQueueSize int
}

// Handler reacts to user commands and free text. Calls for one user are
// serialized by the bot.
type Handler interface {
	Start(ctx context.Context, userID int64, username string)
	Help(ctx context.Context, userID int64)
	ShowAddress(ctx context.Context, userID int64)
	ShowSecret(ctx context.Context, userID int64)
	History(ctx context.Context, userID int64)
	Status(ctx context.Context, userID int64)
	Stats(ctx context.Context, userID int64)
	Confirm(ctx context.Context, userID int64)
	Cancel(ctx context.Context, userID int64)
	HandleText(ctx context.Context, userID int64, text string)
}

// Bot is the main Telegram bot instance
type Bot struct {
	api     *tgbotapi.BotAPI
	config  BotConfig
	handler Handler

	// Telegram allows roughly 30 messages per second per bot
	sendLimiter *rate.Limiter

	// stopCh signals the bot to stop
	stopCh   chan struct{}
	stopOnce sync.Once

	// Worker pool for bounded concurrency
	updateQueue chan tgbotapi.Update
	workerWg    sync.WaitGroup

	// Per-user locks for serializing updates (prevents race conditions)
	userLocks   map[int64]*sync.Mutex
	userLocksMu sync.Mutex
}

// NewBot creates a new Telegram bot instance
func NewBot(config BotConfig) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	api.Debug = config.Debug

	bot := newBot(config)
	bot.api = api

	// Register bot commands so users can tap them (Telegram command list UI)
	bot.registerBotCommands()

	logrus.WithFields(logrus.Fields{
		"username": api.Self.UserName,
		"workers":  bot.config.WorkerPoolSize,
		"queue":    bot.config.UpdateQueueSize,
	}).Info("bot authenticated")
	return bot, nil
}

func newBot(config BotConfig) *Bot {
	// Apply worker pool defaults
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 50
	}
	if config.UpdateQueueSize <= 0 {
		config.UpdateQueueSize = 500
	}

	return &Bot{
		config:      config,
		sendLimiter: rate.NewLimiter(rate.Limit(25), 5),
		stopCh:      make(chan struct{}),
		updateQueue: make(chan tgbotapi.Update, config.UpdateQueueSize),
		userLocks:   make(map[int64]*sync.Mutex),
	}
}

// SetHandler attaches the handler that receives user input. Must be called
// before Start.
func (b *Bot) SetHandler(h Handler) {
	b.handler = h
}

func (b *Bot) registerBotCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Create your wallet"},
		{Command: "help", Description: "Show all commands"},
		{Command: "myaddy", Description: "Show your wallet address"},
		{Command: "mypkey", Description: "Show your wallet private key"},
		{Command: "status", Description: "Check the trade being monitored"},
		{Command: "confirm", Description: "Execute the entered trade"},
		{Command: "cancel", Description: "Cancel the current trade"},
		{Command: "tradehistory", Description: "View recent trades"},
		{Command: "stats", Description: "Summary of your trades"},
	}

	_, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...))
	if err != nil {
		logrus.WithError(err).Warn("failed to set bot commands")
	}
}

// Start starts the bot and blocks until context is cancelled
func (b *Bot) Start(ctx context.Context) error {
	if b.handler == nil {
		return fmt.Errorf("bot has no handler")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	// Start worker pool
	for i := 0; i < b.config.WorkerPoolSize; i++ {
		b.workerWg.Add(1)
		go b.updateWorker(ctx)
	}

	// Dispatch updates to worker pool
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			close(b.updateQueue)
			b.workerWg.Wait()
			return ctx.Err()

		case <-b.stopCh:
			b.api.StopReceivingUpdates()
			close(b.updateQueue)
			b.workerWg.Wait()
			return nil

		case update := <-updates:
			// Non-blocking send with backpressure handling
			select {
			case b.updateQueue <- update:
			default:
				// Queue full - block briefly then drop if still full
				select {
				case b.updateQueue <- update:
				case <-time.After(100 * time.Millisecond):
					logrus.WithField("user_id", getUserIDFromUpdate(update)).Warn("update queue full, dropping update")
				}
			}
		}
	}
}

// updateWorker processes updates from the queue
func (b *Bot) updateWorker(ctx context.Context) {
	defer b.workerWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-b.updateQueue:
			if !ok {
				return // Queue closed
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// getUserIDFromUpdate extracts user ID from an update for logging
func getUserIDFromUpdate(update tgbotapi.Update) int64 {
	if update.Message != nil && update.Message.From != nil {
		return update.Message.From.ID
	}
	return 0
}

// Stop stops the bot
func (b *Bot) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// getUserLock returns a per-user mutex for serializing that user's updates
func (b *Bot) getUserLock(userID int64) *sync.Mutex {
	b.userLocksMu.Lock()
	defer b.userLocksMu.Unlock()

	lock, exists := b.userLocks[userID]
	if !exists {
		lock = &sync.Mutex{}
		b.userLocks[userID] = lock
	}
	return lock
}

// handleUpdate routes incoming updates to appropriate handlers
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("panic in update handler")
		}
	}()

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	// Sessions are per user; replies go to the user's private chat
	if !msg.Chat.IsPrivate() {
		return
	}

	// Acquire per-user lock to serialize updates for the same user
	userID := msg.From.ID
	userLock := b.getUserLock(userID)
	userLock.Lock()
	defer userLock.Unlock()

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.handleTextMessage(ctx, msg)
}

// handleCommand routes commands to their handlers
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	command := strings.ToLower(msg.Command())

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"command": command,
	}).Debug("command received")

	switch command {
	case "start":
		b.handler.Start(ctx, userID, msg.From.UserName)

	case "help":
		b.handler.Help(ctx, userID)

	case "myaddy":
		b.handler.ShowAddress(ctx, userID)

	case "mypkey":
		// Keep the request out of the chat history next to the reply
		b.deleteMessage(msg.Chat.ID, msg.MessageID)
		b.handler.ShowSecret(ctx, userID)

	case "tradehistory":
		b.handler.History(ctx, userID)

	case "status":
		b.handler.Status(ctx, userID)

	case "stats":
		b.handler.Stats(ctx, userID)

	case "confirm":
		b.handler.Confirm(ctx, userID)

	case "cancel":
		b.handler.Cancel(ctx, userID)

	default:
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("❓ Unknown command /%s. Use /help to see available commands.", escapeHTML(msg.Command())))
	}
}

// handleTextMessage handles non-command text messages
func (b *Bot) handleTextMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	b.handler.HandleText(ctx, msg.From.ID, text)
}

// Send delivers a message to a user's private chat
func (b *Bot) Send(userID int64, text string) {
	b.sendMessage(userID, text)
}

// SendEphemeral sends a message that is deleted after ttl
func (b *Bot) SendEphemeral(userID int64, text string, ttl time.Duration) {
	if ttl <= 0 {
		b.sendMessage(userID, text)
		return
	}
	b.sendAndDelete(userID, text, ttl)
}

// sendMessage sends a text message
func (b *Bot) sendMessage(chatID int64, text string) int {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if err := b.sendLimiter.Wait(context.Background()); err != nil {
		logrus.WithError(err).Warn("send limiter")
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		logrus.WithError(err).WithField("chat_id", chatID).Warn("failed to send message")
		return 0
	}
	return sent.MessageID
}

// deleteMessage deletes a message (for removing sensitive data)
func (b *Bot) deleteMessage(chatID int64, messageID int) {
	del := tgbotapi.NewDeleteMessage(chatID, messageID)
	if _, err := b.api.Request(del); err != nil {
		logrus.WithError(err).WithField("chat_id", chatID).Warn("failed to delete message")
	}
}

// sendAndDelete sends a message that auto-deletes after a delay
func (b *Bot) sendAndDelete(chatID int64, text string, delay time.Duration) {
	msgID := b.sendMessage(chatID, text)
	if msgID > 0 {
		go func() {
			time.Sleep(delay)
			b.deleteMessage(chatID, msgID)
		}()
	}
}
