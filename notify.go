package main

import (
	"log"
	"sync"

	"github.com/slack-go/slack"
)

// Notifier is where user-facing notices land. The desk front-end renders
// them as toasts; headless runs log them, and a lab channel can mirror
// them when Slack is configured.
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

type LogNotifier struct{}

func (LogNotifier) Success(msg string) { log.Printf("ok: %s", msg) }
func (LogNotifier) Error(msg string)   { log.Printf("error: %s", msg) }
func (LogNotifier) Info(msg string)    { log.Printf("info: %s", msg) }

// SlackNotifier posts notices to the configured lab channel and falls
// back to the log when posting fails.
type SlackNotifier struct {
	api       *slack.Client
	channelID string
}

func NewSlackNotifier(cfg Config) *SlackNotifier {
	return &SlackNotifier{
		api:       slack.New(cfg.SlackBotToken),
		channelID: cfg.NotifyChannelID,
	}
}

func (n *SlackNotifier) Success(msg string) { n.post(msg) }
func (n *SlackNotifier) Error(msg string)   { n.post("Error: " + msg) }
func (n *SlackNotifier) Info(msg string)    { n.post(msg) }

func (n *SlackNotifier) post(msg string) {
	_, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(msg, false))
	if err != nil {
		log.Printf("slack notify error: %v (message was: %s)", err, msg)
	}
}

func NewNotifier(cfg Config) Notifier {
	if cfg.SlackConfigured() {
		return NewSlackNotifier(cfg)
	}
	return LogNotifier{}
}

// NotifyRegistry remembers which draft keys already produced a
// "draft restored" notice this session, so reopening the same form does
// not re-announce the restore. Cleared only by process restart.
type NotifyRegistry struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewNotifyRegistry() *NotifyRegistry {
	return &NotifyRegistry{seen: make(map[string]bool)}
}

// FirstTime reports whether key has not been seen before, marking it seen.
func (r *NotifyRegistry) FirstTime(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[key] {
		return false
	}
	r.seen[key] = true
	return true
}
