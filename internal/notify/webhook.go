// Package notify sends Discord/Telegram notifications for proxy events.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/p3d-network/p3d-pool-proxy/internal/util"
)

// WebhookConfig holds webhook configuration
type WebhookConfig struct {
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	Enabled      bool   `mapstructure:"enabled"`
	ProxyName    string `mapstructure:"proxy_name"`
}

// Retry configuration
const (
	MaxRetries     = 3
	RetryBaseDelay = 2 * time.Second
)

// Notifier handles sending notifications
type Notifier struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewNotifier creates a new notifier
func NewNotifier(cfg *WebhookConfig) *Notifier {
	return &Notifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyWinningShare announces a share whose difficulty cleared the node's
// win_difficulty threshold — the proxy's equivalent of a block find.
func (n *Notifier) NotifyWinningShare(wallet, rig string, difficulty, winDifficulty uint64) {
	if !n.cfg.Enabled {
		return
	}

	if n.cfg.DiscordURL != "" {
		go n.sendDiscordWinNotification(wallet, rig, difficulty, winDifficulty)
	}

	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		go n.sendTelegramWinNotification(wallet, rig, difficulty, winDifficulty)
	}
}

// NotifyNodeDown announces that an upstream node has gone unhealthy after
// repeated request failures.
func (n *Notifier) NotifyNodeDown(url string) {
	if !n.cfg.Enabled {
		return
	}

	if n.cfg.DiscordURL != "" {
		go n.sendDiscordNodeDownNotification(url)
	}

	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		go n.sendTelegramNodeDownNotification(url)
	}
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

// DiscordField represents a field in a Discord embed
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter represents the footer of a Discord embed
type DiscordFooter struct {
	Text string `json:"text"`
}

// DiscordMessage represents a Discord webhook message
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// sendDiscordWinNotification sends a winning-share notification to Discord
func (n *Notifier) sendDiscordWinNotification(wallet, rig string, difficulty, winDifficulty uint64) {
	var effort float64
	if winDifficulty > 0 {
		effort = (float64(difficulty) / float64(winDifficulty)) * 100
	}

	embed := DiscordEmbed{
		Title:       "Winning Share!",
		Description: fmt.Sprintf("**%s** cleared the win threshold", n.cfg.ProxyName),
		Color:       0x00FF00, // Green
		Fields: []DiscordField{
			{Name: "Wallet", Value: truncateAddress(wallet), Inline: true},
			{Name: "Rig", Value: rig, Inline: true},
			{Name: "Difficulty", Value: fmt.Sprintf("%d", difficulty), Inline: true},
			{Name: "Win Difficulty", Value: fmt.Sprintf("%d", winDifficulty), Inline: true},
			{Name: "Margin", Value: fmt.Sprintf("%.2f%%", effort), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer: &DiscordFooter{
			Text: n.cfg.ProxyName,
		},
	}

	msg := DiscordMessage{
		Embeds: []DiscordEmbed{embed},
	}

	n.sendDiscordMessageWithRetry(msg)
}

// sendDiscordNodeDownNotification sends a node-health alert to Discord
func (n *Notifier) sendDiscordNodeDownNotification(url string) {
	embed := DiscordEmbed{
		Title:       "Node Unreachable",
		Description: fmt.Sprintf("**%s** lost its upstream node", n.cfg.ProxyName),
		Color:       0xFF0000, // Red
		Fields: []DiscordField{
			{Name: "Node", Value: url, Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer: &DiscordFooter{
			Text: n.cfg.ProxyName,
		},
	}

	msg := DiscordMessage{
		Embeds: []DiscordEmbed{embed},
	}

	n.sendDiscordMessageWithRetry(msg)
}

// sendDiscordMessageWithRetry sends a message to Discord with exponential backoff retry
func (n *Notifier) sendDiscordMessageWithRetry(msg DiscordMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("Failed to marshal Discord message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2s, 4s
			delay := RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		resp, err := n.client.Post(n.cfg.DiscordURL, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}

		resp.Body.Close()

		if resp.StatusCode < 400 {
			return // Success
		}

		// Rate limited - wait longer
		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("Failed to send Discord notification after %d attempts: %v", MaxRetries, lastErr)
	}
}

// TelegramMessage represents a Telegram bot message
type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// sendTelegramWinNotification sends a winning-share notification to Telegram
func (n *Notifier) sendTelegramWinNotification(wallet, rig string, difficulty, winDifficulty uint64) {
	var effort float64
	if winDifficulty > 0 {
		effort = (float64(difficulty) / float64(winDifficulty)) * 100
	}

	text := fmt.Sprintf(
		"*Winning Share!*\n\n"+
			"Wallet: `%s`\n"+
			"Rig: `%s`\n"+
			"Difficulty: `%d`\n"+
			"Win Difficulty: `%d`\n"+
			"Margin: `%.2f%%`",
		truncateAddress(wallet), rig, difficulty, winDifficulty, effort,
	)

	n.sendTelegramMessageWithRetry(text)
}

// sendTelegramNodeDownNotification sends a node-health alert to Telegram
func (n *Notifier) sendTelegramNodeDownNotification(url string) {
	text := fmt.Sprintf(
		"*Node Unreachable*\n\n"+
			"Node: `%s`",
		url,
	)

	n.sendTelegramMessageWithRetry(text)
}

// sendTelegramMessageWithRetry sends a message via Telegram with exponential backoff retry
func (n *Notifier) sendTelegramMessageWithRetry(text string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBot)

	msg := TelegramMessage{
		ChatID:    n.cfg.TelegramChat,
		Text:      text,
		ParseMode: "Markdown",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("Failed to marshal Telegram message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			delay := RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}

		resp.Body.Close()

		if resp.StatusCode < 400 {
			return // Success
		}

		// Rate limited
		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("Failed to send Telegram notification after %d attempts: %v", MaxRetries, lastErr)
	}
}

// truncateAddress returns a shortened address for display
func truncateAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-6:]
}
