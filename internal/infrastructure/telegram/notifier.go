package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medassess/internal/domain"
	"medassess/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier renders analysis summaries as Markdown messages and sends them to
// a Telegram chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishAnalysis posts a Markdown message describing one completed analysis.
func (n *Notifier) PublishAnalysis(ctx context.Context, summary domain.AnalysisSummary) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", renderMessage(summary))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// renderMessage formats one analysis summary; recommendations are capped so a
// verbose model response cannot flood the chat.
func renderMessage(s domain.AnalysisSummary) string {
	const maxRecommendations = 5

	var sb strings.Builder

	title := s.Title
	if title == "" {
		title = s.DocumentID
	}
	fmt.Fprintf(&sb, "*Документ:* %s\n", title)

	if s.ArticleNumber == "" {
		sb.WriteString("Статья расписания не определена.\n")
	} else {
		fmt.Fprintf(&sb, "*Статья:* %s", s.ArticleNumber)
		if s.Category != "" {
			fmt.Fprintf(&sb, " (категория %s)", s.Category)
		}
		fmt.Fprintf(&sb, "\n*Уверенность:* %d%%\n", s.Confidence)
	}

	if len(s.Recommendations) > 0 {
		sb.WriteString("*Рекомендации:*\n")
		for i, rec := range s.Recommendations {
			if i == maxRecommendations {
				fmt.Fprintf(&sb, "…и ещё %d\n", len(s.Recommendations)-maxRecommendations)
				break
			}
			fmt.Fprintf(&sb, "• %s\n", rec)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
