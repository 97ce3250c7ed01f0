package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medassess/internal/domain"
)

func TestPublishAnalysisSendsRenderedForm(t *testing.T) {
	t.Parallel()

	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.PostForm
	}))
	defer server.Close()

	n := NewNotifier("test-token", "42")
	n.apiBase = server.URL

	err := n.PublishAnalysis(context.Background(), domain.AnalysisSummary{
		DocumentID:      "doc-1",
		Title:           "Выписка от 15.03.2025",
		ArticleNumber:   "68",
		Category:        "В",
		Confidence:      85,
		Recommendations: []string{"рентгенография стоп с нагрузкой"},
	})
	if err != nil {
		t.Fatalf("PublishAnalysis error: %v", err)
	}

	if got := form["chat_id"]; len(got) != 1 || got[0] != "42" {
		t.Fatalf("unexpected chat_id: %v", got)
	}
	if got := form["parse_mode"]; len(got) != 1 || got[0] != "Markdown" {
		t.Fatalf("unexpected parse_mode: %v", got)
	}

	text := strings.Join(form["text"], "")
	for _, want := range []string{"Выписка от 15.03.2025", "68", "категория В", "85%", "рентгенография стоп"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q: %s", want, text)
		}
	}
}

func TestPublishAnalysisReportsAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := NewNotifier("test-token", "42")
	n.apiBase = server.URL

	err := n.PublishAnalysis(context.Background(), domain.AnalysisSummary{DocumentID: "doc-1"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestRenderMessage(t *testing.T) {
	t.Parallel()

	msg := renderMessage(domain.AnalysisSummary{
		DocumentID:    "doc-1",
		ArticleNumber: "",
	})
	if !strings.Contains(msg, "doc-1") {
		t.Fatalf("expected document id as fallback title: %s", msg)
	}
	if !strings.Contains(msg, "не определена") {
		t.Fatalf("expected no-article form: %s", msg)
	}

	msg = renderMessage(domain.AnalysisSummary{
		DocumentID:    "doc-2",
		ArticleNumber: "68",
		Confidence:    85,
		Recommendations: []string{
			"первая", "вторая", "третья", "четвертая", "пятая", "шестая", "седьмая",
		},
	})
	if strings.Contains(msg, "шестая") {
		t.Fatalf("recommendations should be capped: %s", msg)
	}
	if !strings.Contains(msg, "и ещё 2") {
		t.Fatalf("expected overflow marker: %s", msg)
	}
}
