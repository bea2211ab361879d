package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/pkg/notion"
)

// hashProperty is the rich text column that identifies a logged change.
const hashProperty = "Hash"

// NotionPublisher logs each significant change as a page in a Notion
// database. A change already logged with the same content hash is skipped.
type NotionPublisher struct {
	client notion.Client
	dbID   string
}

// NewNotionPublisher creates a NotionPublisher writing to database dbID.
func NewNotionPublisher(client notion.Client, dbID string) *NotionPublisher {
	return &NotionPublisher{client: client, dbID: dbID}
}

func (p *NotionPublisher) Name() string { return "notion" }

// Publish creates one page per significant change. It stops at the first
// API failure.
func (p *NotionPublisher) Publish(ctx context.Context, runs []*model.Run) error {
	created := 0
	for _, run := range runs {
		if run == nil {
			continue
		}
		for _, res := range run.SignificantResults() {
			key := changeKey(res)
			exists, err := notion.Exists(ctx, p.client, p.dbID, hashProperty, key)
			if err != nil {
				return eris.Wrapf(err, "notion: check logged change %s", res.URL)
			}
			if exists {
				continue
			}
			if _, err := p.client.CreatePage(ctx, changePage(p.dbID, run.EntityID, res, key)); err != nil {
				return eris.Wrapf(err, "notion: log change %s", res.URL)
			}
			created++
		}
	}
	zap.L().Info("report: notion change log updated", zap.Int("pages", created))
	return nil
}

// changeKey identifies a change by URL and new content hash.
func changeKey(res model.URLResult) string {
	return res.CurrentHash + ":" + res.URL
}

func changePage(dbID, entityID string, res model.URLResult, key string) *notionapi.PageCreateRequest {
	detected := notionapi.Date(res.CheckedAt)
	if res.CheckedAt.IsZero() {
		detected = notionapi.Date(time.Now())
	}

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: notion.Text(fmt.Sprintf("%s: %s", entityID, ChangeType(res.URL))),
		},
		"Entity":      notionapi.RichTextProperty{RichText: notion.Text(entityID)},
		"URL":         notionapi.URLProperty{URL: res.URL},
		"Change Type": notionapi.SelectProperty{Select: notionapi.Option{Name: ChangeType(res.URL)}},
		"Alert Level": notionapi.SelectProperty{Select: notionapi.Option{Name: AlertLevel(res.Score)}},
		"Detected":    notionapi.DateProperty{Date: &notionapi.DateObject{Start: &detected}},
		hashProperty:  notionapi.RichTextProperty{RichText: notion.Text(key)},
	}
	if res.ChangeMagnitude != nil {
		props["Magnitude"] = notionapi.NumberProperty{Number: *res.ChangeMagnitude}
	}
	if res.Score != nil {
		props["Score"] = notionapi.NumberProperty{Number: float64(res.Score.Score)}
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
		Children:   []notionapi.Block{notion.Paragraph(changeNote(entityID, res))},
	}
}

func changeNote(entityID string, res model.URLResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %s\nURL: %s\n", entityID, res.URL)
	if res.ChangeMagnitude != nil {
		fmt.Fprintf(&sb, "Change magnitude: %.2f%%\n", *res.ChangeMagnitude)
	}
	if res.Score != nil {
		fmt.Fprintf(&sb, "Relevance score: %d/10 (%s)\n", res.Score.Score, res.Score.Method)
		if res.Score.Reasoning != "" {
			fmt.Fprintf(&sb, "Reasoning: %s\n", res.Score.Reasoning)
		}
	}
	if len(res.CriticalKeywords) > 0 {
		fmt.Fprintf(&sb, "Critical keywords: %s\n", strings.Join(res.CriticalKeywords, ", "))
	}
	fmt.Fprintf(&sb, "Previous hash: %s\nNew hash: %s", orNone(res.PreviousHash), res.CurrentHash)
	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
