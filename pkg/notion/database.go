package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxRichText is Notion's limit on the content of one rich text object.
const maxRichText = 2000

// QueryAll fetches all pages from a Notion database matching filter,
// following pagination cursors.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	for {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}

		next := *req
		next.StartCursor = resp.NextCursor
		req = &next
	}
}

// Exists reports whether any page in dbID has property equal to value. The
// property must be a rich text column.
func Exists(ctx context.Context, c Client, dbID, property, value string) (bool, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			RichText: &notionapi.TextFilterCondition{Equals: value},
		},
		PageSize: 1,
	})
	if err != nil {
		return false, eris.Wrapf(err, "notion: lookup %s", property)
	}
	return len(resp.Results) > 0, nil
}

// Text builds a rich text value, truncated to Notion's per-object limit.
func Text(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > maxRichText {
		s = string(r[:maxRichText])
	}
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

// Paragraph builds a paragraph block holding s.
func Paragraph(s string) notionapi.Block {
	return notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{RichText: Text(s)},
	}
}
