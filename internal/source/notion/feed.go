package notion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kurakb/kura/internal/log"
	"github.com/kurakb/kura/internal/source"
)

// Feed adapts the Notion API to the source.Feed contract. Document IDs are
// prefixed with "notion_" so they stay unique across feeds.
type Feed struct {
	client  *Client
	maxDocs int
	logger  log.Logger
}

// NewFeed creates a Notion feed. maxDocs limits how many pages one listing
// returns, zero means unlimited.
func NewFeed(client *Client, maxDocs int, logger log.Logger) *Feed {
	return &Feed{client: client, maxDocs: maxDocs, logger: logger}
}

// Name identifies the feed in logs and error messages.
func (f *Feed) Name() string {
	return "notion"
}

// Documents lists pages edited strictly after since. A page whose content
// cannot be fetched is skipped with a warning; pages fetched before a search
// failure are returned alongside the error.
func (f *Feed) Documents(ctx context.Context, since time.Time) ([]source.Document, error) {
	pages, searchErr := f.client.Search(ctx, "")

	var docs []source.Document
	for _, page := range pages {
		if !page.LastEditedTime.After(since) {
			continue
		}
		if f.maxDocs > 0 && len(docs) >= f.maxDocs {
			f.logger.Info("reached page limit",
				"max_docs", f.maxDocs,
				"total_found", len(pages))
			break
		}

		blocks, err := f.client.GetBlockChildren(ctx, page.ID)
		if err != nil {
			f.logger.Warn("failed to get page content, skipping",
				"page_id", page.ID,
				"error", err)
			continue
		}

		content := ExtractText(blocks)
		if strings.TrimSpace(content) == "" {
			continue
		}

		docs = append(docs, source.Document{
			ID:              "notion_" + page.ID,
			Title:           ExtractPageTitle(&page),
			Content:         content,
			SourceTimestamp: page.LastEditedTime,
			ContentHash:     source.Hash(content),
		})
	}

	if searchErr != nil {
		return docs, fmt.Errorf("notion feed: %w", errors.Join(source.ErrSource, searchErr))
	}
	return docs, nil
}

// ExtractText extracts plain text from an array of blocks.
//
// Supported block types: paragraph, heading_1/2/3, bulleted_list_item,
// numbered_list_item, code, quote, callout, to_do.
func ExtractText(blocks []Block) string {
	var builder strings.Builder

	for _, block := range blocks {
		var text string

		switch block.Type {
		case "paragraph":
			if block.Paragraph != nil {
				text = extractRichText(block.Paragraph.RichText)
			}
		case "heading_1":
			if block.Heading1 != nil {
				text = "# " + extractRichText(block.Heading1.RichText)
			}
		case "heading_2":
			if block.Heading2 != nil {
				text = "## " + extractRichText(block.Heading2.RichText)
			}
		case "heading_3":
			if block.Heading3 != nil {
				text = "### " + extractRichText(block.Heading3.RichText)
			}
		case "bulleted_list_item":
			if block.BulletedListItem != nil {
				text = "• " + extractRichText(block.BulletedListItem.RichText)
			}
		case "numbered_list_item":
			if block.NumberedListItem != nil {
				text = "- " + extractRichText(block.NumberedListItem.RichText)
			}
		case "code":
			if block.Code != nil {
				text = fmt.Sprintf("```%s\n%s\n```",
					block.Code.Language, extractRichText(block.Code.RichText))
			}
		case "quote":
			if block.Quote != nil {
				text = "> " + extractRichText(block.Quote.RichText)
			}
		case "callout":
			if block.Callout != nil {
				text = extractRichText(block.Callout.RichText)
			}
		case "to_do":
			if block.ToDo != nil {
				checkbox := "[ ]"
				if block.ToDo.Checked {
					checkbox = "[x]"
				}
				text = checkbox + " " + extractRichText(block.ToDo.RichText)
			}
		default:
			// Unsupported block type, skip silently
			continue
		}

		if text != "" {
			builder.WriteString(text)
			builder.WriteString("\n\n")
		}
	}

	return strings.TrimSpace(builder.String())
}

func extractRichText(richTexts []RichText) string {
	var parts []string
	for _, rt := range richTexts {
		parts = append(parts, rt.PlainText)
	}
	return strings.Join(parts, "")
}

// ExtractPageTitle extracts the title from a page, falling back to the page
// ID when no title property exists.
func ExtractPageTitle(page *Page) string {
	// The title property can have any name, but its type is always "title".
	for _, prop := range page.Properties {
		if prop.Type == "title" && len(prop.Title) > 0 {
			return extractRichText(prop.Title)
		}
	}
	return "Untitled (ID: " + page.ID + ")"
}
