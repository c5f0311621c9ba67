package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// StatusArchived marks roster pages that are no longer tracked.
const StatusArchived = "Archived"

// QueryAll fetches all pages from a Notion database, handling pagination.
// The next page is fetched in the background while the current one is
// collected.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	newReq := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error

		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, newReq(""))
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			break
		}

		next := newReq(resp.NextCursor)
		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, next)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

// QueryRoster fetches every roster page whose Status is not Archived,
// oldest first.
func QueryRoster(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Select: &notionapi.SelectFilterCondition{
				DoesNotEqual: StatusArchived,
			},
		},
		Sorts: []notionapi.SortObject{{
			Timestamp: notionapi.TimestampCreated,
			Direction: notionapi.SortOrderASC,
		}},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query roster")
	}
	return pages, nil
}

// Text returns the plain text of a title, rich text, email, url, phone or
// select property. Missing and unsupported properties yield "".
func Text(props notionapi.Properties, name string) string {
	prop, ok := props[name]
	if !ok {
		return ""
	}
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case *notionapi.EmailProperty:
		return strings.TrimSpace(p.Email)
	case *notionapi.URLProperty:
		return strings.TrimSpace(p.URL)
	case *notionapi.PhoneNumberProperty:
		return strings.TrimSpace(p.PhoneNumber)
	case *notionapi.SelectProperty:
		return strings.TrimSpace(p.Select.Name)
	default:
		return ""
	}
}

// List returns multi-select option names, or the text of any property Text
// understands as a single-element list.
func List(props notionapi.Properties, name string) []string {
	if p, ok := props[name].(*notionapi.MultiSelectProperty); ok {
		out := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			if n := strings.TrimSpace(o.Name); n != "" {
				out = append(out, n)
			}
		}
		return out
	}
	if s := Text(props, name); s != "" {
		return []string{s}
	}
	return nil
}

// plainText concatenates the plain_text values from a slice of RichText.
func plainText(rts []notionapi.RichText) string {
	var sb strings.Builder
	for _, rt := range rts {
		sb.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(sb.String())
}
