package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/cardfeed/internal/model"
	"github.com/hitoshi/cardfeed/internal/security"
)

// DefaultRSSItems はRSSグループに含める記事数の上限。
const DefaultRSSItems = 10

// maxDescriptionRunes はRSSカードの説明文の最大文字数。
const maxDescriptionRunes = 140

// RSSSource はRSS/Atomフィードを追加のカードグループとして取り込む。
// 生成するグループはSmallWithArrow（HC6）の縦積みで、カードIDを持たない。
type RSSSource struct {
	http      *http.Client
	validator security.URLValidator
	maxItems  int
}

// NewRSSSource はRSSSourceを生成する。
func NewRSSSource(httpClient *http.Client, validator security.URLValidator, maxItems int) *RSSSource {
	if maxItems <= 0 {
		maxItems = DefaultRSSItems
	}
	return &RSSSource{http: httpClient, validator: validator, maxItems: maxItems}
}

// Group は指定URLのフィードを取得し、カードグループに変換する。
func (s *RSSSource) Group(ctx context.Context, url string, groupID int) (model.CardGroup, error) {
	if s.validator != nil {
		if err := s.validator.ValidateURL(url); err != nil {
			return model.CardGroup{}, fmt.Errorf("URL検証に失敗: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.CardGroup{}, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", clientUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := s.http.Do(req)
	if err != nil {
		return model.CardGroup{}, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if outcome := ClassifyHTTPStatus(resp.StatusCode); outcome != OutcomeOK {
		return model.CardGroup{}, &StatusError{StatusCode: resp.StatusCode, Outcome: outcome}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CardGroup{}, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return model.CardGroup{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return GroupFromFeed(parsed, groupID, s.maxItems), nil
}

// GroupFromFeed はパース済みフィードをカードグループに変換する。
func GroupFromFeed(f *gofeed.Feed, groupID, maxItems int) model.CardGroup {
	dt := model.DesignTypeSmallWithArrow
	scrollable := false
	group := model.CardGroup{
		ID:           &groupID,
		DesignType:   &dt,
		IsScrollable: &scrollable,
		Cards:        []model.Card{},
	}
	if f == nil {
		return group
	}
	if title := strings.TrimSpace(f.Title); title != "" {
		group.Name = &title
	}

	for _, item := range f.Items {
		if item == nil {
			continue
		}
		if maxItems > 0 && len(group.Cards) >= maxItems {
			break
		}
		group.Cards = append(group.Cards, cardFromItem(item, f))
	}
	return group
}

func cardFromItem(item *gofeed.Item, f *gofeed.Feed) model.Card {
	var card model.Card

	if title := strings.TrimSpace(item.Title); title != "" {
		card.Title = &title
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}
	if text := truncateRunes(TextFromHTML(summary), maxDescriptionRunes); text != "" {
		card.Description = &text
	}

	link := item.Link
	if link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
		link = item.GUID
	}
	if link != "" {
		card.URL = &link
	}

	iconURL := ""
	if item.Image != nil {
		iconURL = item.Image.URL
	} else if f.Image != nil {
		iconURL = f.Image.URL
	}
	if iconURL != "" {
		card.Icon = &model.CardImage{ImageURL: &iconURL}
	}
	return card
}

// TextFromHTML はHTML断片からテキストのみを取り出し、空白を1つにまとめる。
// script/style要素の中身は含めない。
func TextFromHTML(fragment string) string {
	if fragment == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li":
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
