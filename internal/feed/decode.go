// Package feed はホームセクションのフィードペイロードの取得・デコードと、
// APIサーバー側で保持する現在のフィードを提供する。
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/cardfeed/internal/model"
)

// ErrDecode はペイロードのデコード失敗を表す。
var ErrDecode = errors.New("decode feed payload")

// DecodeRoots はフィードAPIのレスポンス（FeedRootの配列）をデコードする。
// 未知のデザインタイプを含む場合はErrDecodeを返す。
func DecodeRoots(payload []byte) ([]model.FeedRoot, error) {
	var roots []model.FeedRoot
	if err := json.Unmarshal(payload, &roots); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return roots, nil
}

// Decode はフィードAPIのレスポンスから先頭要素のhc_groupsを取り出す。
// 配列が空の場合、またはhc_groupsが無い場合は空のリストを返す。
func Decode(payload []byte) ([]model.CardGroup, error) {
	roots, err := DecodeRoots(payload)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 || roots[0].HCGroups == nil {
		return []model.CardGroup{}, nil
	}
	return roots[0].HCGroups, nil
}

// EncodeGroups はスナップショット保存用にCardGroup列をエンコードする。
func EncodeGroups(groups []model.CardGroup) ([]byte, error) {
	if groups == nil {
		groups = []model.CardGroup{}
	}
	b, err := json.Marshal(groups)
	if err != nil {
		return nil, fmt.Errorf("encode card groups: %w", err)
	}
	return b, nil
}

// DecodeGroups はスナップショットに保存されたCardGroup列をデコードする。
func DecodeGroups(payload []byte) ([]model.CardGroup, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return []model.CardGroup{}, nil
	}
	var groups []model.CardGroup
	if err := json.Unmarshal(payload, &groups); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if groups == nil {
		groups = []model.CardGroup{}
	}
	return groups, nil
}

// CountCards はグループ全体のカード数を返す。
func CountCards(groups []model.CardGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Cards)
	}
	return n
}

// ImageURLs はグループ内のカードが参照する背景画像とアイコンのURLを重複なく返す。
// 出現順を保持する。
func ImageURLs(groups []model.CardGroup) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, g := range groups {
		for _, c := range g.Cards {
			add(c.BgImage.URLOrEmpty())
			add(c.Icon.URLOrEmpty())
		}
	}
	return urls
}
