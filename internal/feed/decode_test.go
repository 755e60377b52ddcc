package feed

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hitoshi/cardfeed/internal/model"
)

const samplePayload = `[
  {
    "id": 1,
    "slug": "home",
    "title": "Home",
    "hc_groups": [
      {
        "id": 10,
        "name": "offers",
        "design_type": "HC3",
        "is_scrollable": true,
        "cards": [
          {
            "id": 100,
            "formatted_title": {"text": "Hello {}!", "entities": [{"text": "World", "color": "#FF0000"}]},
            "url": "https://example.com/offer",
            "bg_image": {"image_url": "https://cdn.example.com/a.png"},
            "icon": {"image_url": "https://cdn.example.com/icon.png"}
          }
        ]
      },
      {
        "id": 11,
        "design_type": "HC1",
        "cards": [
          {"id": 101, "title": "Plain", "bg_image": {"image_url": "https://cdn.example.com/a.png"}}
        ]
      }
    ]
  },
  {"id": 2, "hc_groups": [{"id": 99, "cards": []}]}
]`

func TestDecode_TakesFirstRootGroups(t *testing.T) {
	groups, err := Decode([]byte(samplePayload))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if *groups[0].ID != 10 || *groups[1].ID != 11 {
		t.Errorf("group ids = %d, %d", *groups[0].ID, *groups[1].ID)
	}
	if groups[0].DesignTypeOrDefault() != model.DesignTypeBigDisplay {
		t.Errorf("design type = %v", groups[0].DesignTypeOrDefault())
	}
}

func TestDecode_EmptyResponses(t *testing.T) {
	for _, payload := range []string{`[]`, `[{"id": 1}]`, `[{"id": 1, "hc_groups": []}]`} {
		groups, err := Decode([]byte(payload))
		if err != nil {
			t.Errorf("Decode(%s) error: %v", payload, err)
			continue
		}
		if groups == nil || len(groups) != 0 {
			t.Errorf("Decode(%s) = %v, want empty non-nil list", payload, groups)
		}
	}
}

func TestDecode_Failures(t *testing.T) {
	for _, payload := range []string{
		`{"hc_groups": []}`,
		`not json`,
		`[{"id": 1, "hc_groups": [{"design_type": "HC7", "cards": []}]}]`,
	} {
		if _, err := Decode([]byte(payload)); !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(%s) error = %v, want ErrDecode", payload, err)
		}
	}
}

func TestEncodeDecodeGroups_PreservesPayload(t *testing.T) {
	groups, err := Decode([]byte(samplePayload))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	encoded, err := EncodeGroups(groups)
	if err != nil {
		t.Fatalf("EncodeGroups() error: %v", err)
	}
	decoded, err := DecodeGroups(encoded)
	if err != nil {
		t.Fatalf("DecodeGroups() error: %v", err)
	}

	again, _ := EncodeGroups(decoded)
	if string(again) != string(encoded) {
		t.Errorf("re-encoding changed payload:\n%s\n%s", encoded, again)
	}

	// 欠落フィールドはエンコード後も欠落したまま
	var raw []map[string]any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw[1]["is_scrollable"]; ok {
		t.Error("absent is_scrollable must stay absent")
	}
}

func TestEncodeGroups_Nil(t *testing.T) {
	b, err := EncodeGroups(nil)
	if err != nil || string(b) != "[]" {
		t.Errorf("EncodeGroups(nil) = %s, %v", b, err)
	}
}

func TestDecodeGroups_Empty(t *testing.T) {
	groups, err := DecodeGroups([]byte("  "))
	if err != nil || groups == nil || len(groups) != 0 {
		t.Errorf("DecodeGroups(blank) = %v, %v", groups, err)
	}
}

func TestCountCardsAndImageURLs(t *testing.T) {
	groups, _ := Decode([]byte(samplePayload))

	if n := CountCards(groups); n != 2 {
		t.Errorf("CountCards() = %d, want 2", n)
	}

	urls := ImageURLs(groups)
	want := []string{"https://cdn.example.com/a.png", "https://cdn.example.com/icon.png"}
	if len(urls) != len(want) {
		t.Fatalf("ImageURLs() = %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("ImageURLs()[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want Outcome
	}{
		{200, OutcomeOK},
		{304, OutcomeNotModified},
		{404, OutcomeRejected},
		{410, OutcomeRejected},
		{401, OutcomeRejected},
		{403, OutcomeRejected},
		{429, OutcomeBackoff},
		{500, OutcomeBackoff},
		{503, OutcomeBackoff},
		{302, OutcomeUnknown},
		{418, OutcomeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.code); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
