// Package receipts maps OCR analysis documents to expense drafts. OCR
// providers disagree about where the interesting fields live, so the mapping
// probes the known shapes in order and takes the first non-empty hit.
package receipts

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tripsplit/internal/core"
)

type DraftItem struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Qty   int64  `json:"qty"`
}

// ExpenseDraft is the pre-filled expense form derived from a receipt scan.
// The client still picks participants and a split mode before saving.
type ExpenseDraft struct {
	Merchant string      `json:"merchant"`
	PaidAt   string      `json:"paidAt"`
	Total    core.Money  `json:"total"`
	Items    []DraftItem `json:"items"`
}

// ParseAnalysis maps a raw OCR analysis document to an ExpenseDraft.
func ParseAnalysis(data []byte) (ExpenseDraft, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return ExpenseDraft{}, fmt.Errorf("decode analysis: %w", err)
	}

	result := receiptResult(doc)

	draft := ExpenseDraft{
		Merchant: pickString(
			dig(result, "storeInfo", "name", "formatted", "value"),
			dig(result, "storeInfo", "name", "value"),
			dig(result, "merchant", "name"),
			dig(result, "merchantName"),
		),
		PaidAt: pickString(
			dig(result, "paymentInfo", "date", "formatted", "value"),
			dig(result, "paymentInfo", "date", "value"),
			dig(result, "paidAt"),
			dig(result, "date"),
		),
		Total: core.Money{Units: pickAmount(
			dig(result, "totalPrice", "price", "formatted", "value"),
			dig(result, "totalPrice", "price", "value"),
			dig(result, "totalPrice", "formatted", "value"),
			dig(result, "totalPrice", "value"),
			dig(result, "total"),
			dig(result, "amount"),
		)},
	}

	for _, raw := range itemList(result) {
		it, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := pickString(
			dig(it, "name", "formatted", "value"),
			dig(it, "name", "value"),
			dig(it, "name"),
		)
		if name == "" {
			name = "item"
		}
		qty := pickAmount(
			dig(it, "count", "formatted", "value"),
			dig(it, "count", "value"),
			dig(it, "qty"),
			dig(it, "count"),
		)
		if qty == 0 {
			qty = 1
		}
		draft.Items = append(draft.Items, DraftItem{
			Name: name,
			Price: pickAmount(
				dig(it, "price", "price", "formatted", "value"),
				dig(it, "price", "formatted", "value"),
				dig(it, "price", "value"),
				dig(it, "price"),
				dig(it, "unitPrice"),
			),
			Qty: qty,
		})
	}

	return draft, nil
}

// receiptResult unwraps the envelope the common providers put around the
// actual result document.
func receiptResult(doc map[string]any) map[string]any {
	img := firstImage(doc)
	if img == nil {
		img = firstImage(asMap(doc["data"]))
	}
	for _, candidate := range []any{
		dig(img, "receipt", "result"),
		dig(img, "result"),
		dig(doc, "receipt", "result"),
		dig(doc, "data", "receipt", "result"),
	} {
		if m := asMap(candidate); m != nil {
			return m
		}
	}
	return doc
}

func firstImage(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	images, ok := doc["images"].([]any)
	if !ok || len(images) == 0 {
		return nil
	}
	return asMap(images[0])
}

func itemList(result map[string]any) []any {
	if subs, ok := result["subResults"].([]any); ok && len(subs) > 0 {
		if items, ok := dig(asMap(subs[0]), "items").([]any); ok {
			return items
		}
	}
	if items, ok := dig(result, "subResults", "items").([]any); ok {
		return items
	}
	if items, ok := result["items"].([]any); ok {
		return items
	}
	return nil
}

// dig walks nested maps and returns nil as soon as a step is missing.
func dig(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		node := asMap(cur)
		if node == nil {
			return nil
		}
		cur = node[key]
	}
	return cur
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func pickString(vals ...any) string {
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// pickAmount returns the first value that parses to a whole amount.
// String values may carry currency symbols and separators ("₩15,000").
func pickAmount(vals ...any) int64 {
	for _, v := range vals {
		switch t := v.(type) {
		case float64:
			return int64(math.Round(t))
		case string:
			if t == "" {
				continue
			}
			cleaned := strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' || r == '-' {
					return r
				}
				return -1
			}, t)
			if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
