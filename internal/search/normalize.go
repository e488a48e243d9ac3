package search

import (
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// NormalizeWeb maps a raw web-search response body to the uniform result
// shape. Result rows come from "results", falling back to "web.results".
// Rows with neither a title nor a url are dropped.
func NormalizeWeb(body []byte) []Result {
	rows := firstArray(body, "results", "web.results")
	return mapRows(rows, "title", "url")
}

// NormalizeLocal maps a raw local-search response body. It accepts "name" as
// a title fallback and "website" as a url fallback, with the same drop rule
// as NormalizeWeb.
func NormalizeLocal(body []byte) []Result {
	rows := firstArray(body, "local.results", "results", "web.results")

	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		title := firstString(row, "title", "name")
		url := firstString(row, "url", "website")
		if title == "" && url == "" {
			continue
		}
		out = append(out, Result{
			Title:       title,
			URL:         url,
			Description: firstString(row, "description", "snippet", "content"),
		})
	}
	return out
}

// NormalizeTavily maps a Tavily response ({results:[{title,url,content}]})
// to the Brave shape with no filtering: row count and order are preserved.
func NormalizeTavily(body []byte) []Result {
	rows := firstArray(body, "results")

	return lo.Map(rows, func(row gjson.Result, _ int) Result {
		return Result{
			Title:       safeString(row.Get("title")),
			URL:         safeString(row.Get("url")),
			Description: safeString(row.Get("content")),
		}
	})
}

func mapRows(rows []gjson.Result, titleKey, urlKey string) []Result {
	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		title := safeString(row.Get(titleKey))
		url := safeString(row.Get(urlKey))
		if title == "" && url == "" {
			continue
		}
		out = append(out, Result{
			Title:       title,
			URL:         url,
			Description: firstString(row, "description", "snippet", "content"),
		})
	}
	return out
}

// firstArray returns the first path in body that holds an array.
func firstArray(body []byte, paths ...string) []gjson.Result {
	for _, path := range paths {
		if v := gjson.GetBytes(body, path); v.IsArray() {
			return v.Array()
		}
	}
	return nil
}

// firstString returns the first of the given fields present on the row,
// coerced through safeString.
func firstString(row gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := row.Get(key); v.Exists() {
			if s := safeString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// safeString coerces non-string JSON values to "".
func safeString(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return ""
}
