package service

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// 创建和更新时接受的内容格式，落库内容始终为 HTML
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	contentPolicy = bluemonday.UGCPolicy()
)

// RenderContent 将指定格式的原始内容转换为净化后的 HTML
// 格式为空时按 HTML 处理
func RenderContent(format, raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatHTML:
		return contentPolicy.Sanitize(raw), nil
	case FormatMarkdown:
		var buf bytes.Buffer
		if err := markdownEngine.Convert([]byte(raw), &buf); err != nil {
			return "", &ValidationError{Fields: []FieldError{{Field: "content", Message: "content is not valid markdown"}}}
		}
		return contentPolicy.Sanitize(buf.String()), nil
	default:
		return "", &ValidationError{Fields: []FieldError{{Field: "format", Message: "format must be html or markdown"}}}
	}
}
