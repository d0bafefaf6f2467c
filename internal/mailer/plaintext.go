package mailer

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText はHTML本文からプレーンテキストの代替本文を生成する。
// ブロック要素とbrは改行に、aタグはリンクテキストの後ろにURLを括弧書きで残す。
func PlainText(htmlBody string) string {
	z := html.NewTokenizer(strings.NewReader(htmlBody))

	var b strings.Builder
	var href string
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOFを含め、以降のトークンは読めない
			return tidy(b.String())

		case html.TextToken:
			if skip > 0 {
				continue
			}
			b.WriteString(collapseSpace(string(z.Text())))

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch tag {
			case "style", "script", "head", "title":
				if tt == html.StartTagToken {
					skip++
				}
			case "br":
				b.WriteString("\n")
			case "p", "div", "h1", "h2", "h3", "h4", "tr", "ul", "ol":
				b.WriteString("\n")
			case "li":
				b.WriteString("\n- ")
			case "a":
				href = ""
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "href" {
						href = string(val)
					}
				}
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "style", "script", "head", "title":
				if skip > 0 {
					skip--
				}
			case "p", "div", "h1", "h2", "h3", "h4", "tr", "ul", "ol":
				b.WriteString("\n")
			case "a":
				if href != "" {
					b.WriteString(" (" + href + ")")
					href = ""
				}
			}
		}
	}
}

// collapseSpace は連続する空白文字を1つの空白にまとめる。
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if strings.TrimLeft(s, " \t\r\n") != s {
		out = " " + out
	}
	if strings.TrimRight(s, " \t\r\n") != s {
		out += " "
	}
	return out
}

// tidy は各行の前後の空白を除去し、連続する空行を1つにまとめる。
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
