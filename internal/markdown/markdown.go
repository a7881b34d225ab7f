// Package markdown sanitizes untrusted names (teams, players, challenges)
// before they are embedded in chat messages.
package markdown

import "strings"

const (
	maxTeamNameLength      = 100
	maxChallengeNameLength = 150
	ellipsis               = "..."
)

// escaper prefixes every markdown control character with a backslash. A
// strings.Replacer scans the input once, so a backslash introduced for one
// character is never escaped again.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`_`, `\_`,
	`~`, `\~`,
	"`", "\\`",
	`|`, `\|`,
	`>`, `\>`,
	`#`, `\#`,
)

// Escape neutralises chat markdown in s.
func Escape(s string) string {
	if s == "" {
		return s
	}
	return escaper.Replace(s)
}

// TeamName returns a display-safe team or player name.
func TeamName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unknown Team"
	}
	return truncate(Escape(name), maxTeamNameLength)
}

// ChallengeName returns a display-safe challenge name.
func ChallengeName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unknown Challenge"
	}
	return truncate(Escape(name), maxChallengeNameLength)
}

// truncate caps s at max runes, replacing the tail with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-len(ellipsis)]) + ellipsis
}

// ForSlack renders a message built with Escape and **bold** markers as
// Slack mrkdwn: bold becomes *bold*, backslash escapes are dropped and
// & < > are entity-encoded.
func ForSlack(s string) string {
	return render(s, "*", func(b *strings.Builder, r rune) {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	})
}

// Plain renders a message for platforms that take unformatted text: bold
// markers and backslash escapes are removed.
func Plain(s string) string {
	return render(s, "", func(b *strings.Builder, r rune) { b.WriteRune(r) })
}

// render rewrites unescaped ** as bold and passes every other rune, escaped
// or not, through write.
func render(s, bold string, write func(*strings.Builder, rune)) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes):
			i++
			write(&b, runes[i])
		case r == '*' && i+1 < len(runes) && runes[i+1] == '*':
			i++
			b.WriteString(bold)
		default:
			write(&b, r)
		}
	}
	return b.String()
}
