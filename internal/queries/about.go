package queries

import "fmt"

// About describes the bot.
func (h *Handler) About() string {
	return fmt.Sprintf(`🤖 **CTFd First-Blood Announcer**
Announces first bloods from a CTFd scoreboard and answers scoreboard queries.

📋 **Features**
• First blood announcements
• Top 10 teams leaderboard
• CTF statistics
• Real-time CTFd integration

🔗 **Source Code:** %s`, h.sourceURL)
}
