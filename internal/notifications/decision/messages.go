// internal/notifications/decision/messages.go
package decision

import (
	"fmt"
	"strings"
)

const (
	TitleVictory        = "Victory! 🏆"
	TitleDefeat         = "Defeat 💔"
	TitleDraw           = "Draw 🤝"
	TitleLeagueStarted  = "League Started! ⚽"
	TitleLeagueFinished = "League Finished 🏁"
	TitleLeagueUpdate   = "League Update 📋"
	TitleAppUpdate      = "App Update 🚀"
	TitleAnnouncement   = "Announcement 📢"
	TitleTest           = "Test Notification 🔔"

	leagueNamePlaceholder = "{{leagueName}}"
)

var WinMessages = []string{
	"Boom! 3 points for you! 🚀",
	"Absolute masterclass! ⚽🔥",
	"You dropped this 👑 (It's a win)",
	"Clean sheet? Maybe. Win? Definitely. 😎",
	"Cooking with gas! 🍳 Keep the streak alive!",
	"Ez game, ez life. GG! 🎮",
	"They had families, you know... 💀 Great win!",
	"Another one bites the dust 🎵 Victory is yours!",
}

var LossMessages = []string{
	"Oof. That one crazy... 🤕",
	"Even Messi has off days. 🐐 Chin up!",
	"Mission failed, we'll get 'em next time. 🫡",
	"Controller disconnected? 🎮 Happens to the best of us.",
	"Tactical defeat. Lulling them into false security. 🧠",
	"Rough day at the office. Regroup and go again! 💪",
	"The script was against you today. 📜",
	"Unlucky! The comeback story starts now. 📈",
}

var DrawMessages = []string{
	"Honours even! 🤝 A point is a point.",
	"Nobody blinked. 👀 Spoils shared.",
	"Stalemate! ♟️ Run it back next time.",
	"Evenly matched. 🪞 Respect on both sides.",
	"One point in the bag. 🎒 Better than none!",
	"Deadlock! 🔒 The decider will have to wait.",
}

var LeagueStartedMessages = []string{
	"New League Alert! 🚨 {{leagueName}} is live. It's time to shine.",
	"You've been drafted! 📝 Good luck in {{leagueName}}.",
	"A new challenger approaches! ⚔️ {{leagueName}} has started.",
	"Boots on! 👟 {{leagueName}} kicks off now.",
	"Fresh season, fresh start. 🌱 Welcome to {{leagueName}}.",
}

var LeagueFinishedMessages = []string{
	"{{leagueName}} has wrapped up! 🏁 Check the final standings.",
	"It's all over in {{leagueName}}! 🛑 Did you bring home the silverware?",
	"Season finale! 📺 See where you placed in {{leagueName}}.",
	"Final whistle for {{leagueName}}. 🏟️ Thanks for playing!",
	"The dust has settled on {{leagueName}}. 📊 Time to look at the table.",
}

var AppUpdateMessages = []string{
	"A new version is live! 🎉 Refresh to get the latest features.",
	"Fresh update just landed. ✨ Check out what's new!",
	"We've been busy! 🛠️ New improvements are waiting for you.",
	"Update installed on our side. 🚀 Reload to catch up.",
	"Bugs squashed, features added. 🐛➡️✨ Enjoy the new build!",
}

var AnnouncementMessages = []string{
	"Big news from the league office! 📢 Check the dashboard.",
	"Heads up! 👀 Something new is happening in the league.",
	"Stay tuned! 📻 An important update for all players.",
	"Attention all managers! 📣 New announcement posted.",
	"The league office has spoken. 🏛️ Take a look!",
}

// WithLeagueName fills the {{leagueName}} placeholder.
func WithLeagueName(template, name string) string {
	return strings.ReplaceAll(template, leagueNamePlaceholder, name)
}

// TablePositionMessage is the copy for a standings check at rank out of size.
func TablePositionMessage(rank, size int) string {
	switch {
	case rank == 1:
		return "You are TOP of the league! 🥇 Everyone is chasing you!"
	case rank == size:
		return "Currently bottom of the pile... 📉 Time to wake up!"
	default:
		return fmt.Sprintf("You are currently sitting at #%d in the tables. 📊", rank)
	}
}
