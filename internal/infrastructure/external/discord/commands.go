package discord

// ══════════════════════════════════════════════════════════════════════════════
// SLASH COMMAND DEFINITIONS
// The /rank command is registered per guild at startup so new subcommands
// propagate immediately instead of after Discord's global command cache
// expires.
// ══════════════════════════════════════════════════════════════════════════════

// RankCommand returns the /rank slash command definition with its set and
// remove subcommands.
func RankCommand() ApplicationCommand {
	minRank := 1
	return ApplicationCommand{
		Name:        "rank",
		Description: "Manage community ranks",
		Options: []ApplicationCommandOption{
			{
				Type:        OptionTypeSubCommand,
				Name:        "set",
				Description: "Assign a rank to a member",
				Options: []ApplicationCommandOption{
					{
						Type:        OptionTypeUser,
						Name:        "member",
						Description: "Member to rank",
						Required:    true,
					},
					{
						Type:        OptionTypeInteger,
						Name:        "rank",
						Description: "Rank position (1 is highest)",
						Required:    true,
						MinValue:    &minRank,
					},
				},
			},
			{
				Type:        OptionTypeSubCommand,
				Name:        "remove",
				Description: "Remove a member's rank",
				Options: []ApplicationCommandOption{
					{
						Type:        OptionTypeUser,
						Name:        "member",
						Description: "Member to unrank",
						Required:    true,
					},
				},
			},
		},
	}
}
