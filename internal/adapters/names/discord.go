package names

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordResolver looks users up through the Discord REST API.
type DiscordResolver struct {
	session *discordgo.Session
}

// NewDiscordResolver creates a resolver authenticated with a bot token.
func NewDiscordResolver(token string) (*DiscordResolver, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return NewDiscordResolverWithSession(s), nil
}

// NewDiscordResolverWithSession wraps an existing session.
func NewDiscordResolverWithSession(s *discordgo.Session) *DiscordResolver {
	return &DiscordResolver{session: s}
}

// DisplayName implements Resolver with the user's username.
func (d *DiscordResolver) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := d.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrLookup, userID, err)
	}
	if u == nil || u.Username == "" {
		return "", ErrNotFound
	}
	return u.Username, nil
}
