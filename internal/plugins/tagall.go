package plugins

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow/types"

	"whatsapp-bot/internal/message"
	"whatsapp-bot/internal/whatsapp"
)

type TagAll struct {
	owners []string
}

func (p *TagAll) Name() string        { return "tagall" }
func (p *TagAll) Aliases() []string   { return []string{"everyone"} }
func (p *TagAll) Description() string { return "Tag everyone in the group" }

func (p *TagAll) Execute(ctx context.Context, conn whatsapp.Conn, m *message.Message, _ []string) error {
	if !m.IsGroup {
		_, err := conn.SendMessage(ctx, m.Chat, whatsapp.Text("This command can only be used in groups!"))
		return err
	}

	group := m.GroupInfo
	if group == nil {
		var err error
		if group, err = conn.GetGroupInfo(ctx, m.Chat); err != nil {
			return errors.Wrap(err, "fetch group metadata")
		}
	}

	if !p.isOwner(m.Sender) && !isAdmin(group, m.Sender) {
		_, err := conn.SendMessage(ctx, m.Chat, whatsapp.Text("Only group admins or owners can use this command!"))
		return err
	}

	members := make([]types.JID, 0, len(group.Participants))
	lines := make([]string, 0, len(group.Participants))
	for _, participant := range group.Participants {
		members = append(members, participant.JID)
		lines = append(lines, "@"+participant.JID.User)
	}

	text := "Hello everyone!\nHere are the group members:\n\n" + strings.Join(lines, "\n")
	_, err := conn.SendMessage(ctx, m.Chat, whatsapp.MentionText(text, members))
	return err
}

// isOwner matches on the user part only so that phone and LID forms of the
// same owner both qualify.
func (p *TagAll) isOwner(sender types.JID) bool {
	for _, o := range parseOwners(p.owners) {
		if o.User == sender.User {
			return true
		}
	}
	return false
}

func isAdmin(group *types.GroupInfo, who types.JID) bool {
	for _, participant := range group.Participants {
		if participant.JID.User != who.User && participant.LID.User != who.User {
			continue
		}
		return participant.IsAdmin || participant.IsSuperAdmin
	}
	return false
}
