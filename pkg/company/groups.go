package company

import (
	"context"
	"fmt"

	"github.com/boardroom-dev/boardroom/pkg/directory"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// CreateGroup creates a new group owned by creator and, if provided,
// invites the initial members in order. creator is always invited
// first, matching scenario 2's "creator a1" convention.
func (c *Company) CreateGroup(ctx context.Context, id ident.GroupId, creator ident.AgentId, members ...ident.AgentId) error {
	if err := c.groupReg.Create(ctx, id); err != nil {
		return err
	}
	if err := c.InviteToGroup(ctx, id, creator, creator); err != nil {
		return err
	}
	for _, m := range members {
		if err := c.InviteToGroup(ctx, id, creator, m); err != nil {
			return err
		}
	}
	return nil
}

// InviteToGroup invites invitee into group on inviter's behalf. Per
// §4.3, inviter must already belong to group (ErrNotAMember otherwise)
// except for the creator's own bootstrap invite in CreateGroup, where
// inviter and invitee are the same agent and membership hasn't been
// established yet. Inviting an agent the Directory has never heard of
// fails with ErrUnknownAgent and leaves membership unchanged (scenario
// 3); inviting an already-present member is idempotent (no duplicate
// SystemNotice).
func (c *Company) InviteToGroup(ctx context.Context, group ident.GroupId, inviter, invitee ident.AgentId) error {
	if inviter != invitee {
		if err := c.groupReg.RequireMember(group, inviter); err != nil {
			return err
		}
	}
	if c.dir.Lookup(invitee) == (directory.Binding{}) {
		return fmt.Errorf("%w: %s", ident.ErrUnknownAgent, invitee)
	}
	return c.groupReg.Invite(ctx, group, invitee)
}

// MembersOf returns group's current membership in invitation order.
func (c *Company) MembersOf(group ident.GroupId) ([]ident.AgentId, error) {
	return c.groupReg.MembersOf(group)
}
