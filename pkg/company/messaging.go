package company

import (
	"context"

	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// SendPrivate sends content from one agent directly to another (§6:
// "send_private(from, to, content)").
func (c *Company) SendPrivate(ctx context.Context, from, to ident.AgentId, content string) error {
	return c.router.Route(ctx, from, ident.Direct(to), content)
}

// SendGroup sends content from an agent to a group's current
// membership. The sender must already belong to the group.
func (c *Company) SendGroup(ctx context.Context, from ident.AgentId, group ident.GroupId, content string) error {
	if err := c.groupReg.RequireMember(group, from); err != nil {
		return err
	}
	return c.router.Route(ctx, from, ident.ToGroup(group), content)
}

// Broadcast sends content from an agent to every agent known to the
// federation.
func (c *Company) Broadcast(ctx context.Context, from ident.AgentId, content string) error {
	return c.router.Route(ctx, from, ident.Broadcast(), content)
}
