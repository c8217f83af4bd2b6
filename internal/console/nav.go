package console

import "giftdesk/internal/models"

// NavPanel decides which console sections and actions are shown. It gates
// affordances only; the server re-checks every action.
type NavPanel struct {
	username string
	super    bool
	allowed  map[models.Section]bool
}

// NewNavPanel builds the panel for admin. A nil or disabled admin sees nothing.
func NewNavPanel(admin *models.Admin) *NavPanel {
	n := &NavPanel{allowed: make(map[models.Section]bool)}
	if admin == nil || admin.Disabled {
		return n
	}
	n.username = admin.Username
	n.super = admin.Role == models.AdminRoleSuper
	for _, s := range admin.Permissions {
		n.allowed[s] = true
	}
	return n
}

// Can reports whether section is visible. Super admins see everything.
func (n *NavPanel) Can(section models.Section) bool {
	return n.super || n.allowed[section]
}

// CanResolve reports whether approve and deny buttons are shown for kind.
func (n *NavPanel) CanResolve(kind models.RequestKind) bool {
	return n.Can(kind.Section())
}

// Sections lists the visible sections in navigation order.
func (n *NavPanel) Sections() []models.Section {
	out := make([]models.Section, 0, len(models.AllSections))
	for _, s := range models.AllSections {
		if n.Can(s) {
			out = append(out, s)
		}
	}
	return out
}

// Username is the signed-in admin's name.
func (n *NavPanel) Username() string { return n.username }
