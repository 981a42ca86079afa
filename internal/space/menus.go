package space

// SideMenu is one side-menu entry contributed by a space type. Labels
// are translation keys; Path is the route template relative to the
// space root. Visible, when set, gates the entry on current space
// state.
type SideMenu struct {
	Label   string
	Path    string
	Visible func(*Space) bool
}

// sideMenusByType is a static mapping built once at init. Space-type
// modules used to register their menus into a shared mutable map at
// import time; the table replaces that with an explicit, read-only
// declaration.
var sideMenusByType = map[Type][]SideMenu{
	TypeDeliberation: {
		{Label: "menu_deliberation", Path: "deliberation"},
		{Label: "menu_discussions", Path: "discussions"},
		{Label: "menu_analyze", Path: "analyze", Visible: func(s *Space) bool { return s.IsAdmin() }},
	},
	TypePoll: {
		{Label: "menu_poll", Path: "poll"},
		{Label: "menu_results", Path: "results", Visible: func(s *Space) bool { return s.IsFinished() || s.IsAdmin() }},
	},
	TypeNotice: {
		{Label: "menu_notice", Path: "notice"},
	},
	TypeDao: {
		{Label: "menu_dao", Path: "dao"},
		{Label: "menu_incentives", Path: "incentives"},
	},
}

var baseMenus = []SideMenu{
	{Label: "menu_overview", Path: ""},
}

var requireMenus = []SideMenu{
	{Label: "menu_requirements", Path: "requirements"},
}

var adminMenus = []SideMenu{
	{Label: "menu_admin_settings", Path: "settings"},
}

// SideMenus returns the ordered menu entries for the space as seen by
// the current viewer. While pre-tasks are pending the gate menu
// replaces the base set entirely.
func SideMenus(s *Space) []SideMenu {
	var items []SideMenu
	if s.PreTaskRequired() {
		items = append(items, requireMenus...)
	} else {
		items = append(items, baseMenus...)
		items = append(items, sideMenusByType[s.SpaceType]...)
	}
	if s.IsAdmin() {
		items = append(items, adminMenus...)
	}

	visible := make([]SideMenu, 0, len(items))
	for _, menu := range items {
		if menu.Visible != nil && !menu.Visible(s) {
			continue
		}
		visible = append(visible, menu)
	}
	return visible
}
