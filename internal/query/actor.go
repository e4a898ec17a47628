package query

// Actor is the capability snapshot of whoever is searching. The caller owns
// it; parsing never modifies it.
type Actor struct {
	ID               int64
	Name             string
	IsAdmin          bool
	IsMember         bool
	IsVoter          bool
	SafeMode         bool
	AdminMode        bool
	HideDeletedPosts bool

	// FlaggerVisible overrides the default flagger visibility rule.
	FlaggerVisible func(flaggerID int64) bool
}

// Anonymous returns an actor with no privileges.
func Anonymous() *Actor {
	return &Actor{Name: "Anonymous"}
}

// CanViewFlagger reports whether the actor may search by the given flagger.
// By default users can see their own flags and admins can see everyone's.
func (a *Actor) CanViewFlagger(flaggerID int64) bool {
	if a.FlaggerVisible != nil {
		return a.FlaggerVisible(flaggerID)
	}
	return a.IsAdmin || (a.ID != 0 && a.ID == flaggerID)
}

func (a *Actor) canViewFavorites(u *User) bool {
	return !u.PrivateFavorites || u.ID == a.ID || a.IsAdmin
}

func (a *Actor) canViewFavoriteGroup(g *FavoriteGroup) bool {
	return g.IsPublic || g.CreatorID == a.ID || a.IsAdmin
}
