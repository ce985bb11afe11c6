package chat

// Identity is the tagged union of the two session state spaces. Guest
// state lives only on disk; authenticated state is mirrored to the
// session service. The two spaces are disjoint: signing in does not
// migrate guest conversations, and signing out does not pull
// server-side ones back.
type Identity interface {
	isIdentity()
}

// Guest is a session with no backing identity.
type Guest struct{}

func (Guest) isIdentity() {}

// Authenticated is a session backed by a remote user id.
type Authenticated struct {
	UserID string
}

func (Authenticated) isIdentity() {}
