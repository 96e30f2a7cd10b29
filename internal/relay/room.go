package relay

// Room is the signaling scope of one call. It only exists while it has
// members and is owned by the hub loop.
type Room struct {
	// ID is the call identifier.
	ID string

	// Members maps each joined connection to the participant id it
	// claimed on join.
	Members map[*Client]string
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		Members: make(map[*Client]string),
	}
}

// others returns every member except c.
func (r *Room) others(c *Client) []*Client {
	peers := make([]*Client, 0, len(r.Members))
	for m := range r.Members {
		if m != c {
			peers = append(peers, m)
		}
	}
	return peers
}
