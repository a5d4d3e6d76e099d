package sync

// Document addressing shared by the engine and the write paths. The
// layout mirrors what the now-playing publisher writes, so the
// aggregator's decode rules line up with it exactly.

// UsersCollection holds one profile document per account.
const UsersCollection = "users"

// UserPath is the profile document for a user.
func UserPath(userID string) string {
	return UsersCollection + "/" + userID
}

// RosterPath is the friends collection of a user; its member documents
// are the authoritative roster.
func RosterPath(userID string) string {
	return UserPath(userID) + "/friends"
}

// FriendEdgePath is the directed friendship edge owner -> friend.
func FriendEdgePath(ownerID, friendID string) string {
	return RosterPath(ownerID) + "/" + friendID
}

// TrackPath is the public currently-playing document of a user.
func TrackPath(userID string) string {
	return "public_tracks/" + userID
}

// ReactionPath is the reaction edge document written by sender about
// recipient's playback, stored on the recipient's side.
func ReactionPath(recipientID, senderID string) string {
	return UserPath(recipientID) + "/reactions/" + senderID
}
