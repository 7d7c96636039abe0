package models

// RelationshipStatus is the derived friend-request state between a viewer and
// a subject. It is never stored.
type RelationshipStatus string

const (
	RelationshipNone            RelationshipStatus = "none"
	RelationshipPendingOutgoing RelationshipStatus = "pending-outgoing"
	RelationshipPendingIncoming RelationshipStatus = "pending-incoming"
	RelationshipFriends         RelationshipStatus = "friends"
)

// DeriveRelationship computes the status of subject as seen by viewer from
// the two users' sets. Mutual friendship wins over any pending request.
func DeriveRelationship(viewer, subject *User) RelationshipStatus {
	switch {
	case viewer.Friends.Contains(subject.ID) && subject.Friends.Contains(viewer.ID):
		return RelationshipFriends
	case viewer.PendingRequests.Contains(subject.ID):
		return RelationshipPendingIncoming
	case subject.PendingRequests.Contains(viewer.ID):
		return RelationshipPendingOutgoing
	default:
		return RelationshipNone
	}
}
