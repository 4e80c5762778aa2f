package domain

import "go.mongodb.org/mongo-driver/v2/bson"

// NewID returns a fresh ObjectID in hex form. Every store uses it so IDs look
// the same regardless of the backing database.
func NewID() string {
	return bson.NewObjectID().Hex()
}

// ValidID reports whether id is a 24-hex ObjectID.
func ValidID(id string) bool {
	_, err := bson.ObjectIDFromHex(id)
	return err == nil
}

// ValidIDs reports whether every id is valid.
func ValidIDs(ids ...string) bool {
	for _, id := range ids {
		if !ValidID(id) {
			return false
		}
	}
	return true
}
