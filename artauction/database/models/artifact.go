package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Artifact is one entry of the minted artwork catalog. Records are written
// exactly once by the metadata-save step and never mutated or deleted;
// artifactId is the join key to Auction.ArtifactID.
type Artifact struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ArtifactID      int64              `bson:"artifactId" json:"artifactId"`
	Name            string             `bson:"name" json:"name"`
	Description     string             `bson:"description,omitempty" json:"description,omitempty"`
	Image           string             `bson:"image" json:"image"`
	ImageAddress    string             `bson:"imageAddress" json:"imageAddress"`
	MetadataAddress string             `bson:"metadataAddress" json:"metadataAddress"`
	Creator         string             `bson:"creator" json:"creator"`
	CreatorAddress  string             `bson:"creatorAddress" json:"creatorAddress"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
}
