package schema

import (
	"time"
)

// Artist represents the artists table, keyed naturally by wallet address
type Artist struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Address is the artist's wallet address, the natural identity
	Address string `gorm:"column:address;not null;uniqueIndex;type:text"`
	// ResolutionSource tags how the attribution was established
	ResolutionSource string  `gorm:"column:resolution_source;type:text"`
	Name             *string `gorm:"column:name;type:text"`
	Bio              *string `gorm:"column:bio;type:text"`
	ProfileImageURL  *string `gorm:"column:profile_image_url;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for the Artist model
func (Artist) TableName() string {
	return "artists"
}

// Collection represents the collections table, keyed naturally by contract
// address
type Collection struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ContractAddress is the natural identity of the collection
	ContractAddress string  `gorm:"column:contract_address;not null;uniqueIndex;type:text"`
	Slug            string  `gorm:"column:slug;not null;index;type:text"`
	Title           *string `gorm:"column:title;type:text"`
	Description     *string `gorm:"column:description;type:text"`
	ImageURL        *string `gorm:"column:image_url;type:text"`
	ExternalURL     *string `gorm:"column:external_url;type:text"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for the Collection model
func (Collection) TableName() string {
	return "collections"
}

// Artwork represents the artworks table - the catalog entity materialized
// from one queue entry, keyed naturally by the token identity triple
type Artwork struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Blockchain      string `gorm:"column:blockchain;not null;type:text;uniqueIndex:idx_artworks_identity,priority:1"`
	ContractAddress string `gorm:"column:contract_address;not null;type:text;uniqueIndex:idx_artworks_identity,priority:2"`
	TokenID         string `gorm:"column:token_id;not null;type:text;uniqueIndex:idx_artworks_identity,priority:3"`

	Title         *string    `gorm:"column:title;type:text"`
	Description   *string    `gorm:"column:description;type:text"`
	TokenStandard *string    `gorm:"column:token_standard;type:text"`
	ImageURL      *string    `gorm:"column:image_url;type:text"`
	ThumbnailURL  *string    `gorm:"column:thumbnail_url;type:text"`
	AnimationURL  *string    `gorm:"column:animation_url;type:text"`
	GeneratorURL  *string    `gorm:"column:generator_url;type:text"`
	MIMEType      *string    `gorm:"column:mime_type;type:text"`
	Supply        *int64     `gorm:"column:supply"`
	MintDate      *time.Time `gorm:"column:mint_date"`
	Width         *int       `gorm:"column:width"`
	Height        *int       `gorm:"column:height"`

	ArtistID     *int64 `gorm:"column:artist_id;index"`
	CollectionID *int64 `gorm:"column:collection_id;index"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for the Artwork model
func (Artwork) TableName() string {
	return "artworks"
}
