// package models defines the domain types persisted by the store.
package models

// Member is a tracked content creator.
type Member struct {
	MID        int64   `json:"mid"`
	Name       string  `json:"name"`
	LastUpdate float64 `json:"last_update"`
}

// Video is one published content item for a member.
//
// BVID is the unique string id used for deduplication; AID is the legacy
// numeric id. Created is a unix timestamp.
type Video struct {
	AID         int64  `json:"aid"`
	BVID        string `json:"bvid"`
	MID         int64  `json:"mid"`
	Created     int64  `json:"created"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Length      string `json:"length"` // duration text, e.g. "12:34"
	PictureURL  string `json:"picture_url"`
	ViewCount   int64  `json:"view_count"`
	Comment     int64  `json:"comment"`
	Visited     bool   `json:"visited"`

	// MemberName is filled by queries joining the members table.
	MemberName string `json:"name,omitempty"`
}

// RemovedMember records a deleted member whose disk cache is pending
// grace-period eviction.
type RemovedMember struct {
	MID       int64   `json:"mid"`
	Timestamp float64 `json:"time_stamp"`
}

// MemberStatus is a member annotated with unseen-video information.
type MemberStatus struct {
	Member
	NewCount    int64 `json:"new_count"`    // videos with visited = false
	LastCreated int64 `json:"last_created"` // max created timestamp
}

// VideoPart is a single part of a multi-part video.
type VideoPart struct {
	Page     int64  `json:"page"`
	Part     string `json:"part"`
	Duration int64  `json:"duration"` // seconds
}
