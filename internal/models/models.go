package models

import "time"

// Collection names used by the document store.
const (
	CollectionUsers     = "users"
	CollectionCourses   = "courses"
	CollectionPurchases = "purchases"
	CollectionProgress  = "progress"
)

// Tier is a named entitlement level gating which courses a user may access.
type Tier string

const (
	TierStarter Tier = "Starter"
	TierPro     Tier = "Pro"
	TierUltra   Tier = "Ultra"
)

// Level is the difficulty level shown on a course card. The stored values are
// the German labels the catalog has always used.
type Level string

const (
	LevelBeginner     Level = "Anfänger"
	LevelIntermediate Level = "Fortgeschritten"
	LevelExpert       Level = "Experte"
)

// User is the application profile stored in the users collection, keyed by the
// authentication uid.
type User struct {
	UID          string        `json:"uid" validate:"required"`
	Email        string        `json:"email" validate:"required"`
	DisplayName  string        `json:"displayName,omitempty"`
	IsAdmin      bool          `json:"isAdmin"`
	CreatedAt    time.Time     `json:"createdAt"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Subscription records the tier a user is subscribed to.
type Subscription struct {
	Tier      Tier       `json:"tier" validate:"omitempty,oneof=Starter Pro Ultra"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Course is a purchasable course with its embedded, ordered video list.
type Course struct {
	ID           string        `json:"id,omitempty"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Price        float64       `json:"price"`
	TierRequired Tier          `json:"tierRequired" validate:"omitempty,oneof=Starter Pro Ultra"`
	ThumbnailURL string        `json:"thumbnailUrl"`
	Duration     int           `json:"duration"`
	Instructor   string        `json:"instructor"`
	Level        Level         `json:"level" validate:"omitempty,oneof=Anfänger Fortgeschritten Experte"`
	Videos       []CourseVideo `json:"videos" validate:"dive"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// CourseVideo exists only embedded in a Course document.
type CourseVideo struct {
	ID         string `json:"id" validate:"required"`
	Title      string `json:"title"`
	YouTubeURL string `json:"youtubeUrl"`
	Duration   int    `json:"duration" validate:"gte=0"`
	Order      int    `json:"order"`
}

// Purchase links a user to a course they acquired. Records are append-only.
type Purchase struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"userId" validate:"required"`
	CourseID    string    `json:"courseId" validate:"required"`
	Amount      float64   `json:"amount"`
	PurchasedAt time.Time `json:"createdAt"`
}

// Progress is a completion record for one video of one course for one user.
// One record is appended per completion event.
type Progress struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"userId" validate:"required"`
	CourseID    string    `json:"courseId" validate:"required"`
	VideoID     string    `json:"videoId" validate:"required"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completedAt"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
