// File: internal/profile/model.go
package profile

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/gosimple/slug"

	"lingualearn_backend/internal/identity"
)

// UserProfile is the durable per-user document describing learning progress.
// Exactly one document exists per UID once any sign-in has completed; the
// document is never deleted. CreatedAt is write-once and LastLoginAt is owned
// by the session manager; every other field is last-writer-wins under
// partial update.
type UserProfile struct {
	UID               string    `firestore:"uid" json:"uid"`
	Email             string    `firestore:"email" json:"email"`
	Username          string    `firestore:"username" json:"username"`
	DisplayName       string    `firestore:"displayName,omitempty" json:"display_name,omitempty"`
	PhotoURL          string    `firestore:"photoURL,omitempty" json:"photo_url,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt" json:"created_at"`
	LastLoginAt       time.Time `firestore:"lastLoginAt" json:"last_login_at"`
	NativeLanguage    string    `firestore:"nativeLanguage,omitempty" json:"native_language,omitempty"`
	LearningLanguages []string  `firestore:"learningLanguages" json:"learning_languages"`
	CurrentLevel      int       `firestore:"currentLevel" json:"current_level"`
	StreakCount       int       `firestore:"streakCount" json:"streak_count"`
	XPPoints          int       `firestore:"xpPoints" json:"xp_points"`
}

// Clone returns a deep copy so snapshot holders never alias store state.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.LearningLanguages = append([]string(nil), p.LearningLanguages...)
	return &clone
}

// Patch is a partial update over a UserProfile. Nil fields are left
// untouched. UID, Email, CreatedAt and LastLoginAt are deliberately absent:
// the first three are immutable or store-owned, the last is written only
// during reconciliation.
type Patch struct {
	Username          *string   `json:"username,omitempty" binding:"omitempty,max=100"`
	DisplayName       *string   `json:"display_name,omitempty" binding:"omitempty,max=100"`
	PhotoURL          *string   `json:"photo_url,omitempty"`
	NativeLanguage    *string   `json:"native_language,omitempty" binding:"omitempty,max=50"`
	LearningLanguages *[]string `json:"learning_languages,omitempty"`
	CurrentLevel      *int      `json:"current_level,omitempty" binding:"omitempty,gte=1"`
	StreakCount       *int      `json:"streak_count,omitempty" binding:"omitempty,gte=0"`
	XPPoints          *int      `json:"xp_points,omitempty" binding:"omitempty,gte=0"`
}

// IsZero reports whether the patch carries no changes.
func (p *Patch) IsZero() bool {
	if p == nil {
		return true
	}
	return p.Username == nil && p.DisplayName == nil && p.PhotoURL == nil &&
		p.NativeLanguage == nil && p.LearningLanguages == nil &&
		p.CurrentLevel == nil && p.StreakCount == nil && p.XPPoints == nil
}

// ApplyTo merges the patch into profile in place.
func (p *Patch) ApplyTo(profile *UserProfile) {
	if p == nil || profile == nil {
		return
	}
	if p.Username != nil {
		profile.Username = *p.Username
	}
	if p.DisplayName != nil {
		profile.DisplayName = *p.DisplayName
	}
	if p.PhotoURL != nil {
		profile.PhotoURL = *p.PhotoURL
	}
	if p.NativeLanguage != nil {
		profile.NativeLanguage = *p.NativeLanguage
	}
	if p.LearningLanguages != nil {
		profile.LearningLanguages = append([]string(nil), (*p.LearningLanguages)...)
	}
	if p.CurrentLevel != nil {
		profile.CurrentLevel = *p.CurrentLevel
	}
	if p.StreakCount != nil {
		profile.StreakCount = *p.StreakCount
	}
	if p.XPPoints != nil {
		profile.XPPoints = *p.XPPoints
	}
}

// merge overlays other onto p, other winning per field.
func (p *Patch) merge(other *Patch) {
	if other == nil {
		return
	}
	if other.Username != nil {
		p.Username = other.Username
	}
	if other.DisplayName != nil {
		p.DisplayName = other.DisplayName
	}
	if other.PhotoURL != nil {
		p.PhotoURL = other.PhotoURL
	}
	if other.NativeLanguage != nil {
		p.NativeLanguage = other.NativeLanguage
	}
	if other.LearningLanguages != nil {
		p.LearningLanguages = other.LearningLanguages
	}
	if other.CurrentLevel != nil {
		p.CurrentLevel = other.CurrentLevel
	}
	if other.StreakCount != nil {
		p.StreakCount = other.StreakCount
	}
	if other.XPPoints != nil {
		p.XPPoints = other.XPPoints
	}
}

// updates converts the patch into Firestore field updates.
func (p *Patch) updates() []firestore.Update {
	var ups []firestore.Update
	if p == nil {
		return ups
	}
	if p.Username != nil {
		ups = append(ups, firestore.Update{Path: "username", Value: *p.Username})
	}
	if p.DisplayName != nil {
		ups = append(ups, firestore.Update{Path: "displayName", Value: *p.DisplayName})
	}
	if p.PhotoURL != nil {
		ups = append(ups, firestore.Update{Path: "photoURL", Value: *p.PhotoURL})
	}
	if p.NativeLanguage != nil {
		ups = append(ups, firestore.Update{Path: "nativeLanguage", Value: *p.NativeLanguage})
	}
	if p.LearningLanguages != nil {
		ups = append(ups, firestore.Update{Path: "learningLanguages", Value: *p.LearningLanguages})
	}
	if p.CurrentLevel != nil {
		ups = append(ups, firestore.Update{Path: "currentLevel", Value: *p.CurrentLevel})
	}
	if p.StreakCount != nil {
		ups = append(ups, firestore.Update{Path: "streakCount", Value: *p.StreakCount})
	}
	if p.XPPoints != nil {
		ups = append(ups, firestore.Update{Path: "xpPoints", Value: *p.XPPoints})
	}
	return ups
}

// newProfile builds a first-sign-in document from the provider identity.
// Display names are normalized into URL-safe usernames; numeric fields start
// at their gamification defaults.
func newProfile(ident *identity.Identity, now time.Time) *UserProfile {
	username := ""
	if ident.DisplayName != "" {
		username = slug.Make(ident.DisplayName)
	}
	return &UserProfile{
		UID:               ident.UID,
		Email:             ident.Email,
		Username:          username,
		DisplayName:       ident.DisplayName,
		PhotoURL:          ident.PhotoURL,
		CreatedAt:         now,
		LastLoginAt:       now,
		LearningLanguages: []string{},
		CurrentLevel:      1,
		StreakCount:       0,
		XPPoints:          0,
	}
}
