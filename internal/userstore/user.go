// Package userstore reads user documents from MongoDB.
//
// The matching engine treats this package as its document-store
// collaborator: a read-only source of profile fields for rebuilds and of
// enriched user records for query results.
package userstore

import "go.mongodb.org/mongo-driver/bson/primitive"

// User mirrors the matching-relevant part of the users collection.
// Credential fields are never selected from the database, so they cannot
// appear here or in any JSON rendering of a match result.
type User struct {
	ID primitive.ObjectID `bson:"_id" json:"-"`

	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	Email    string `bson:"email,omitempty" json:"email,omitempty"`
	Bio      string `bson:"bio,omitempty" json:"bio,omitempty"`
	Location string `bson:"location,omitempty" json:"location,omitempty"`

	SkillsOffered  []string `bson:"skillsOffered,omitempty" json:"skillsOffered"`
	SkillsRequired []string `bson:"skillsRequired,omitempty" json:"skillsRequired"`

	Institution       string   `bson:"institution,omitempty" json:"institution,omitempty"`
	Degree            string   `bson:"degree,omitempty" json:"degree,omitempty"`
	FieldOfStudy      string   `bson:"fieldOfStudy,omitempty" json:"fieldOfStudy,omitempty"`
	GraduationYear    int      `bson:"graduationYear,omitempty" json:"graduationYear,omitempty"`
	ResearchInterests []string `bson:"researchInterests,omitempty" json:"researchInterests"`

	LearningPreferences []string `bson:"learningPreferences,omitempty" json:"learningPreferences"`
	SubjectStrengths    []string `bson:"subjectStrengths,omitempty" json:"subjectStrengths"`
	AcademicGoals       []string `bson:"academicGoals,omitempty" json:"academicGoals"`
	StudyHabits         []string `bson:"studyHabits,omitempty" json:"studyHabits"`

	Credits          int  `bson:"credits,omitempty" json:"credits,omitempty"`
	TaughtCount      int  `bson:"taughtCount,omitempty" json:"taughtCount,omitempty"`
	LearnedCount     int  `bson:"learnedCount,omitempty" json:"learnedCount,omitempty"`
	ProfileCompleted bool `bson:"profileCompleted,omitempty" json:"profileCompleted,omitempty"`
}

// ExternalID returns the stable external identifier used by the index layer.
func (u *User) ExternalID() string {
	return u.ID.Hex()
}

// ensureDefaults replaces absent list fields with empty slices so every
// field has a defined value regardless of what the document carried.
func (u *User) ensureDefaults() {
	if u.SkillsOffered == nil {
		u.SkillsOffered = []string{}
	}
	if u.SkillsRequired == nil {
		u.SkillsRequired = []string{}
	}
	if u.ResearchInterests == nil {
		u.ResearchInterests = []string{}
	}
	if u.LearningPreferences == nil {
		u.LearningPreferences = []string{}
	}
	if u.SubjectStrengths == nil {
		u.SubjectStrengths = []string{}
	}
	if u.AcademicGoals == nil {
		u.AcademicGoals = []string{}
	}
	if u.StudyHabits == nil {
		u.StudyHabits = []string{}
	}
}
