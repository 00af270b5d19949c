package models

import "gorm.io/gorm"

// All lists every persisted entity in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&Module{},
		&Lesson{},
		&Quiz{},
		&Assignment{},
		&CourseEnrollment{},
		&CourseProgress{},
		&QuizSubmission{},
		&AssignmentSubmission{},
		&Review{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
