package scope

import "gorm.io/gorm"

// OrderByCreatedAsc breaks ties on id so rows written in the same instant keep a stable order.
func OrderByCreatedAsc(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}
