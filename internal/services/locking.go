package services

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate adds a row-level lock to a read so that a transaction rewriting
// the rows it just read holds them until commit. Two settlements touching
// the same account or holding then serialize instead of both reading the
// same starting balance and losing one of the writes.
//
// SQLite rejects the FOR UPDATE syntax and serializes writers on its own,
// so the clause is only emitted on drivers that support it.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
