package database

import (
	"github.com/strideapp/stride/internal/goal"
)

// Compile-time checks that the concrete repositories satisfy the service
// layer's store interfaces.
var (
	_ goal.GoalStore  = (*GoalRepository)(nil)
	_ goal.EntryStore = (*ProgressEntryRepository)(nil)
)
