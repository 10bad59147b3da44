// Package drivers groups database/sql driver registrations so the
// heavy dependencies stay out of builds that do not open a database.
package drivers

// Ready is a no-op hook. Calling it from a main package makes the
// blank driver imports look deliberate instead of accidental.
func Ready() {}
