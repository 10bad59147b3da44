package drivers

import (
	// Register the pure-Go SQLite driver under the name "sqlite".
	_ "modernc.org/sqlite"
)
