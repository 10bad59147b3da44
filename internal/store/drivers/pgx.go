package drivers

import (
	// Register the pgx PostgreSQL driver under the name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
)
